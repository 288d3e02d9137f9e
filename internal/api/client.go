// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the advisor backend.
//
// It owns request construction, session/auth header attachment, response
// decoding, error classification, and a short-TTL read cache for listing
// endpoints. Streaming responses are opened here but consumed by the
// stream package.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is the production backend endpoint.
	DefaultBaseURL = "https://api.campuskit.example.com/v1"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps a response body read (10MB).
	MaxResponseSize = 10 * 1024 * 1024

	// cacheTTL is how long list responses stay fresh. Reads within the
	// window are served locally; the next read after expiry refetches.
	cacheTTL = 30 * time.Second

	userAgent = "advisor/0.3.0"

	sessionHeader = "X-Session-ID"
)

var (
	// Shared HTTP client with connection pooling for request/response calls.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; streaming lifetime is
	// context-controlled.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// Credentials are attached to every request: the session identity always,
// the bearer token when the visitor has authenticated.
type Credentials struct {
	SessionID string
	AuthToken string
}

// CredentialSource supplies the current credentials at request time, so
// the client always sends the live session rather than a snapshot.
type CredentialSource interface {
	Credentials() Credentials
}

// StaticCredentials is a fixed CredentialSource, mainly for tests.
type StaticCredentials Credentials

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials() Credentials {
	return Credentials(s)
}

// Client is a client for the advisor backend API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	creds        CredentialSource
	cache        *gocache.Cache
	logger       *zap.Logger

	// onAuthInvalid fires once per rejected request when the backend
	// returns 401, letting the session layer clear stale auth state.
	onAuthInvalid func()
}

// NewClient creates a backend client. creds may be nil for endpoints that
// need no identity.
func NewClient(baseURL string, creds CredentialSource, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		creds:        creds,
		cache:        gocache.New(cacheTTL, 2*cacheTTL),
		logger:       logger,
	}
}

// WithTimeout sets the request timeout for non-streaming calls. The
// client switches off the shared pooled client to avoid mutating global
// state.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient = &http.Client{
		Transport: sharedHTTPClient.Transport,
		Timeout:   timeout,
	}
	return c
}

// WithHTTPClient overrides both HTTP clients, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithAuthInvalidHandler registers the callback invoked when the backend
// rejects the current credentials.
func (c *Client) WithAuthInvalidHandler(fn func()) *Client {
	c.onAuthInvalid = fn
	return c
}

// BaseURL returns the configured backend endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Invalidate drops any cached responses for the named resource. Mutating
// endpoints call this so the next read observes the write.
func (c *Client) Invalidate(resource string) {
	prefix := resource + ":"
	for key := range c.cache.Items() {
		if key == resource || strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}

// setHeaders attaches identity and content headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.creds == nil {
		return
	}
	creds := c.creds.Credentials()
	if creds.SessionID != "" {
		req.Header.Set(sessionHeader, creds.SessionID)
	}
	if creds.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.AuthToken)
	}
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// do performs one JSON request and decodes the response into out (which
// may be nil for endpoints whose body the caller ignores). Failures come
// back classified; nothing is retried automatically.
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return &APIError{Kind: KindNetwork, Cause: err}
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classifyStatus(resp.StatusCode, body)
		if apiErr.Kind == KindAuth && c.onAuthInvalid != nil {
			c.onAuthInvalid()
		}
		return apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// getCached serves a GET through the read cache. The key identifies the
// resource plus any distinguishing parameters.
func (c *Client) getCached(ctx context.Context, key, path string, out any) error {
	if cached, found := c.cache.Get(key); found {
		data := cached.([]byte)
		if err := json.Unmarshal(data, out); err == nil {
			return nil
		}
		c.cache.Delete(key)
	}

	if err := c.do(ctx, http.MethodGet, path, nil, out); err != nil {
		return err
	}

	// Re-encode rather than store out directly: the cache hands each
	// caller an independent copy.
	if data, err := json.Marshal(out); err == nil {
		c.cache.Set(key, data, cacheTTL)
	}
	return nil
}
