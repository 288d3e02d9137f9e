// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// ErrorKind classifies a request failure into the categories callers act
// on. Presentation maps each kind to user-facing copy; nothing retries
// automatically.
type ErrorKind int

const (
	// KindNetwork covers connection failures, timeouts, and DNS errors:
	// the request may never have reached the backend.
	KindNetwork ErrorKind = iota

	// KindAuth means the session or token was rejected (HTTP 401).
	KindAuth

	// KindForbidden means the caller is authenticated but not allowed
	// (HTTP 403).
	KindForbidden

	// KindServer covers backend failures (HTTP 5xx).
	KindServer

	// KindClient covers everything else the backend rejects (4xx other
	// than auth).
	KindClient
)

// String returns a human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// Error variables for common failures.
var (
	// ErrUnauthorized indicates the backend rejected the session or token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
)

// APIError is a classified request failure.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.Status > 0 && e.Message != "":
		return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.Kind, e.Status, e.Message)
	case e.Status > 0:
		return fmt.Sprintf("api error [%s] (HTTP %d)", e.Kind, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("api error [%s]: %v", e.Kind, e.Cause)
	default:
		return fmt.Sprintf("api error [%s]: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying error, if any.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the user retrying the same action could
// plausibly succeed.
func (e *APIError) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// Kind extracts the classification from any error returned by this
// package. Unclassified errors report as KindNetwork, the conservative
// default.
func Kind(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// classifyStatus converts a non-2xx response into an APIError.
func classifyStatus(status int, body []byte) *APIError {
	msg := ""
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Detail != "" {
			msg = eb.Detail
		} else if eb.Error != "" {
			msg = eb.Error
		}
	}

	e := &APIError{Status: status, Message: msg}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuth
		e.Cause = ErrUnauthorized
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindClient
		e.Cause = ErrNotFound
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindClient
	}
	return e
}

// classifyTransport converts a transport-level failure into an APIError.
// Context cancellation passes through unwrapped so callers can detect a
// deliberate abort.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &APIError{Kind: KindNetwork, Cause: err}
}
