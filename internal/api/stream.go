// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OpenStream issues a streaming chat request and returns the raw response
// body for the stream package to consume. The request has no client-side
// timeout; cancel the context to abort.
func (c *Client) OpenStream(ctx context.Context, req StreamRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := readResponse(resp)
		resp.Body.Close()
		apiErr := classifyStatus(resp.StatusCode, body)
		if apiErr.Kind == KindAuth && c.onAuthInvalid != nil {
			c.onAuthInvalid()
		}
		return nil, apiErr
	}

	return resp.Body, nil
}
