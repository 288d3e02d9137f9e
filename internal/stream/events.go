// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream consumes chunked streaming responses from the advisor
// backend and turns them into an ordered sequence of typed events.
//
// The wire format is a sequence of newline-delimited frames of the form
// "data: <json>", each carrying a "type" discriminator. The consumer owns
// delta-versus-full-content reconciliation and always hands callers the
// current accumulated content, so the caller never tracks which wire
// convention an endpoint uses.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// FRAME TYPES
// =============================================================================

// Frame type discriminators recognized on the wire. Any other value is
// logged and ignored, never fatal to the stream.
const (
	frameTypeContent  = "content"
	frameTypeIntent   = "enrollment_intent"
	frameTypeComplete = "complete"
	frameTypeError    = "error"
)

// frame is the wire-level shape of a single streamed event.
type frame struct {
	Type string `json:"type"`

	// content frames carry either a delta to append or a full
	// replacement; the pointer distinguishes "absent" from "empty".
	Content     string  `json:"content,omitempty"`
	FullContent *string `json:"full_content,omitempty"`

	// enrollment_intent frames
	Intent *IntentPayload `json:"intent,omitempty"`

	// complete frames
	Response *completeResponse `json:"response,omitempty"`

	// error frames
	Error string `json:"error,omitempty"`
}

// completeResponse is the server-confirmed final message carried by a
// complete frame.
type completeResponse struct {
	MessageID       string   `json:"message_id,omitempty"`
	ConversationID  string   `json:"conversation_id,omitempty"`
	Content         string   `json:"content,omitempty"`
	ConfidenceScore float64  `json:"confidence_score,omitempty"`
	Sources         []string `json:"sources,omitempty"`
}

// parseFrame decodes one raw data payload into a frame.
func parseFrame(data []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	return &f, nil
}

// =============================================================================
// EVENT PAYLOADS
// =============================================================================

// IntentPayload is the side-channel enrollment-interest signal a stream
// may emit mid-response. It never touches the transcript.
type IntentPayload struct {
	Program  string `json:"program,omitempty"`
	ShowForm bool   `json:"show_form"`
}

// CompletePayload carries the final message and metadata delivered once,
// last, when a stream completes.
type CompletePayload struct {
	MessageID       string
	ConversationID  string
	Content         string
	ConfidenceScore float64
	Sources         []string
}

// Handlers is the caller-supplied callback set, one per logical event
// type. Handlers are invoked strictly in frame arrival order. After
// Cancel, no handler is invoked again.
type Handlers struct {
	// OnContent receives the full accumulated content after every
	// content frame, regardless of whether the frame carried a delta
	// or a full replacement.
	OnContent func(accumulated string)

	// OnIntent receives the enrollment-intent side channel, at most
	// once per stream.
	OnIntent func(IntentPayload)

	// OnComplete fires exactly once, last, on a complete frame.
	OnComplete func(CompletePayload)

	// OnError receives a classified error when the stream fails. No
	// further handler is invoked afterward.
	OnError func(error)
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrStreamClosed indicates the connection ended before a complete frame
// arrived.
var ErrStreamClosed = errors.New("stream closed before completion")

// ErrConsumerUsed indicates Run was called on a consumer that already ran.
// Consumers are single-use; create a new one per request.
var ErrConsumerUsed = errors.New("stream consumer already used")

// ServerError is an explicit error frame sent by the backend.
type ServerError struct {
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Message == "" {
		return "server reported a stream error"
	}
	return "server stream error: " + e.Message
}

// TransportError wraps a failure of the underlying connection itself, as
// opposed to an individual frame.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return "stream transport error: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
