// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// CONSUMER STATE
// =============================================================================

// State is the lifecycle phase of a Consumer.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateErrored
	StateCancelled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions are possible.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

// OpenFunc issues the streaming request and returns the response body.
// The transport layer supplies this; the consumer owns the read loop.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// =============================================================================
// CONSUMER
// =============================================================================

// Consumer drives one streaming response from connection to terminal
// state and dispatches typed events to caller-supplied handlers.
//
// Guarantees:
//   - events are delivered strictly in frame arrival order
//   - OnComplete fires at most once, and always last
//   - after Cancel, no handler fires again, regardless of buffered data
//   - Cancel is idempotent and silent (no completion or error callback)
//
// A Consumer is single-use: create a new one per request.
type Consumer struct {
	mu         sync.Mutex
	state      State
	cancel     context.CancelFunc
	intentSent bool

	acc      strings.Builder
	handlers Handlers
	logger   *zap.Logger
}

// NewConsumer creates a consumer with the given handler set.
func NewConsumer(h Handlers, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		state:    StateIdle,
		handlers: h,
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Accumulated returns the full content received so far.
func (c *Consumer) Accumulated() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc.String()
}

// Cancel aborts the underlying transport and silences all further
// callbacks. Cancelling a consumer that already reached a terminal state
// is a no-op.
func (c *Consumer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.terminal() {
		return
	}
	c.state = StateCancelled
	if c.cancel != nil {
		c.cancel()
	}
}

// Run opens the stream and processes frames until a terminal state is
// reached. It blocks; callers that need concurrency run it in a
// goroutine. The returned error mirrors what OnError received, and is
// nil for completion and for cancellation (cancellation is silent by
// contract).
func (c *Consumer) Run(ctx context.Context, open OpenFunc) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrConsumerUsed
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	defer cancel()

	body, err := open(ctx)
	if err != nil {
		return c.fail(&TransportError{Err: err})
	}
	defer body.Close()

	// First chunk is on its way; decoding starts now.
	c.mu.Lock()
	if c.state == StateCancelled {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStreaming
	c.mu.Unlock()

	reader := NewFrameReader(body)
	for {
		data, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				// Closure before a complete frame is an error.
				return c.fail(ErrStreamClosed)
			}
			return c.fail(&TransportError{Err: err})
		}

		f, err := parseFrame(data)
		if err != nil {
			// A single malformed frame is never fatal.
			c.logger.Warn("skipping malformed stream frame", zap.Error(err))
			continue
		}

		done, err := c.dispatch(f)
		if done || err != nil {
			return err
		}
	}
}

// dispatch folds one frame into consumer state and invokes the matching
// handler. Returns done=true when a terminal frame was handled.
func (c *Consumer) dispatch(f *frame) (done bool, err error) {
	switch f.Type {
	case frameTypeContent:
		c.mu.Lock()
		if c.state != StateStreaming {
			c.mu.Unlock()
			return true, nil
		}
		if f.FullContent != nil {
			// Full-replacement convention: the frame carries the
			// entire content so far.
			c.acc.Reset()
			c.acc.WriteString(*f.FullContent)
		} else {
			c.acc.WriteString(f.Content)
		}
		accumulated := c.acc.String()
		handler := c.handlers.OnContent
		c.mu.Unlock()
		if handler != nil {
			handler(accumulated)
		}
		return false, nil

	case frameTypeIntent:
		c.mu.Lock()
		if c.state != StateStreaming || c.intentSent || f.Intent == nil {
			c.mu.Unlock()
			return false, nil
		}
		c.intentSent = true
		payload := *f.Intent
		handler := c.handlers.OnIntent
		c.mu.Unlock()
		if handler != nil {
			handler(payload)
		}
		return false, nil

	case frameTypeComplete:
		c.mu.Lock()
		if c.state != StateStreaming {
			c.mu.Unlock()
			return true, nil
		}
		c.state = StateCompleted
		payload := CompletePayload{Content: c.acc.String()}
		if f.Response != nil {
			payload.MessageID = f.Response.MessageID
			payload.ConversationID = f.Response.ConversationID
			payload.ConfidenceScore = f.Response.ConfidenceScore
			payload.Sources = f.Response.Sources
			if f.Response.Content != "" {
				payload.Content = f.Response.Content
			}
		}
		handler := c.handlers.OnComplete
		c.mu.Unlock()
		if handler != nil {
			handler(payload)
		}
		return true, nil

	case frameTypeError:
		return true, c.fail(&ServerError{Message: f.Error})

	default:
		// Unknown discriminators are a deliberate, logged no-op.
		c.logger.Debug("ignoring unknown stream frame type",
			zap.String("type", f.Type))
		return false, nil
	}
}

// fail transitions to Errored and notifies the error handler, unless the
// consumer was cancelled (cancellation swallows everything) or already
// terminal.
func (c *Consumer) fail(err error) error {
	c.mu.Lock()
	if c.state.terminal() {
		c.mu.Unlock()
		return nil
	}
	c.state = StateErrored
	handler := c.handlers.OnError
	c.mu.Unlock()

	if handler != nil {
		handler(err)
	}
	return err
}
