// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for transcripts and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAI    Sender = "ai"
	SenderAgent Sender = "agent"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// DisplayName returns a human-readable label for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderAI:
		return "Advisor"
	case SenderAgent:
		return "Agent"
	default:
		return string(s)
	}
}

// IsAssistant reports whether the sender is the AI or a human agent.
// Rating and copy actions are offered only for assistant messages.
func (s Sender) IsAssistant() bool {
	return s == SenderAI || s == SenderAgent
}

// =============================================================================
// RATING TYPE
// =============================================================================

// Rating is the binary helpfulness judgment a user can attach to a
// finalized assistant message.
type Rating int

const (
	RatingNone Rating = iota
	RatingHelpful
	RatingNotHelpful
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// provisionalPrefix marks client-generated ids that have not yet been
// confirmed by the server.
const provisionalPrefix = "tmp_"

// Message is a single entry in a conversation transcript.
//
// During streaming the content field is mutated incrementally by the
// reconciler; once finalized it is immutable.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`

	// Content (may contain markdown)
	Content string `json:"content"`

	// Streaming state (not persisted)
	Streaming bool `json:"-"`

	// Enrichment, attached to finalized assistant messages only
	ConfidenceScore float64  `json:"confidence_score,omitempty"`
	Sources         []string `json:"sources,omitempty"`
	Rating          Rating   `json:"rating,omitempty"`

	// IsError marks a locally synthesized failure placeholder rather
	// than genuine content.
	IsError bool `json:"is_error,omitempty"`
}

// NewUserMessage creates an optimistic user message with a provisional id.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        NewProvisionalID(),
		Sender:    SenderUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewDraftMessage creates the streaming placeholder for an in-flight
// assistant reply.
func NewDraftMessage() *Message {
	return &Message{
		ID:        NewProvisionalID(),
		Sender:    SenderAI,
		CreatedAt: time.Now(),
		Streaming: true,
	}
}

// NewErrorMessage creates a locally synthesized failure placeholder.
func NewErrorMessage(content string) *Message {
	return &Message{
		ID:        NewProvisionalID(),
		Sender:    SenderAI,
		Content:   content,
		CreatedAt: time.Now(),
		IsError:   true,
	}
}

// NewProvisionalID returns a client-generated temporary message id.
func NewProvisionalID() string {
	return provisionalPrefix + uuid.NewString()
}

// IsProvisional reports whether an id was generated client-side and is
// still awaiting server confirmation.
func IsProvisional(id string) bool {
	return len(id) >= len(provisionalPrefix) && id[:len(provisionalPrefix)] == provisionalPrefix
}

// Ratable reports whether the message accepts a rating. Drafts, user
// messages, and error placeholders are not ratable.
func (m *Message) Ratable() bool {
	return m.Sender.IsAssistant() && !m.Streaming && !m.IsError
}

// Preview returns a truncated single-line preview of the content.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
