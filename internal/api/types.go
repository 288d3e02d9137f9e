// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"time"

	"github.com/campuskit/advisor-tui/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// MessageDTO is a single message as the backend represents it.
type MessageDTO struct {
	ID              string    `json:"id"`
	Sender          string    `json:"sender"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	ConfidenceScore float64   `json:"confidence_score,omitempty"`
	Sources         []string  `json:"sources,omitempty"`
	Rating          *int      `json:"rating,omitempty"`
}

// ToModel converts a wire message into the engine's message type.
func (d MessageDTO) ToModel() *model.Message {
	m := &model.Message{
		ID:              d.ID,
		Sender:          model.Sender(d.Sender),
		Content:         d.Content,
		CreatedAt:       d.CreatedAt,
		ConfidenceScore: d.ConfidenceScore,
		Sources:         d.Sources,
	}
	if d.Rating != nil {
		switch *d.Rating {
		case 1:
			m.Rating = model.RatingHelpful
		case -1:
			m.Rating = model.RatingNotHelpful
		}
	}
	return m
}

// Conversation is a full conversation with its message history.
type Conversation struct {
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Messages  []MessageDTO `json:"messages"`
}

// ToTranscript converts a conversation into an engine transcript.
func (c Conversation) ToTranscript() *model.Transcript {
	t := model.NewTranscript(c.ID)
	for _, m := range c.Messages {
		t.Append(m.ToModel())
	}
	t.UpdatedAt = c.UpdatedAt
	return t
}

// ConversationSummary is one row of a conversation listing.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Preview      string    `json:"preview,omitempty"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StartConversationRequest creates a conversation seeded with the
// visitor's first message, atomically.
type StartConversationRequest struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
}

// StartConversationResponse carries the new conversation's identity.
type StartConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
}

// StreamRequest asks the backend to generate a reply as a stream.
type StreamRequest struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// RateMessageRequest records binary feedback on an assistant message.
type RateMessageRequest struct {
	Helpful  bool   `json:"helpful"`
	Feedback string `json:"feedback,omitempty"`
}

// SessionSyncRequest mirrors local session state to the backend.
type SessionSyncRequest struct {
	SessionID      string         `json:"session_id"`
	SessionType    string         `json:"session_type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	LeadID         string         `json:"lead_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	ExtraData      map[string]any `json:"extra_data,omitempty"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// CreateLeadRequest submits contact details captured from the visitor.
type CreateLeadRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	Program        string `json:"program,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// CreateLeadResponse identifies the stored lead.
type CreateLeadResponse struct {
	LeadID string `json:"lead_id"`
}

// Quiz is a published readiness quiz.
type Quiz struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Questions   []QuizQuestion `json:"questions"`
}

// QuizQuestion is one question with its answer options.
type QuizQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// QuizSubmission carries a visitor's answers, keyed by question id.
type QuizSubmission struct {
	QuizID  string         `json:"quiz_id"`
	Answers map[string]int `json:"answers"`
}

// QuizResult is the scored outcome of a submission.
type QuizResult struct {
	QuizID         string `json:"quiz_id"`
	Score          int    `json:"score"`
	MaxScore       int    `json:"max_score"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Profile is the authenticated visitor's account view.
type Profile struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
