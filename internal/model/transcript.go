// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// TempConversationID is the optimistic sentinel used before the server
// assigns a real conversation id.
const TempConversationID = "temp"

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript is the client-side projection of one conversation. The
// authoritative copy lives server-side; this is what the UI renders.
//
// Invariant: at most one message is in the streaming state at a time,
// and when present it is the last element. The reconciler enforces this.
type Transcript struct {
	ConversationID string     `json:"conversation_id"`
	Messages       []*Message `json:"messages"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewTranscript creates an empty transcript under the given conversation
// id. Callers use TempConversationID until the server assigns a real one.
func NewTranscript(id string) *Transcript {
	return &Transcript{
		ConversationID: id,
		Messages:       make([]*Message, 0),
		UpdatedAt:      time.Now(),
	}
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(msg *Message) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now()
}

// Last returns the final message, or nil if the transcript is empty.
func (t *Transcript) Last() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}

// ByID returns the message with the given id, or nil.
func (t *Transcript) ByID(id string) *Message {
	for _, msg := range t.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// Draft returns the streaming message if one exists. Per the transcript
// invariant it can only be the last element.
func (t *Transcript) Draft() *Message {
	last := t.Last()
	if last != nil && last.Streaming {
		return last
	}
	return nil
}

// HasRealID reports whether the server has assigned a conversation id.
func (t *Transcript) HasRealID() bool {
	return t.ConversationID != "" && t.ConversationID != TempConversationID
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.Messages)
}
