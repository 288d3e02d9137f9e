// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// StartConversation creates a conversation seeded with the visitor's
// first message in one call, so there is no window where an empty
// conversation exists.
func (c *Client) StartConversation(ctx context.Context, req StartConversationRequest) (*StartConversationResponse, error) {
	var resp StartConversationResponse
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &resp); err != nil {
		return nil, err
	}
	c.Invalidate("conversations")
	return &resp, nil
}

// GetConversation fetches a conversation with its full message history.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	path := "/conversations/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns the visitor's conversation summaries, served
// from the read cache when fresh.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.getCached(ctx, "conversations", "/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RateMessage records feedback on an assistant message the visitor owns.
func (c *Client) RateMessage(ctx context.Context, conversationID, messageID string, req RateMessageRequest) error {
	path := fmt.Sprintf("/conversations/%s/messages/%s/rating",
		url.PathEscape(conversationID), url.PathEscape(messageID))
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// RateMessagePublic records feedback without requiring ownership, for
// anonymous sessions whose conversation lives only backend-side.
func (c *Client) RateMessagePublic(ctx context.Context, messageID string, req RateMessageRequest) error {
	path := "/messages/" + url.PathEscape(messageID) + "/rating"
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// =============================================================================
// SESSION + LEADS
// =============================================================================

// SyncSession mirrors the local session record to the backend. Callers
// treat this as fire-and-forget; a failure never blocks the UI.
func (c *Client) SyncSession(ctx context.Context, req SessionSyncRequest) error {
	return c.do(ctx, http.MethodPost, "/sessions/sync", req, nil)
}

// CreateLead submits captured contact details.
func (c *Client) CreateLead(ctx context.Context, req CreateLeadRequest) (*CreateLeadResponse, error) {
	var resp CreateLeadResponse
	if err := c.do(ctx, http.MethodPost, "/leads", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// QUIZZES + PROFILE
// =============================================================================

// ListQuizzes returns the published quizzes, served from the read cache
// when fresh.
func (c *Client) ListQuizzes(ctx context.Context) ([]Quiz, error) {
	var out []Quiz
	if err := c.getCached(ctx, "quizzes", "/quizzes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitQuiz scores a quiz submission.
func (c *Client) SubmitQuiz(ctx context.Context, sub QuizSubmission) (*QuizResult, error) {
	var result QuizResult
	path := "/quizzes/" + url.PathEscape(sub.QuizID) + "/submissions"
	if err := c.do(ctx, http.MethodPost, path, sub, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetProfile fetches the authenticated visitor's account profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
