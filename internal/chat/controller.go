// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/advisor-tui/internal/api"
	"github.com/campuskit/advisor-tui/internal/model"
	"github.com/campuskit/advisor-tui/internal/session"
	"github.com/campuskit/advisor-tui/internal/stream"
)

// ErrEmptyMessage indicates the visitor tried to send blank input.
var ErrEmptyMessage = errors.New("message is empty")

// archiveTimeout bounds the background transcript save after a reply
// completes.
const archiveTimeout = 5 * time.Second

// Archiver persists completed transcripts locally. *history.Store
// satisfies it.
type Archiver interface {
	SaveTranscript(ctx context.Context, t *model.Transcript) error
}

// Controller orchestrates a send end to end: session touch, optimistic
// append, conversation creation, stream consumption, and reconciliation.
// UIs drive it and observe results through the reconciler's change
// callback; Send itself returns as soon as the stream is underway.
type Controller struct {
	api      *api.Client
	sessions *session.Store
	rec      *Reconciler
	guard    *stream.ChannelGuard
	archive  Archiver
	logger   *zap.Logger

	onIntent func(stream.IntentPayload)

	mu            sync.Mutex
	activeChannel string
}

// NewController wires a controller over the given backend client and
// session store.
func NewController(client *api.Client, sessions *session.Store, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		api:      client,
		sessions: sessions,
		rec:      NewReconciler(logger),
		guard:    stream.NewChannelGuard(),
		logger:   logger,
	}
}

// WithArchiver enables local transcript persistence after each completed
// reply.
func (c *Controller) WithArchiver(a Archiver) *Controller {
	c.archive = a
	return c
}

// OnIntent registers the enrollment-intent hook.
func (c *Controller) OnIntent(fn func(stream.IntentPayload)) {
	c.mu.Lock()
	c.onIntent = fn
	c.mu.Unlock()
}

// Reconciler exposes the transcript state for UIs.
func (c *Controller) Reconciler() *Reconciler {
	return c.rec
}

// Resume restores the session's active conversation from the backend, if
// one exists. A missing or unreadable conversation is not fatal; the
// visitor simply starts fresh.
func (c *Controller) Resume(ctx context.Context) error {
	rec := c.sessions.Get()
	if rec.ConversationID == "" {
		return nil
	}

	conv, err := c.api.GetConversation(ctx, rec.ConversationID)
	if err != nil {
		c.logger.Warn("failed to resume conversation",
			zap.String("conversation_id", rec.ConversationID),
			zap.Error(err))
		return err
	}
	c.rec.LoadInitial(conv.ToTranscript())
	return nil
}

// Send submits the visitor's message and starts streaming the reply. It
// returns once the stream is underway; transcript updates arrive through
// the reconciler. Sending while a reply is still streaming supersedes
// the in-flight stream.
func (c *Controller) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	if err := c.sessions.Touch(); err != nil {
		c.logger.Warn("failed to touch session", zap.Error(err))
	}

	// Supersede any in-flight reply before the transcript changes, so
	// late events from the old stream can never land on the new draft.
	c.CancelActive()

	userMsg := c.rec.AppendUserMessage(content)

	// A first send creates the conversation seeded with this message,
	// atomically, before any stream starts.
	if !c.rec.Transcript().HasRealID() {
		resp, err := c.api.StartConversation(ctx, api.StartConversationRequest{
			Content:   content,
			SessionID: c.sessions.Get().SessionID,
		})
		if err != nil {
			c.rec.BeginAssistantDraft()
			c.rec.Fail()
			return err
		}
		if resp.MessageID != "" {
			c.rec.ConfirmUserMessage(userMsg.ID, resp.MessageID)
		}
		c.rec.AdoptConversationID(resp.ConversationID)
		if err := c.sessions.SetConversationID(resp.ConversationID); err != nil {
			c.logger.Warn("failed to persist conversation id", zap.Error(err))
		}
	}

	conversationID := c.rec.ConversationID()
	c.rec.BeginAssistantDraft()

	consumer := stream.NewConsumer(c.handlers(conversationID), c.logger)

	c.mu.Lock()
	c.activeChannel = conversationID
	c.mu.Unlock()
	c.guard.Begin(conversationID, consumer)

	go func() {
		defer c.guard.Finish(conversationID, consumer)
		err := consumer.Run(context.Background(), func(ctx context.Context) (io.ReadCloser, error) {
			return c.api.OpenStream(ctx, api.StreamRequest{
				Content:        content,
				ConversationID: conversationID,
			})
		})
		if err != nil {
			c.logger.Warn("stream ended with error",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
		}
	}()
	return nil
}

// handlers bridges stream events into transcript mutations.
func (c *Controller) handlers(conversationID string) stream.Handlers {
	return stream.Handlers{
		OnContent: c.rec.ApplyContent,
		OnIntent: func(p stream.IntentPayload) {
			c.mu.Lock()
			fn := c.onIntent
			c.mu.Unlock()
			if fn != nil {
				fn(p)
			}
		},
		OnComplete: func(p stream.CompletePayload) {
			c.rec.Finalize(p)
			if p.ConversationID != "" && p.ConversationID != conversationID {
				if err := c.sessions.SetConversationID(p.ConversationID); err != nil {
					c.logger.Warn("failed to persist conversation id", zap.Error(err))
				}
			}
			c.archiveTranscript()
		},
		OnError: func(error) {
			c.rec.Fail()
		},
	}
}

// archiveTranscript saves the current transcript in the background.
func (c *Controller) archiveTranscript() {
	if c.archive == nil {
		return
	}
	snap := c.rec.Transcript()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := c.archive.SaveTranscript(ctx, snap); err != nil {
			c.logger.Warn("failed to archive transcript", zap.Error(err))
		}
	}()
}

// CancelActive aborts the in-flight reply, if any, and removes its
// draft. Safe to call when nothing is streaming.
func (c *Controller) CancelActive() {
	c.mu.Lock()
	channel := c.activeChannel
	c.mu.Unlock()
	if channel == "" {
		return
	}
	c.guard.Cancel(channel)
	c.rec.DiscardDraft()
}

// Streaming reports whether a reply is currently in flight.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	channel := c.activeChannel
	c.mu.Unlock()
	if channel == "" {
		return false
	}
	return c.guard.Active(channel) != nil
}

// RateMessage records feedback locally and forwards it to the backend.
// Only finalized assistant messages are ratable.
func (c *Controller) RateMessage(ctx context.Context, messageID string, helpful bool, feedback string) error {
	rating := model.RatingHelpful
	if !helpful {
		rating = model.RatingNotHelpful
	}
	if !c.rec.SetRating(messageID, rating) {
		return errors.New("message is not ratable")
	}

	req := api.RateMessageRequest{Helpful: helpful, Feedback: feedback}
	conversationID := c.rec.ConversationID()
	if conversationID == model.TempConversationID {
		return c.api.RateMessagePublic(ctx, messageID, req)
	}
	return c.api.RateMessage(ctx, conversationID, messageID, req)
}
