// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat keeps the conversation transcript consistent while
// messages are optimistic, streaming, or failing.
//
// The transcript obeys one structural rule at all times: at most one
// streaming draft exists, and it is always the last message. Everything
// else here exists to preserve that rule across sends, stream events,
// failures, and history loads.
package chat

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/advisor-tui/internal/model"
	"github.com/campuskit/advisor-tui/internal/stream"
)

// FailureNotice is the transcript-visible text shown when a reply fails
// mid-stream. Partial content is replaced, never left dangling.
const FailureNotice = "Sorry, something went wrong while answering. Please try again."

// mergeWindow bounds how far apart timestamps may be for an optimistic
// local message to be matched with its server-confirmed copy.
const mergeWindow = 5 * time.Second

// Reconciler applies transcript mutations while preserving the
// single-draft rule. All methods are safe for concurrent use; stream
// callbacks and UI reads race freely against it.
type Reconciler struct {
	mu         sync.Mutex
	transcript *model.Transcript
	logger     *zap.Logger

	// onChange fires after every mutation, outside the lock, so a UI
	// can re-render.
	onChange func()
}

// NewReconciler creates a reconciler over an empty transcript.
func NewReconciler(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		transcript: model.NewTranscript(model.TempConversationID),
		logger:     logger,
	}
}

// OnChange registers the mutation callback.
func (r *Reconciler) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// notify invokes the change callback. Callers must NOT hold r.mu.
func (r *Reconciler) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Transcript returns a snapshot copy: same message pointers, stable
// slice. Messages are treated as immutable once handed out except
// through reconciler methods.
func (r *Reconciler) Transcript() *model.Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := model.NewTranscript(r.transcript.ConversationID)
	snap.Messages = append(snap.Messages, r.transcript.Messages...)
	snap.UpdatedAt = r.transcript.UpdatedAt
	return snap
}

// ConversationID returns the current conversation identity, which may
// still be the placeholder.
func (r *Reconciler) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.ConversationID
}

// =============================================================================
// LOADING
// =============================================================================

// LoadInitial replaces the transcript with server history, merging in
// any local optimistic messages the server copy does not know yet. A
// local provisional message whose sender and content match a server
// message within the merge window is considered confirmed and adopts
// the server identity; others are re-appended after the history.
func (r *Reconciler) LoadInitial(server *model.Transcript) {
	r.mu.Lock()

	var pending []*model.Message
	for _, m := range r.transcript.Messages {
		if model.IsProvisional(m.ID) && !m.Streaming {
			pending = append(pending, m)
		}
	}

	merged := model.NewTranscript(server.ConversationID)
	merged.Messages = append(merged.Messages, server.Messages...)
	merged.UpdatedAt = server.UpdatedAt

	for _, local := range pending {
		if confirmedIn(merged, local) {
			continue
		}
		merged.Append(local)
	}

	r.transcript = merged
	r.mu.Unlock()
	r.notify()
}

// confirmedIn reports whether a server message already covers the local
// optimistic one.
func confirmedIn(t *model.Transcript, local *model.Message) bool {
	for _, m := range t.Messages {
		if m.Sender != local.Sender || m.Content != local.Content {
			continue
		}
		d := m.CreatedAt.Sub(local.CreatedAt)
		if d < 0 {
			d = -d
		}
		if d <= mergeWindow {
			return true
		}
	}
	return false
}

// =============================================================================
// SENDING
// =============================================================================

// AppendUserMessage adds the visitor's message optimistically, under a
// provisional identity the server response later replaces.
func (r *Reconciler) AppendUserMessage(content string) *model.Message {
	m := model.NewUserMessage(content)

	r.mu.Lock()
	r.transcript.Append(m)
	r.mu.Unlock()
	r.notify()
	return m
}

// ConfirmUserMessage swaps a provisional user message's identity for the
// server-assigned one.
func (r *Reconciler) ConfirmUserMessage(provisionalID, serverID string) {
	r.mu.Lock()
	if m := r.transcript.ByID(provisionalID); m != nil {
		m.ID = serverID
	}
	r.mu.Unlock()
	r.notify()
}

// BeginAssistantDraft appends the streaming placeholder the reply will
// fill. Any stale draft left by an interrupted stream is removed first,
// so the single-draft rule holds even across failures that never
// reached a terminal callback.
func (r *Reconciler) BeginAssistantDraft() *model.Message {
	draft := model.NewDraftMessage()

	r.mu.Lock()
	r.dropDraftLocked()
	r.transcript.Append(draft)
	r.mu.Unlock()
	r.notify()
	return draft
}

// dropDraftLocked removes any streaming draft, wherever it sits. A
// superseded send leaves its stale draft behind the newer user message,
// so the whole slice is scanned, not just the tail. Callers hold r.mu.
func (r *Reconciler) dropDraftLocked() {
	kept := r.transcript.Messages[:0]
	for _, m := range r.transcript.Messages {
		if m.Streaming {
			r.logger.Debug("dropped stale draft", zap.String("id", m.ID))
			continue
		}
		kept = append(kept, m)
	}
	r.transcript.Messages = kept
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// ApplyContent replaces the draft's content with the stream's current
// accumulated text. Content arriving after the draft is gone (a late
// callback from a superseded stream) is ignored.
func (r *Reconciler) ApplyContent(accumulated string) {
	r.mu.Lock()
	d := r.transcript.Draft()
	if d == nil {
		r.mu.Unlock()
		return
	}
	d.Content = accumulated
	r.transcript.UpdatedAt = time.Now()
	r.mu.Unlock()
	r.notify()
}

// Finalize converts the draft into the server-confirmed reply.
func (r *Reconciler) Finalize(payload stream.CompletePayload) {
	r.mu.Lock()
	d := r.transcript.Draft()
	if d == nil {
		r.mu.Unlock()
		return
	}
	if payload.MessageID != "" {
		d.ID = payload.MessageID
	}
	d.Content = payload.Content
	d.ConfidenceScore = payload.ConfidenceScore
	d.Sources = payload.Sources
	d.Streaming = false
	r.transcript.UpdatedAt = time.Now()

	if payload.ConversationID != "" && !r.transcript.HasRealID() {
		r.transcript.ConversationID = payload.ConversationID
	}
	r.mu.Unlock()
	r.notify()
}

// Fail converts the draft into an error notice. The partial content is
// discarded so a half-answer is never presented as a reply.
func (r *Reconciler) Fail() {
	r.mu.Lock()
	d := r.transcript.Draft()
	if d == nil {
		r.mu.Unlock()
		return
	}
	d.Content = FailureNotice
	d.IsError = true
	d.Streaming = false
	r.transcript.UpdatedAt = time.Now()
	r.mu.Unlock()
	r.notify()
}

// DiscardDraft removes the draft without a trace, for cancellation.
func (r *Reconciler) DiscardDraft() {
	r.mu.Lock()
	r.dropDraftLocked()
	r.mu.Unlock()
	r.notify()
}

// AdoptConversationID retrofits the real conversation identity once the
// backend assigns one. A transcript that already has a real identity
// keeps it.
func (r *Reconciler) AdoptConversationID(id string) {
	r.mu.Lock()
	if id != "" && !r.transcript.HasRealID() {
		r.transcript.ConversationID = id
	}
	r.mu.Unlock()
	r.notify()
}

// =============================================================================
// RATING
// =============================================================================

// SetRating records feedback locally. Only finalized assistant messages
// accept a rating; everything else is a silent no-op and reports false.
func (r *Reconciler) SetRating(messageID string, rating model.Rating) bool {
	r.mu.Lock()
	m := r.transcript.ByID(messageID)
	if m == nil || !m.Ratable() {
		r.mu.Unlock()
		return false
	}
	m.Rating = rating
	r.mu.Unlock()
	r.notify()
	return true
}
