// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/advisor-tui/internal/model"
	"github.com/campuskit/advisor-tui/internal/stream"
)

func draftCount(t *model.Transcript) int {
	n := 0
	for _, m := range t.Messages {
		if m.Streaming {
			n++
		}
	}
	return n
}

func TestReconciler_SingleDraftAlwaysLast(t *testing.T) {
	r := NewReconciler(nil)

	r.AppendUserMessage("first question")
	r.BeginAssistantDraft()

	// A second draft while the first never terminated: the stale one is
	// replaced, not stacked.
	r.AppendUserMessage("second question")
	r.BeginAssistantDraft()

	tr := r.Transcript()
	assert.Equal(t, 1, draftCount(tr))
	last := tr.Last()
	require.NotNil(t, last)
	assert.True(t, last.Streaming, "draft sits at the end")
}

func TestReconciler_StreamLifecycle(t *testing.T) {
	r := NewReconciler(nil)
	r.AppendUserMessage("what programs do you offer?")
	r.BeginAssistantDraft()

	r.ApplyContent("We offer")
	r.ApplyContent("We offer nursing")
	assert.Equal(t, "We offer nursing", r.Transcript().Last().Content)
	assert.True(t, r.Transcript().Last().Streaming)

	r.Finalize(stream.CompletePayload{
		MessageID:       "msg_9",
		ConversationID:  "conv_7",
		Content:         "We offer nursing and business.",
		ConfidenceScore: 0.87,
		Sources:         []string{"catalog"},
	})

	last := r.Transcript().Last()
	assert.False(t, last.Streaming)
	assert.Equal(t, "msg_9", last.ID)
	assert.Equal(t, "We offer nursing and business.", last.Content)
	assert.InDelta(t, 0.87, last.ConfidenceScore, 0.001)
	assert.Equal(t, "conv_7", r.ConversationID())
}

func TestReconciler_FailureReplacesPartialContent(t *testing.T) {
	r := NewReconciler(nil)
	r.AppendUserMessage("hello")
	r.BeginAssistantDraft()
	r.ApplyContent("partial ans")

	r.Fail()

	last := r.Transcript().Last()
	assert.Equal(t, FailureNotice, last.Content)
	assert.True(t, last.IsError)
	assert.False(t, last.Streaming)
	assert.NotContains(t, last.Content, "partial")
}

func TestReconciler_LateContentAfterFinalizeIgnored(t *testing.T) {
	r := NewReconciler(nil)
	r.BeginAssistantDraft()
	r.Finalize(stream.CompletePayload{Content: "done"})

	r.ApplyContent("late delta from a dead stream")
	assert.Equal(t, "done", r.Transcript().Last().Content)
}

func TestReconciler_DiscardDraft(t *testing.T) {
	r := NewReconciler(nil)
	r.AppendUserMessage("hello")
	r.BeginAssistantDraft()
	r.ApplyContent("partial")

	r.DiscardDraft()

	tr := r.Transcript()
	assert.Equal(t, 0, draftCount(tr))
	require.Equal(t, 1, tr.Len())
	assert.Equal(t, model.SenderUser, tr.Last().Sender)

	// Discarding again is harmless.
	r.DiscardDraft()
	assert.Equal(t, 1, r.Transcript().Len())
}

func TestReconciler_AdoptConversationID(t *testing.T) {
	r := NewReconciler(nil)
	assert.Equal(t, model.TempConversationID, r.ConversationID())

	r.AdoptConversationID("conv_1")
	assert.Equal(t, "conv_1", r.ConversationID())

	// A real identity is never overwritten.
	r.AdoptConversationID("conv_2")
	assert.Equal(t, "conv_1", r.ConversationID())
}

func TestReconciler_ConfirmUserMessage(t *testing.T) {
	r := NewReconciler(nil)
	m := r.AppendUserMessage("hello")
	assert.True(t, model.IsProvisional(m.ID))

	r.ConfirmUserMessage(m.ID, "msg_server_1")
	assert.Equal(t, "msg_server_1", r.Transcript().Messages[0].ID)
}

func TestReconciler_LoadInitialMergesOptimisticMessages(t *testing.T) {
	r := NewReconciler(nil)
	now := time.Now()

	// Two optimistic messages: one the server already has, one it does
	// not know yet.
	confirmed := r.AppendUserMessage("already on server")
	confirmed.CreatedAt = now
	pending := r.AppendUserMessage("still pending")
	pending.CreatedAt = now

	server := model.NewTranscript("conv_1")
	server.Append(&model.Message{
		ID: "m1", Sender: model.SenderUser,
		Content: "already on server", CreatedAt: now.Add(2 * time.Second),
	})
	server.Append(&model.Message{
		ID: "m2", Sender: model.SenderAI,
		Content: "a reply", CreatedAt: now.Add(3 * time.Second),
	})

	r.LoadInitial(server)

	tr := r.Transcript()
	assert.Equal(t, "conv_1", tr.ConversationID)
	require.Equal(t, 3, tr.Len(), "confirmed duplicate dropped, pending kept")
	assert.Equal(t, "still pending", tr.Last().Content)
}

func TestReconciler_RatingRules(t *testing.T) {
	r := NewReconciler(nil)
	user := r.AppendUserMessage("hello")
	draft := r.BeginAssistantDraft()

	assert.False(t, r.SetRating(user.ID, model.RatingHelpful), "user messages are not ratable")
	assert.False(t, r.SetRating(draft.ID, model.RatingHelpful), "drafts are not ratable")

	r.Finalize(stream.CompletePayload{MessageID: "msg_1", Content: "reply"})
	assert.True(t, r.SetRating("msg_1", model.RatingHelpful))

	m := r.Transcript().ByID("msg_1")
	require.NotNil(t, m)
	assert.Equal(t, model.RatingHelpful, m.Rating)
}

func TestReconciler_OnChangeFires(t *testing.T) {
	r := NewReconciler(nil)
	var calls int
	r.OnChange(func() { calls++ })

	r.AppendUserMessage("hello")
	r.BeginAssistantDraft()
	r.ApplyContent("x")
	assert.Equal(t, 3, calls)
}
