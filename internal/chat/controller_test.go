// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/advisor-tui/internal/api"
	"github.com/campuskit/advisor-tui/internal/model"
	"github.com/campuskit/advisor-tui/internal/session"
	"github.com/campuskit/advisor-tui/internal/stream"
)

// fakeBackend is a minimal advisor backend for controller tests.
type fakeBackend struct {
	t            *testing.T
	streamFrames []string
	streamStatus int
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /conversations", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"conversation_id":"conv_1","message_id":"m_user_1"}`)
	})
	mux.HandleFunc("POST /sessions/sync", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, r *http.Request) {
		if f.streamStatus != 0 {
			w.WriteHeader(f.streamStatus)
			return
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range f.streamFrames {
			fmt.Fprintf(w, "data: %s\n", frame)
			flusher.Flush()
		}
	})
	return mux
}

func newTestController(t *testing.T, backend *fakeBackend) *Controller {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	sessions, err := session.NewStore(filepath.Join(t.TempDir(), "session.json"), nil, nil)
	require.NoError(t, err)

	client := api.NewClient(server.URL, sessions, nil)
	sessions.WithSyncer(client)
	return NewController(client, sessions, nil)
}

func lastMessage(c *Controller) *model.Message {
	return c.Reconciler().Transcript().Last()
}

func TestController_SendFullFlow(t *testing.T) {
	backend := &fakeBackend{t: t, streamFrames: []string{
		`{"type":"content","content":"We offer "}`,
		`{"type":"content","content":"nursing."}`,
		`{"type":"complete","response":{"message_id":"m_ai_1","conversation_id":"conv_1","content":"We offer nursing."}}`,
	}}
	c := newTestController(t, backend)

	require.NoError(t, c.Send(context.Background(), "what programs do you offer?"))

	assert.Eventually(t, func() bool {
		last := lastMessage(c)
		return last != nil && !last.Streaming && last.ID == "m_ai_1"
	}, 2*time.Second, 10*time.Millisecond)

	tr := c.Reconciler().Transcript()
	assert.Equal(t, "conv_1", tr.ConversationID)
	require.Equal(t, 2, tr.Len())
	assert.Equal(t, "m_user_1", tr.Messages[0].ID, "optimistic id replaced by server id")
	assert.Equal(t, "We offer nursing.", tr.Messages[1].Content)
}

func TestController_SendEmptyRejected(t *testing.T) {
	c := newTestController(t, &fakeBackend{t: t})
	assert.ErrorIs(t, c.Send(context.Background(), "   "), ErrEmptyMessage)
	assert.Equal(t, 0, c.Reconciler().Transcript().Len())
}

func TestController_StreamFailureShowsNotice(t *testing.T) {
	backend := &fakeBackend{t: t, streamFrames: []string{
		`{"type":"content","content":"part"}`,
		`{"type":"error","error":"model unavailable"}`,
	}}
	c := newTestController(t, backend)

	require.NoError(t, c.Send(context.Background(), "hello"))

	assert.Eventually(t, func() bool {
		last := lastMessage(c)
		return last != nil && last.IsError
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, FailureNotice, lastMessage(c).Content)
}

func TestController_StreamOpenFailureShowsNotice(t *testing.T) {
	backend := &fakeBackend{t: t, streamStatus: http.StatusServiceUnavailable}
	c := newTestController(t, backend)

	require.NoError(t, c.Send(context.Background(), "hello"))

	assert.Eventually(t, func() bool {
		last := lastMessage(c)
		return last != nil && last.IsError
	}, 2*time.Second, 10*time.Millisecond)
}

func TestController_SessionBoundToConversation(t *testing.T) {
	backend := &fakeBackend{t: t, streamFrames: []string{
		`{"type":"complete","response":{"conversation_id":"conv_1"}}`,
	}}
	c := newTestController(t, backend)

	require.NoError(t, c.Send(context.Background(), "hello"))

	assert.Eventually(t, func() bool {
		return c.sessions.Get().ConversationID == "conv_1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestController_IntentHookFires(t *testing.T) {
	backend := &fakeBackend{t: t, streamFrames: []string{
		`{"type":"enrollment_intent","intent":{"program":"nursing","show_form":true}}`,
		`{"type":"complete"}`,
	}}
	c := newTestController(t, backend)

	intents := make(chan stream.IntentPayload, 1)
	c.OnIntent(func(p stream.IntentPayload) { intents <- p })

	require.NoError(t, c.Send(context.Background(), "I want to enroll"))

	select {
	case p := <-intents:
		assert.Equal(t, "nursing", p.Program)
		assert.True(t, p.ShowForm)
	case <-time.After(2 * time.Second):
		t.Fatal("intent hook never fired")
	}
}

func TestController_CancelRemovesDraft(t *testing.T) {
	// The stream hangs after its first delta until the client aborts.
	streaming := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /conversations", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"conversation_id":"conv_1","message_id":"m_user_1"}`)
	})
	mux.HandleFunc("POST /sessions/sync", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"thinking\"}\n")
		flusher.Flush()
		close(streaming)
		<-r.Context().Done()
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	sessions, err := session.NewStore(filepath.Join(t.TempDir(), "session.json"), nil, nil)
	require.NoError(t, err)
	c := NewController(api.NewClient(server.URL, sessions, nil), sessions, nil)

	require.NoError(t, c.Send(context.Background(), "hello"))
	select {
	case <-streaming:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never started")
	}

	c.CancelActive()

	tr := c.Reconciler().Transcript()
	require.Equal(t, 1, tr.Len(), "draft removed, user message kept")
	assert.Equal(t, model.SenderUser, tr.Last().Sender)

	// The cancelled stream never produces a failure notice.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.Reconciler().Transcript().Len())
}

func TestController_SecondSendSupersedesFirst(t *testing.T) {
	backend := &fakeBackend{t: t, streamFrames: []string{
		`{"type":"content","content":"answer"}`,
		`{"type":"complete","response":{"message_id":"m_ai_2"}}`,
	}}
	c := newTestController(t, backend)

	require.NoError(t, c.Send(context.Background(), "first"))
	require.NoError(t, c.Send(context.Background(), "second"))

	assert.Eventually(t, func() bool {
		last := lastMessage(c)
		return last != nil && !last.Streaming && !last.IsError
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, draftCount(c.Reconciler().Transcript()),
		"no draft left behind despite overlapping sends")
}

func TestController_SendCancelsInFlightReply(t *testing.T) {
	// The first stream hangs mid-reply; the second send must abort it,
	// drop its draft, and stream the fresh answer cleanly.
	var calls int32
	streaming := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /conversations", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"conversation_id":"conv_1","message_id":"m_user_1"}`)
	})
	mux.HandleFunc("POST /sessions/sync", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			flusher := w.(http.Flusher)
			fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"stale partial\"}\n")
			flusher.Flush()
			close(streaming)
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, "data: {\"type\":\"complete\",\"response\":{\"message_id\":\"m_ai_2\",\"content\":\"fresh answer\"}}\n")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	sessions, err := session.NewStore(filepath.Join(t.TempDir(), "session.json"), nil, nil)
	require.NoError(t, err)
	c := NewController(api.NewClient(server.URL, sessions, nil), sessions, nil)

	require.NoError(t, c.Send(context.Background(), "first"))
	select {
	case <-streaming:
	case <-time.After(2 * time.Second):
		t.Fatal("first stream never started")
	}

	require.NoError(t, c.Send(context.Background(), "second"))

	assert.Eventually(t, func() bool {
		last := lastMessage(c)
		return last != nil && last.Content == "fresh answer"
	}, 2*time.Second, 10*time.Millisecond)

	tr := c.Reconciler().Transcript()
	assert.Equal(t, 0, draftCount(tr))
	for _, m := range tr.Messages {
		assert.NotContains(t, m.Content, "stale partial",
			"superseded stream must leave no trace")
	}
}
