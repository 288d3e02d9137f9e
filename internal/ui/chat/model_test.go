// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/advisor-tui/internal/api"
	engine "github.com/campuskit/advisor-tui/internal/chat"
	"github.com/campuskit/advisor-tui/internal/model"
	"github.com/campuskit/advisor-tui/internal/notify"
	"github.com/campuskit/advisor-tui/internal/session"
	"github.com/campuskit/advisor-tui/internal/stream"
	"github.com/campuskit/advisor-tui/internal/ui/styles"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	sessions, err := session.NewStore(filepath.Join(t.TempDir(), "session.json"), nil, nil)
	require.NoError(t, err)
	client := api.NewClient("http://127.0.0.1:1", sessions, nil)
	ctrl := engine.NewController(client, sessions, nil)
	return New(styles.NewTheme(), ctrl)
}

func TestWindowSizeMakesModelReady(t *testing.T) {
	m := newTestModel(t)
	assert.False(t, m.ready)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = updated.(Model)
	assert.True(t, m.ready)
	assert.Equal(t, 100, m.viewport.Width)
	assert.Equal(t, 30-chromeHeight, m.viewport.Height)
}

func TestViewBeforeReady(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, "Loading...", m.View())
}

func TestNoticeBecomesToast(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(NoticeMsg{Notice: notify.Notice{
		Kind:      notify.KindWarning,
		Message:   "session expired",
		CreatedAt: time.Now(),
		Duration:  notify.WarningDuration,
	}})
	m = updated.(Model)
	require.Len(t, m.toasts, 1)

	updated, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = updated.(Model)
	assert.Contains(t, m.View(), "session expired")
}

func TestToastTickPrunesExpired(t *testing.T) {
	m := newTestModel(t)
	m.toasts = []notify.Notice{
		{Message: "old", CreatedAt: time.Now().Add(-time.Minute), Duration: notify.DefaultDuration},
		{Message: "fresh", CreatedAt: time.Now(), Duration: notify.DefaultDuration},
	}

	updated, _ := m.Update(toastTickMsg{Time: time.Now()})
	m = updated.(Model)
	require.Len(t, m.toasts, 1)
	assert.Equal(t, "fresh", m.toasts[0].Message)
}

func TestIntentBecomesToast(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(IntentMsg{Payload: stream.IntentPayload{Program: "Data Science", ShowForm: true}})
	m = updated.(Model)
	require.Len(t, m.toasts, 1)
	assert.Contains(t, m.toasts[0].Message, "Data Science")
}

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", &api.APIError{Kind: api.KindNetwork}, "Connection problem"},
		{"auth", &api.APIError{Kind: api.KindAuth, Status: 401}, "sign-in has expired"},
		{"forbidden", &api.APIError{Kind: api.KindForbidden, Status: 403}, "don't have access"},
		{"server", &api.APIError{Kind: api.KindServer, Status: 500}, "having trouble"},
		{"plain errors classify as network", errors.New("boom"), "Connection problem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, friendlyError(tt.err), tt.want)
		})
	}
}

func TestRenderMessage(t *testing.T) {
	theme := styles.NewTheme()

	user := model.NewUserMessage("how do I enroll?")
	out := renderMessage(theme, user)
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "how do I enroll?")

	reply := &model.Message{
		ID:        "msg_1",
		Sender:    model.SenderAI,
		Content:   "Here is how.",
		CreatedAt: time.Now(),
		Rating:    model.RatingHelpful,
		Sources:   []string{"enrollment-guide"},
	}
	out = renderMessage(theme, reply)
	assert.Contains(t, out, "Advisor")
	assert.Contains(t, out, "[+1]")
	assert.Contains(t, out, "enrollment-guide")
}

func TestRenderTranscriptEmpty(t *testing.T) {
	out := renderTranscript(styles.NewTheme(), model.NewTranscript(model.TempConversationID))
	assert.Contains(t, out, "Ask anything")
}

func TestRenderTranscriptOrdersMessages(t *testing.T) {
	tr := model.NewTranscript(model.TempConversationID)
	tr.Append(model.NewUserMessage("first"))
	tr.Append(&model.Message{ID: "a", Sender: model.SenderAI, Content: "second", CreatedAt: time.Now()})

	out := renderTranscript(styles.NewTheme(), tr)
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
}
