// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/campuskit/advisor-tui/internal/api"
	engine "github.com/campuskit/advisor-tui/internal/chat"
	"github.com/campuskit/advisor-tui/internal/notify"
	"github.com/campuskit/advisor-tui/internal/ui/styles"
)

// sendTimeout bounds the blocking part of a send: conversation creation
// and stream startup. Streaming itself is not subject to it.
const sendTimeout = 15 * time.Second

// chromeHeight is the vertical space taken by header, input, and status
// bar around the transcript viewport.
const chromeHeight = 6

// Model is the Bubble Tea model for the chat view.
type Model struct {
	theme *styles.Theme

	// Dimensions
	width  int
	height int
	ready  bool

	// Engine
	ctrl *engine.Controller

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	keyMap   KeyMap

	// Non-blocking toasts, bottom of the screen, auto-dismissed
	toasts []notify.Notice
}

// New creates a new chat model over the given controller.
func New(theme *styles.Theme, ctrl *engine.Controller) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about programs, enrollment, tuition..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 30,
	}
	sp.Style = theme.Spinner

	return Model{
		theme:    theme,
		ctrl:     ctrl,
		viewport: vp,
		input:    ti,
		spinner:  sp,
		keyMap:   DefaultKeyMap(),
	}
}

// Init starts the blink and tick loops.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, toastTickCmd())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.input.Width = msg.Width - 4

		vpHeight := msg.Height - chromeHeight
		if vpHeight < 3 {
			vpHeight = 3
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
		m.ready = true
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TranscriptChangedMsg:
		m.refreshTranscript()
		return m, nil

	case NoticeMsg:
		m.toasts = append(m.toasts, msg.Notice)
		return m, nil

	case IntentMsg:
		text := "It sounds like you may be ready to enroll. An advisor can help you get started."
		if msg.Payload.Program != "" {
			text = "Interested in " + msg.Payload.Program + "? An advisor can help you get started."
		}
		m.toasts = append(m.toasts, notify.Notice{
			Key:       "enrollment-intent",
			Kind:      notify.KindStatus,
			Message:   text,
			CreatedAt: time.Now(),
			Duration:  notify.DefaultDuration,
		})
		return m, nil

	case SendFailedMsg:
		m.toasts = append(m.toasts, notify.Notice{
			Key:       "send-failed",
			Kind:      notify.KindError,
			Message:   friendlyError(msg.Err),
			CreatedAt: time.Now(),
			Duration:  notify.ErrorDuration,
		})
		return m, nil

	case toastTickMsg:
		m.toasts = pruneExpired(m.toasts)
		return m, toastTickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.ctrl.CancelActive()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.CancelResp):
		// Silent no-op when nothing is streaming.
		m.ctrl.CancelActive()
		m.refreshTranscript()
		return m, nil

	case key.Matches(msg, m.keyMap.Send):
		content := m.input.Value()
		m.input.Reset()
		return m, m.sendCmd(content)

	case key.Matches(msg, m.keyMap.ScrollUp), key.Matches(msg, m.keyMap.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sendCmd submits the visitor's message off the UI loop. The controller
// returns once streaming is underway; transcript updates arrive through
// TranscriptChangedMsg.
func (m Model) sendCmd(content string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := ctrl.Send(ctx, content); err != nil {
			if err == engine.ErrEmptyMessage {
				return nil
			}
			return SendFailedMsg{Err: err}
		}
		return nil
	}
}

// refreshTranscript re-renders the transcript into the viewport and
// follows the tail.
func (m *Model) refreshTranscript() {
	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(m.theme, m.ctrl.Reconciler().Transcript()))
	if wasAtBottom || m.ctrl.Streaming() {
		m.viewport.GotoBottom()
	}
}

// friendlyError converts a backend error into visitor-facing text.
func friendlyError(err error) string {
	switch api.Kind(err) {
	case api.KindNetwork:
		return "Connection problem. Check your network and try again."
	case api.KindAuth:
		return "Your sign-in has expired. You can keep chatting as a guest."
	case api.KindForbidden:
		return "You don't have access to that."
	case api.KindServer:
		return "The service is having trouble right now. Please try again shortly."
	default:
		return err.Error()
	}
}

// pruneExpired drops toasts whose display window has passed.
func pruneExpired(toasts []notify.Notice) []notify.Notice {
	kept := toasts[:0]
	for _, t := range toasts {
		if !t.Expired() {
			kept = append(kept, t)
		}
	}
	return kept
}
