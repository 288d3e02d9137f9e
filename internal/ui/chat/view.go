// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/campuskit/advisor-tui/internal/model"
	"github.com/campuskit/advisor-tui/internal/notify"
	"github.com/campuskit/advisor-tui/internal/ui/styles"
)

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderThinking())
	b.WriteString(m.renderToasts())
	b.WriteString(m.theme.InputContainer.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// renderHeader draws the title bar with the conversation reference.
func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("CampusKit Advisor")

	sub := "new conversation"
	if id := m.ctrl.Reconciler().ConversationID(); id != model.TempConversationID {
		sub = runewidth.Truncate("conversation "+id, m.width/2, "...")
	}
	return m.theme.Header.Render(title + "  " + m.theme.HeaderSubtitle.Render(sub))
}

// renderThinking shows the spinner line while a reply is streaming and
// no content has arrived yet.
func (m Model) renderThinking() string {
	if !m.ctrl.Streaming() {
		return ""
	}
	draft := m.ctrl.Reconciler().Transcript().Draft()
	if draft == nil || draft.Content != "" {
		return ""
	}
	return m.spinner.View() + " " + m.theme.ThinkingText.Render("Advisor is thinking...") + "\n"
}

// renderToasts draws active notices above the input area.
func (m Model) renderToasts() string {
	if len(m.toasts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range m.toasts {
		style := m.theme.ToastInfo
		mark := styles.StatusIndicators.Info
		switch t.Kind {
		case notify.KindError:
			style = m.theme.ToastError
			mark = styles.StatusIndicators.Error
		case notify.KindWarning:
			style = m.theme.ToastWarning
			mark = styles.StatusIndicators.Warning
		case notify.KindSuccess:
			style = m.theme.ToastSuccess
			mark = styles.StatusIndicators.Success
		}
		b.WriteString(style.Render(mark + " " + t.Message))
		b.WriteString("\n")
	}
	return b.String()
}

// renderStatusBar draws the shortcut hints.
func (m Model) renderStatusBar() string {
	pairs := [][2]string{
		{"enter", "send"},
		{"esc", "stop reply"},
		{"pgup/pgdn", "scroll"},
		{"ctrl+c", "quit"},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, m.theme.ShortcutKey.Render(p[0])+" "+m.theme.ShortcutDesc.Render(p[1]))
	}
	return m.theme.StatusBar.Render(strings.Join(parts, "  "))
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// renderTranscript renders the full conversation for the viewport.
func renderTranscript(theme *styles.Theme, t *model.Transcript) string {
	if t.Len() == 0 {
		return theme.ThinkingText.Render("Ask anything about programs, enrollment, or campus life.")
	}
	parts := make([]string, 0, t.Len())
	for _, msg := range t.Messages {
		parts = append(parts, renderMessage(theme, msg))
	}
	return strings.Join(parts, "\n\n")
}

// renderMessage renders one transcript entry as a labeled bubble.
func renderMessage(theme *styles.Theme, msg *model.Message) string {
	label := theme.SenderLabel.Render(msg.Sender.DisplayName())
	stamp := theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))
	head := label + " " + stamp

	switch {
	case msg.Rating == model.RatingHelpful:
		head += " " + theme.RatingMark.Render("[+1]")
	case msg.Rating == model.RatingNotHelpful:
		head += " " + theme.RatingMark.Render("[-1]")
	}

	bubble := theme.AdvisorBubble
	if msg.Sender == model.SenderUser {
		bubble = theme.UserBubble
	}
	if msg.IsError {
		bubble = theme.ErrorBubble
	}

	content := msg.Content
	if msg.Streaming && content != "" {
		content += " █" // block cursor on the live draft
	}

	body := bubble.Render(content)
	if len(msg.Sources) > 0 {
		body += "\n" + theme.SourceNote.Render("Sources: "+strings.Join(msg.Sources, ", "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, head, body)
}
