// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/campuskit/advisor-tui/internal/notify"
	"github.com/campuskit/advisor-tui/internal/stream"
)

// =============================================================================
// MESSAGES
// =============================================================================

// TranscriptChangedMsg signals that the reconciler mutated the transcript.
// The engine runs its own goroutines, so the change callback forwards this
// through tea.Program.Send rather than a tea.Cmd.
type TranscriptChangedMsg struct{}

// NoticeMsg delivers a notification toast from the engine.
type NoticeMsg struct {
	Notice notify.Notice
}

// IntentMsg delivers the enrollment-interest side channel signal.
type IntentMsg struct {
	Payload stream.IntentPayload
}

// SendFailedMsg reports that a send could not be started.
type SendFailedMsg struct {
	Err error
}

// toastTickMsg drives toast expiry.
type toastTickMsg struct {
	Time time.Time
}

// toastTickCmd schedules the next toast expiry check.
func toastTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return toastTickMsg{Time: t}
	})
}
