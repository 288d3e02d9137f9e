// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/campuskit/advisor-tui/internal/ui/styles"
)

// =============================================================================
// OUTPUT STYLES
// =============================================================================

var (
	infoStyle    = lipgloss.NewStyle().Foreground(styles.TextSecondary)
	commandStyle = lipgloss.NewStyle().Foreground(styles.Emerald)
	warningStyle = lipgloss.NewStyle().Foreground(styles.Amber)
	errorStyle   = lipgloss.NewStyle().Foreground(styles.Rose).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)
)

// renderWidth is the wrap width for markdown output.
const renderWidth = 80

// markdownRenderer builds a glamour renderer matched to the terminal.
// Returns nil when markdown rendering should be skipped (piped output
// or renderer construction failure); callers fall back to raw text.
func markdownRenderer() *glamour.TermRenderer {
	if !IsStdoutTTY() {
		return nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err != nil {
		return nil
	}
	return r
}

// renderMarkdown renders content as markdown, or returns it unchanged
// when no renderer is available.
func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n") + "\n"
}
