// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Truncate shortens s to at most maxWidth display cells, appending "..."
// when content is cut. Width is measured in terminal cells, not bytes or
// runes, so CJK and emoji content truncates correctly.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// PadRight pads s with spaces to the given display width.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// FirstLine returns the first line of s with surrounding whitespace removed.
// Used for previews of multi-line message content.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
