// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the plain-terminal chat interface.
//
// It is the non-TUI frontend: a readline loop (liner) over the same
// engine the Bubble Tea interface uses. Replies stream to stdout as
// deltas and, on capable terminals, are re-rendered as markdown via
// glamour once complete. Slash commands cover history, quizzes,
// rating, and session inspection.
package cli
