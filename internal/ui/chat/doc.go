// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// The view is a thin projection over the engine: the chat controller
// owns sending and streaming, the reconciler owns the transcript, and
// this model only renders and forwards input. Engine goroutines push
// TranscriptChangedMsg and NoticeMsg through tea.Program.Send; the main
// wiring lives in the program entry point.
package chat
