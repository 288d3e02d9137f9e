// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the advisor TUI.
//
// The palette is defined once in colors.go using lipgloss.AdaptiveColor so
// every style adapts to light and dark terminal backgrounds automatically.
// Theme derives all concrete component styles from the palette and the
// current terminal dimensions; callers rebuild it on resize via SetSize.
//
// Accessibility: status messages always carry ASCII shape indicators
// ([OK], [X], [!], [i]) in addition to color, so state remains readable
// for colorblind users and on monochrome terminals.
package styles
