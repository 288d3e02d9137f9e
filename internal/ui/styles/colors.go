// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the advisor TUI.
// All colors use Lip Gloss AdaptiveColor for automatic light/dark detection.
package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// PRIMARY ACCENT COLORS
// =============================================================================

// Purple - Primary accent, advisor messages, selections
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - Brand color, info, commands, user highlights
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - Success states, confirmed ratings
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// =============================================================================
// SEMANTIC COLORS
// =============================================================================

// Rose - Errors, failed sends, critical alerts
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warnings, expired sign-in, caution states
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// =============================================================================
// SURFACE COLORS
// =============================================================================

// Surface - Main background
var Surface = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

// SurfaceDim - Slightly darker/lighter surface for headers/footers
var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}

// Overlay - Borders, separators, subtle backgrounds
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// =============================================================================
// TEXT COLORS
// =============================================================================

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextSecondary - Labels, less prominent text
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

// TextMuted - Hints, timestamps, very subtle text
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// MESSAGE BUBBLE COLORS
// =============================================================================

// User message bubble - Blue tones
var UserBubbleFg = lipgloss.AdaptiveColor{Light: "#1E40AF", Dark: "#E0F2FE"}
var UserBubbleBorder = lipgloss.AdaptiveColor{Light: "#3B82F6", Dark: "#3B82F6"}

// Advisor message bubble - Soft purple/violet tones (muted, not saturated)
var AdvisorBubbleFg = lipgloss.AdaptiveColor{Light: "#5B4B8A", Dark: "#E9E4F5"}
var AdvisorBubbleBorder = lipgloss.AdaptiveColor{Light: "#C4B5FD", Dark: "#A78BFA"}

// Failure placeholder bubble - Rose tones
var ErrorBubbleFg = lipgloss.AdaptiveColor{Light: "#991B1B", Dark: "#FECACA"}
var ErrorBubbleBorder = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// =============================================================================
// ACCESSIBILITY: Shapes and high contrast for colorblind users
// =============================================================================

// StatusIndicatorSet contains text/shape indicators for status states.
// These symbols provide visual cues beyond color for colorblind accessibility.
type StatusIndicatorSet struct {
	Success string
	Error   string
	Warning string
	Info    string
}

// StatusIndicators provides accessible shape/text indicators alongside colors.
// ASCII-only for maximum terminal compatibility.
var StatusIndicators = StatusIndicatorSet{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
}

// High contrast pairs, distinct even for red-green color blindness.
var SuccessHighContrast = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#22C55E"}
var ErrorHighContrast = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
var WarningHighContrast = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
var InfoHighContrast = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#3B82F6"}

// RenderSuccess renders a success message with indicator and high contrast green.
func RenderSuccess(message string) string {
	style := lipgloss.NewStyle().Foreground(SuccessHighContrast).Bold(true)
	return style.Render(StatusIndicators.Success + " " + message)
}

// RenderError renders an error message with indicator and high contrast red.
func RenderError(message string) string {
	style := lipgloss.NewStyle().Foreground(ErrorHighContrast).Bold(true)
	return style.Render(StatusIndicators.Error + " " + message)
}

// RenderWarning renders a warning message with indicator and high contrast amber.
func RenderWarning(message string) string {
	style := lipgloss.NewStyle().Foreground(WarningHighContrast).Bold(true)
	return style.Render(StatusIndicators.Warning + " " + message)
}

// RenderInfo renders an info message with indicator and high contrast blue.
func RenderInfo(message string) string {
	style := lipgloss.NewStyle().Foreground(InfoHighContrast).Bold(true)
	return style.Render(StatusIndicators.Info + " " + message)
}
