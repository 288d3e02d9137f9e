// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLE STYLES
	// ==========================================================================

	UserBubble    lipgloss.Style
	AdvisorBubble lipgloss.Style
	ErrorBubble   lipgloss.Style
	SenderLabel   lipgloss.Style
	Timestamp     lipgloss.Style
	RatingMark    lipgloss.Style
	SourceNote    lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar    lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	// ==========================================================================
	// SPINNER AND TOAST STYLES
	// ==========================================================================

	Spinner      lipgloss.Style
	ThinkingText lipgloss.Style
	ToastInfo    lipgloss.Style
	ToastSuccess lipgloss.Style
	ToastWarning lipgloss.Style
	ToastError   lipgloss.Style
}

// NewTheme creates a theme based on the terminal's capabilities.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()

	t := &Theme{
		IsDark:       lipgloss.HasDarkBackground(),
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
		Width:        80,
		Height:       24,
	}
	t.build()
	return t
}

// SetSize updates the theme's layout dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
	t.build()
}

// build derives every style from the palette and current dimensions.
func (t *Theme) build() {
	t.Header = lipgloss.NewStyle().
		Width(t.Width).
		Padding(0, 1).
		Background(SurfaceDim)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.HeaderSubtitle = lipgloss.NewStyle().
		Foreground(TextSecondary)

	bubbleWidth := t.Width - 6
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}

	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1).
		MaxWidth(bubbleWidth)
	t.AdvisorBubble = lipgloss.NewStyle().
		Foreground(AdvisorBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AdvisorBubbleBorder).
		PaddingLeft(1).
		MaxWidth(bubbleWidth)
	t.ErrorBubble = lipgloss.NewStyle().
		Foreground(ErrorBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(ErrorBubbleBorder).
		PaddingLeft(1).
		MaxWidth(bubbleWidth)

	t.SenderLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)
	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.RatingMark = lipgloss.NewStyle().
		Foreground(Emerald)
	t.SourceNote = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.InputContainer = lipgloss.NewStyle().
		Width(t.Width).
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)
	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Width(t.Width).
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)
	t.ThinkingText = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	toast := lipgloss.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder())
	t.ToastInfo = toast.BorderForeground(Cyan).Foreground(Cyan)
	t.ToastSuccess = toast.BorderForeground(Emerald).Foreground(Emerald)
	t.ToastWarning = toast.BorderForeground(Amber).Foreground(Amber)
	t.ToastError = toast.BorderForeground(Rose).Foreground(Rose)
}
