// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

const (
	// SidebarWidth is the width of the chat list column.
	SidebarWidth = 28

	// minBubbleWidth keeps bubbles readable on narrow terminals.
	minBubbleWidth = 20
)

// Theme holds all the styled components for the application.
type Theme struct {
	IsDark bool

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header         lipgloss.Style
	HeaderBrand    lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style

	// ==========================================================================
	// CHAT LIST STYLES
	// ==========================================================================

	Sidebar             lipgloss.Style
	SidebarTitle        lipgloss.Style
	SidebarItem         lipgloss.Style
	SidebarItemSelected lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLE STYLES
	// ==========================================================================

	UserBubble    lipgloss.Style
	EchoBubble    lipgloss.Style
	WarningBubble lipgloss.Style
	SenderLabel   lipgloss.Style
	MessageIndex  lipgloss.Style
	Typing        lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	InputMode      lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar     lipgloss.Style
	StatusOnline  lipgloss.Style
	StatusOffline lipgloss.Style
	StatusNotice  lipgloss.Style
	StatusError   lipgloss.Style
	ShortcutKey   lipgloss.Style
	ShortcutDesc  lipgloss.Style
}

// NewTheme creates a theme for the detected terminal background.
func NewTheme() *Theme {
	t := &Theme{
		IsDark: lipgloss.HasDarkBackground(),
		Width:  80,
		Height: 24,
	}
	t.initStyles()
	return t
}

// SetSize records the terminal dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// ChatWidth is the width left for messages when the sidebar is shown.
func (t *Theme) ChatWidth(sidebar bool) int {
	w := t.Width
	if sidebar {
		w -= SidebarWidth + 1
	}
	if w < minBubbleWidth {
		w = minBubbleWidth
	}
	return w
}

// BubbleWidth is the maximum outer width of one message bubble.
func (t *Theme) BubbleWidth(sidebar bool) int {
	w := t.ChatWidth(sidebar) * 3 / 4
	if w < minBubbleWidth {
		w = minBubbleWidth
	}
	return w
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Bold(true)
	t.HeaderSubtitle = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Sidebar = lipgloss.NewStyle().
		Width(SidebarWidth).
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)
	t.SidebarTitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true).
		MarginBottom(1)
	t.SidebarItem = lipgloss.NewStyle().
		Foreground(TextSecondary).
		PaddingLeft(1)
	t.SidebarItemSelected = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Blue).
		Bold(true).
		PaddingLeft(1)

	bubble := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)
	t.UserBubble = bubble.
		Foreground(UserBubbleFg).
		BorderForeground(UserBubbleBorder)
	t.EchoBubble = bubble.
		Foreground(EchoBubbleFg).
		BorderForeground(EchoBubbleBorder)
	t.WarningBubble = bubble.
		Foreground(WarningBubbleFg).
		BorderForeground(WarningBubbleBorder)
	t.SenderLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)
	t.MessageIndex = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.Typing = lipgloss.NewStyle().
		Foreground(Purple).
		Italic(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)
	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Blue).
		Bold(true)
	t.InputMode = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusOnline = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)
	t.StatusOffline = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)
	t.StatusNotice = lipgloss.NewStyle().
		Foreground(Emerald)
	t.StatusError = lipgloss.NewStyle().
		Foreground(Rose)
	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Blue).
		Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)
}
