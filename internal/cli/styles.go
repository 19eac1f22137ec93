// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for the echo line-oriented commands.
//
// Colours come from the TUI palette so the REPL and the full screen agree.
// Everything degrades to plain text when stdout is not a terminal or
// NO_COLOR is set.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

var (
	// TitleStyle is used for the REPL banner
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Purple)

	// PromptStyle colours the input prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Blue).
			Bold(true)

	// SenderStyle labels Echo's replies
	SenderStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	// WarningStyle is used for offline, timeout and failure bubbles
	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// ErrorStyle is used for command errors
	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	// SuccessStyle is used for confirmations
	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	// DimStyle is used for hints
	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// SeparatorStyle is used for visual separators
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(styles.Overlay)
)

// RenderSeparator renders a horizontal rule, 70 columns unless given.
func RenderSeparator(width ...int) string {
	w := 70
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return RenderConditional(SeparatorStyle, strings.Repeat("-", w))
}

// RenderConditional styles text only when colours are enabled.
func RenderConditional(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}

// renderBubble formats one message for line output.
func renderBubble(msg model.Message) string {
	switch {
	case msg.IsError():
		return RenderConditional(WarningStyle, msg.Text)
	case msg.IsUser():
		return RenderConditional(PromptStyle, msg.Sender.String()+": ") + msg.Text
	default:
		return RenderConditional(SenderStyle, msg.Sender.String()+": ") + msg.Text
	}
}
