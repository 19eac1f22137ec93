// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/echochat/echo/internal/commands"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/storage"
	"github.com/echochat/echo/internal/ui/styles"
	"github.com/echochat/echo/internal/util"
)

// View renders the chat screen.
func (m Model) View() string {
	body := m.viewport.View()
	if m.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderSidebar(m.viewport.Height),
			" ",
			body,
		)
	}

	parts := []string{
		m.renderHeader(),
		body,
		m.renderTyping(),
		m.renderInput(),
	}
	if m.completion.Active() {
		parts = append(parts, m.renderCompletions())
	}
	parts = append(parts, m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// =============================================================================
// HEADER AND STATUS
// =============================================================================

func (m Model) renderHeader() string {
	t := m.theme
	name := model.DefaultChatName
	if c := m.snap.Current(); c != nil {
		name = c.Name
	}
	left := t.HeaderBrand.Render("Echo") + t.HeaderSubtitle.Render(" | ") +
		t.HeaderTitle.Render(util.TruncateWidth(name, 40))

	conn := t.StatusOnline.Render("● online")
	if !m.online {
		conn = t.StatusOffline.Render("○ offline")
	}
	right := t.HeaderSubtitle.Render(m.snap.Identity.Name()+" | "+m.snap.Backend+" | ") + conn

	gap := t.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return t.Header.Width(t.Width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderStatusBar() string {
	t := m.theme
	var left string
	switch {
	case m.notice != "" && m.noticeErr:
		left = t.StatusError.Render(util.SingleLine(m.notice))
	case m.notice != "":
		left = t.StatusNotice.Render(util.SingleLine(m.notice))
	default:
		left = m.help.ShortHelpView(m.keys.ShortHelp())
	}
	right := t.ShortcutDesc.Render(m.snap.Personality.Label())

	gap := t.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return t.StatusBar.Width(t.Width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar(height int) string {
	t := m.theme
	lines := []string{t.SidebarTitle.Render("Chats")}
	inner := styles.SidebarWidth - 2

	for i, meta := range storage.Summarize(m.snap.Chats, m.snap.CurrentID, "") {
		if len(lines) >= height {
			break
		}
		label := util.PadWidth(util.TruncateWidth(strconv.Itoa(i+1)+". "+meta.Name, inner), inner)
		if meta.Current {
			lines = append(lines, t.SidebarItemSelected.Render(label))
		} else {
			lines = append(lines, t.SidebarItem.Render(label))
		}
	}
	return t.Sidebar.Height(height).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// MESSAGES
// =============================================================================

// renderMessages renders the current chat as bubbles, user on the right.
func (m Model) renderMessages() string {
	c := m.snap.Current()
	if c == nil {
		return ""
	}
	t := m.theme
	width := t.ChatWidth(m.sidebarVisible())
	maxBubble := t.BubbleWidth(m.sidebarVisible())

	blocks := make([]string, 0, len(c.Messages))
	for i, msg := range c.Messages {
		style := t.EchoBubble
		switch {
		case msg.IsUser():
			style = t.UserBubble
		case msg.IsError():
			style = t.WarningBubble
		}

		// border and padding take four columns
		textWidth := lipgloss.Width(msg.Text) + 2
		if textWidth > maxBubble-2 {
			textWidth = maxBubble - 2
		}
		label := t.SenderLabel.Render(msg.Sender.String()) + " " +
			t.MessageIndex.Render("#"+strconv.Itoa(i+1))
		block := lipgloss.JoinVertical(lipgloss.Left, label, style.Width(textWidth).Render(msg.Text))

		pos := lipgloss.Left
		if msg.IsUser() {
			pos = lipgloss.Right
		}
		blocks = append(blocks, lipgloss.PlaceHorizontal(width, pos, block))
	}
	return strings.Join(blocks, "\n")
}

func (m Model) renderTyping() string {
	switch {
	case m.listening:
		return m.theme.Typing.Render(m.spinner.View() + " listening")
	case m.typing():
		return m.theme.Typing.Render(m.spinner.View() + " Echo is typing")
	default:
		return ""
	}
}

func (m Model) renderHelp() string {
	t := m.theme
	var sb strings.Builder
	sb.WriteString(t.HeaderTitle.Render("Keys") + "\n\n")
	sb.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	sb.WriteString("\n\n" + t.HeaderTitle.Render("Commands") + "\n\n")
	sb.WriteString(t.HeaderSubtitle.Render(commands.Help(m.registry)))
	return sb.String()
}

// =============================================================================
// INPUT
// =============================================================================

func (m Model) renderInput() string {
	t := m.theme
	var line string
	switch m.mode {
	case modeConfirmDelete:
		name := ""
		if c := m.snap.Current(); c != nil {
			name = c.Name
		}
		line = t.InputMode.Render("Delete \"" + util.TruncateWidth(name, 30) + "\"? (y/n)")
	case modeRename, modeEdit:
		line = t.InputMode.Render(m.input.View())
	default:
		line = m.input.View()
	}
	return t.InputContainer.Width(t.Width).Render(line)
}

func (m Model) renderCompletions() string {
	t := m.theme
	var parts []string
	used := 0
	for i, c := range m.completion.Candidates() {
		w := runewidth.StringWidth(c.Display) + 2
		if used+w > t.Width {
			break
		}
		used += w
		if i == m.completion.Selected() {
			parts = append(parts, t.ShortcutKey.Render(c.Display))
		} else {
			parts = append(parts, t.ShortcutDesc.Render(c.Display))
		}
	}
	return strings.Join(parts, "  ")
}

func lenPrompt(prompt string) int {
	return runewidth.StringWidth(prompt)
}
