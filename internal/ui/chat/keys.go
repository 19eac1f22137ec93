// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the chat screen. Bindings avoid
// the readline keys the input line already uses.
type KeyMap struct {
	Send          key.Binding
	Complete      key.Binding
	Cancel        key.Binding
	Quit          key.Binding
	NewChat       key.Binding
	PrevChat      key.Binding
	NextChat      key.Binding
	Rename        key.Binding
	Delete        key.Binding
	Clear         key.Binding
	EditLast      key.Binding
	Voice         key.Binding
	Personality   key.Binding
	ToggleOffline key.Binding
	Sidebar       key.Binding
	Help          key.Binding
	PageUp        key.Binding
	PageDown      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Complete: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "complete command"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("ctrl+c", "quit"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		PrevChat: key.NewBinding(
			key.WithKeys("alt+up", "alt+k"),
			key.WithHelp("alt+↑", "newer chat"),
		),
		NextChat: key.NewBinding(
			key.WithKeys("alt+down", "alt+j"),
			key.WithHelp("alt+↓", "older chat"),
		),
		Rename: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "rename chat"),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "delete chat"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "clear chat"),
		),
		EditLast: key.NewBinding(
			key.WithKeys("alt+e"),
			key.WithHelp("alt+e", "edit last message"),
		),
		Voice: key.NewBinding(
			key.WithKeys("alt+v"),
			key.WithHelp("alt+v", "dictate"),
		),
		Personality: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("ctrl+t", "next personality"),
		),
		ToggleOffline: key.NewBinding(
			key.WithKeys("alt+o"),
			key.WithHelp("alt+o", "toggle offline"),
		),
		Sidebar: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "chat list"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "help"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.NewChat, k.Sidebar, k.Help, k.Quit}
}

// FullHelp returns every binding, grouped for the help screen.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Complete, k.Voice, k.EditLast, k.Cancel},
		{k.NewChat, k.PrevChat, k.NextChat, k.Rename, k.Delete, k.Clear},
		{k.Personality, k.ToggleOffline, k.Sidebar, k.PageUp, k.PageDown, k.Help, k.Quit},
	}
}
