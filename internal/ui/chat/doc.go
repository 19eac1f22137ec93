// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the interactive chat screen of the Echo TUI.

The screen is a Bubble Tea model over the session store. It never keeps its
own copy of chat state: every store mutation, including those made by the
dispatcher or by another process through the device watcher, arrives as a
StoreChangedMsg and the screen re-renders from a fresh snapshot.

# Layout

	header      Echo | chat name                 identity | backend | online
	sidebar     chat list, newest first (toggle with ctrl+s)
	messages    scrollable bubbles, user on the right
	typing      "Echo is typing" while a reply is pending
	input       message line, or rename/edit/confirm prompts
	status      notices, personality and key hints

# Input

Plain text is sent to Echo. Lines starting with "/" run slash commands from
the commands package, the same set the plain REPL offers.
*/
package chat
