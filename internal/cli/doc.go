// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the echo command tree.
//
// Running echo without a subcommand opens the interactive chat: the Bubble
// Tea screen when stdout is a terminal, or a line-based REPL with --plain (or
// when output is piped). Every other command performs one operation against
// the same session store and exits.
//
// # Commands Overview
//
//	echo                          Interactive chat
//	echo ask <text...>            Send one message, print Echo's reply
//	echo chats list|new|switch|rename|delete|clear|export
//	echo messages edit|delete     Edit or remove one message
//	echo login --token <jwt>      Store a session token and sign in
//	echo logout                   Forget the session token
//	echo whoami                   Show the signed-in identity
//	echo config show|path|init    Inspect or create the config file
//
// # Global Flags
//
//	--config PATH     Config file (default ~/.echo/config.toml)
//	--log-level LVL   Override log.level
//	--offline         Force offline mode
//	--plain           Use the line REPL instead of the full screen
package cli
