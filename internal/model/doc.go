// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// # Key Types
//
//   - Chat: a named, ordered message log addressed by a synthetic id
//   - Message: one chat bubble with a stable id, a sender and its text
//   - Sender: "You" or "Echo"
//   - Personality: the response-style selector sent with every completion
//   - ErrorKind: marks synthetic error bubbles (offline, timeout, failure)
//
// # Usage
//
// Create a chat with the default greeting:
//
//	chat := model.NewChat(model.NewChatID(model.PrefixGuest, time.Now()))
//	chat.Append(model.NewUserMessage("hello"))
//
// Chat ids have the form "<guest|user>-<epoch-millis>"; use IDGenerator to
// keep them unique within one process.
package model
