// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the in-memory chats of the current identity and the
// active chat selection.
//
// Every mutation runs on one goroutine against the latest committed state, so
// two callers can never overwrite each other with stale copies. Public methods
// block until their mutation is applied and are safe for concurrent use.
// Reads return deep copies.
//
// Durable writes are queued in mutation order and performed by a second
// goroutine. A failed write is logged and otherwise ignored; the in-memory
// state stays authoritative. Flush waits for the queue to drain.
//
// # Key Types
//
//   - Store: the chat state and its operations
//   - Snapshot: a consistent copy of the state for rendering
//   - Selector: picks the persistence backend for an identity
//
// # Usage
//
//	store := session.New(backends, identity, session.WithLogger(logger))
//	if err := store.Open(ctx); err != nil { ... }
//	defer store.Close(ctx)
//
//	id, _ := store.CreateChat()
//	_ = store.RenameChat(id, "Trip ideas")
package session
