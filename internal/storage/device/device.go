// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package device is the key/value store kept on the user's machine. It holds
// guest chats and the last active chat pointer, one JSON value per key.
//
// Two implementations exist: FileStore keeps every key in a single JSON
// document and SQLiteStore keeps one row per key. Neither coordinates
// concurrent writers across processes; the last writer wins.
package device

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("device store closed")

// Store is a small persistent key/value store.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key.
	Set(key string, value []byte) error
	// Delete removes keys; missing keys are ignored.
	Delete(keys ...string) error
	// Keys lists every stored key.
	Keys() ([]string, error)
	Close() error
}

// Open returns the store for backend ("file" or "sqlite") at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path)
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown device backend %q", backend)
	}
}
