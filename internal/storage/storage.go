// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chats for the current identity.
//
// Persistence has two implementations. Local keeps guest chats in the device
// store; Remote keeps a signed-in user's chats in the shared "chats" table,
// with every read and write scoped to that user. Backends picks the right one
// for an identity so callers never branch on sign-in state themselves.
//
// # Usage
//
//	backends := storage.NewBackends(deviceStore, db, logger)
//	p, err := backends.For(identity)
//	chats, err := p.LoadAll(ctx)
//	err = p.SaveChat(ctx, chat)
package storage

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/storage/device"
)

// Backend kinds reported by Persistence.Kind.
const (
	KindLocal  = "local"
	KindRemote = "remote"
)

// Persistence stores chats for one identity.
type Persistence interface {
	// Kind is KindLocal or KindRemote.
	Kind() string
	// LoadAll returns every chat keyed by id. An empty map is not an error.
	LoadAll(ctx context.Context) (map[string]*model.Chat, error)
	SaveChat(ctx context.Context, chat *model.Chat) error
	DeleteChat(ctx context.Context, id string) error
	// LoadLastChatID returns the last active chat id, or "" if none.
	LoadLastChatID(ctx context.Context) (string, error)
	SaveLastChatID(ctx context.Context, id string) error
}

// Clearer is implemented by backends that can drop everything they hold.
type Clearer interface {
	Clear(ctx context.Context) error
}

// ChatError represents a persistence error.
// It implements the error interface and can be compared using errors.Is.
type ChatError struct {
	Message string
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing chat errors.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrForeignChat is returned when a chat id is owned by another user.
	ErrForeignChat = &ChatError{Message: "chat belongs to another user"}

	// ErrNoRemote is returned when a signed-in identity has no row store configured.
	ErrNoRemote = &ChatError{Message: "remote chat storage not configured"}

	// ErrInvalidChat is returned for nil chats or chats without an id.
	ErrInvalidChat = &ChatError{Message: "invalid chat"}
)

// Backends selects the Persistence for an identity.
type Backends struct {
	device device.Store
	db     *gorm.DB
	logger zerolog.Logger
}

// NewBackends wires the device store and the optional row store. db may be
// nil, in which case signed-in identities get ErrNoRemote.
func NewBackends(store device.Store, db *gorm.DB, logger zerolog.Logger) *Backends {
	return &Backends{device: store, db: db, logger: logger}
}

// For returns the backend for identity.
func (b *Backends) For(identity model.Identity) (Persistence, error) {
	if identity.IsGuest() {
		return NewLocal(b.device, b.logger), nil
	}
	if b.db == nil {
		return nil, ErrNoRemote
	}
	return NewRemote(b.db, identity, b.logger), nil
}

// Guest returns the local backend regardless of identity.
func (b *Backends) Guest() *Local {
	return NewLocal(b.device, b.logger)
}

// HasRemote reports whether a row store is configured.
func (b *Backends) HasRemote() bool {
	return b.db != nil
}

func validChat(chat *model.Chat) error {
	if chat == nil || chat.ID == "" {
		return ErrInvalidChat
	}
	return nil
}

// IsForeign reports whether err means the chat id is owned by someone else.
func IsForeign(err error) bool {
	return errors.Is(err, ErrForeignChat)
}
