// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/storage/device"
)

// Device store keys.
const (
	KeyGuestChats      = "guestChats"
	KeyLastGuestChatID = "lastGuestChatId"

	// Written by older clients; imported once, then removed.
	KeyLegacyChats      = "chats"
	KeyLegacyLastChatID = "lastChatId"
	KeyLegacyHistory    = "chatHistory"
)

// storedChat is the device encoding of a chat; the map key is the id.
type storedChat struct {
	Name     string          `json:"name"`
	Messages []model.Message `json:"messages"`
}

// Local is the guest backend over the device store. Every save rewrites the
// whole guestChats value.
type Local struct {
	store  device.Store
	logger zerolog.Logger

	// serializes read-modify-write cycles within this process
	mu sync.Mutex
}

// NewLocal creates the guest backend.
func NewLocal(store device.Store, logger zerolog.Logger) *Local {
	return &Local{
		store:  store,
		logger: logger.With().Str("backend", KindLocal).Logger(),
	}
}

// Kind implements Persistence.
func (l *Local) Kind() string { return KindLocal }

// LoadAll implements Persistence. When no guest chats exist yet, chats written
// under the legacy keys are imported first.
func (l *Local) LoadAll(ctx context.Context) (map[string]*model.Chat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chats, found, assigned, err := l.readAssigned()
	if err != nil {
		return nil, err
	}
	if assigned {
		// ids are assigned on decode; store them so they stay stable
		if err := l.write(chats); err != nil {
			l.logger.Warn().Err(err).Msg("store assigned message ids")
		}
	}
	if !found || len(chats) == 0 {
		imported, err := l.importLegacy()
		if err != nil {
			l.logger.Warn().Err(err).Msg("legacy chat import failed")
		} else if len(imported) > 0 {
			return imported, nil
		}
	}
	return chats, nil
}

func (l *Local) read() (map[string]*model.Chat, bool, error) {
	chats, found, _, err := l.readAssigned()
	return chats, found, err
}

func (l *Local) readAssigned() (chats map[string]*model.Chat, found, assigned bool, err error) {
	raw, ok, err := l.store.Get(KeyGuestChats)
	if err != nil {
		return nil, false, false, fmt.Errorf("read guest chats: %w", err)
	}
	if !ok {
		return map[string]*model.Chat{}, false, false, nil
	}
	chats, assigned, err = decodeChatMap(raw)
	if err != nil {
		return nil, true, false, fmt.Errorf("decode guest chats: %w", err)
	}
	return chats, true, assigned, nil
}

func (l *Local) write(chats map[string]*model.Chat) error {
	stored := make(map[string]storedChat, len(chats))
	for id, c := range chats {
		stored[id] = storedChat{Name: c.Name, Messages: c.Messages}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode guest chats: %w", err)
	}
	if err := l.store.Set(KeyGuestChats, data); err != nil {
		return fmt.Errorf("write guest chats: %w", err)
	}
	return nil
}

// SaveChat implements Persistence.
func (l *Local) SaveChat(ctx context.Context, chat *model.Chat) error {
	if err := validChat(chat); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	chats, _, err := l.read()
	if err != nil {
		return err
	}
	chats[chat.ID] = chat.Clone()
	return l.write(chats)
}

// DeleteChat implements Persistence.
func (l *Local) DeleteChat(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	chats, found, err := l.read()
	if err != nil {
		return err
	}
	if _, ok := chats[id]; !ok || !found {
		return nil
	}
	delete(chats, id)
	return l.write(chats)
}

// LoadLastChatID implements Persistence.
func (l *Local) LoadLastChatID(ctx context.Context) (string, error) {
	raw, ok, err := l.store.Get(KeyLastGuestChatID)
	if err != nil || !ok {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("decode last guest chat id: %w", err)
	}
	return id, nil
}

// SaveLastChatID implements Persistence.
func (l *Local) SaveLastChatID(ctx context.Context, id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return l.store.Set(KeyLastGuestChatID, data)
}

// Clear implements Clearer by removing every guest key.
func (l *Local) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(KeyGuestChats, KeyLastGuestChatID)
}

// importLegacy converts the multi-chat "chats" map, or failing that the
// single-thread "chatHistory" array, into guest chats and removes the legacy
// keys. It returns nil when there was nothing to import.
func (l *Local) importLegacy() (map[string]*model.Chat, error) {
	chats := map[string]*model.Chat{}
	lastID := ""

	if raw, ok, err := l.store.Get(KeyLegacyChats); err != nil {
		return nil, err
	} else if ok {
		legacy, _, err := decodeChatMap(raw)
		if err != nil {
			return nil, fmt.Errorf("decode legacy chats: %w", err)
		}
		chats = legacy
		if raw, ok, _ := l.store.Get(KeyLegacyLastChatID); ok {
			_ = json.Unmarshal(raw, &lastID)
		}
	}

	if len(chats) == 0 {
		raw, ok, err := l.store.Get(KeyLegacyHistory)
		if err != nil {
			return nil, err
		}
		if ok {
			var msgs []model.Message
			if err := json.Unmarshal(raw, &msgs); err != nil {
				return nil, fmt.Errorf("decode legacy history: %w", err)
			}
			if len(msgs) > 0 {
				model.EnsureIDs(msgs)
				id := model.NewIDGenerator().Next(model.PrefixGuest)
				chats[id] = &model.Chat{ID: id, Name: model.DefaultChatName, Messages: msgs}
				lastID = id
			}
		}
	}

	if len(chats) == 0 {
		return nil, nil
	}
	if err := l.write(chats); err != nil {
		return nil, err
	}
	if lastID != "" {
		if _, ok := chats[lastID]; ok {
			if err := l.SaveLastChatID(context.Background(), lastID); err != nil {
				return nil, err
			}
		}
	}
	if err := l.store.Delete(KeyLegacyChats, KeyLegacyLastChatID, KeyLegacyHistory); err != nil {
		l.logger.Warn().Err(err).Msg("remove legacy keys")
	}
	l.logger.Info().Int("chats", len(chats)).Msg("imported legacy chats")
	return chats, nil
}

// decodeChatMap accepts values that are either {name, messages} objects or
// bare message arrays. Messages without an id get one and assigned is set.
func decodeChatMap(raw []byte) (chats map[string]*model.Chat, assigned bool, err error) {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, false, err
	}
	chats = make(map[string]*model.Chat, len(values))
	for id, v := range values {
		chat := &model.Chat{ID: id}
		var sc storedChat
		if err := json.Unmarshal(v, &sc); err == nil {
			chat.Name, chat.Messages = sc.Name, sc.Messages
		} else {
			var msgs []model.Message
			if err := json.Unmarshal(v, &msgs); err != nil {
				return nil, false, fmt.Errorf("chat %s: %w", id, err)
			}
			chat.Messages = msgs
		}
		if chat.Name == "" {
			chat.Name = model.DefaultChatName
		}
		if chat.Messages == nil {
			chat.Messages = []model.Message{}
		}
		if model.EnsureIDs(chat.Messages) {
			assigned = true
		}
		chats[id] = chat
	}
	return chats, assigned, nil
}
