// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/storage/device"
)

func newDevice(t *testing.T) device.Store {
	t.Helper()
	store, err := device.NewFileStore(filepath.Join(t.TempDir(), "device.json"))
	require.NoError(t, err)
	return store
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenDB("sqlite", ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func chatWith(id string, texts ...string) *model.Chat {
	c := model.NewChat(id)
	for _, txt := range texts {
		c.Append(model.NewUserMessage(txt))
	}
	return c
}

// =============================================================================
// LOCAL BACKEND
// =============================================================================

func TestLocal_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(newDevice(t), zerolog.Nop())

	chats, err := local.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)

	a := chatWith("guest-1", "hello")
	b := chatWith("guest-2")
	require.NoError(t, local.SaveChat(ctx, a))
	require.NoError(t, local.SaveChat(ctx, b))
	a.Name = "Renamed"
	require.NoError(t, local.SaveChat(ctx, a))

	chats, err = local.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "Renamed", chats["guest-1"].Name)
	assert.Equal(t, a.Messages, chats["guest-1"].Messages)

	require.NoError(t, local.DeleteChat(ctx, "guest-2"))
	require.NoError(t, local.DeleteChat(ctx, "missing"))
	chats, err = local.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	assert.ErrorIs(t, local.SaveChat(ctx, nil), ErrInvalidChat)
}

func TestLocal_LastChatID(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(newDevice(t), zerolog.Nop())

	id, err := local.LoadLastChatID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, local.SaveLastChatID(ctx, "guest-9"))
	id, err = local.LoadLastChatID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "guest-9", id)
}

func TestLocal_ImportsLegacyChats(t *testing.T) {
	ctx := context.Background()
	store := newDevice(t)
	require.NoError(t, store.Set(KeyLegacyChats, []byte(`{
		"guest-100": {"name": "Old", "messages": [{"sender": "You", "text": "hi"}]},
		"guest-200": [{"sender": "Echo", "text": "bare array"}]
	}`)))
	require.NoError(t, store.Set(KeyLegacyLastChatID, []byte(`"guest-200"`)))

	local := NewLocal(store, zerolog.Nop())
	chats, err := local.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "Old", chats["guest-100"].Name)
	assert.Equal(t, model.DefaultChatName, chats["guest-200"].Name)
	assert.NotEmpty(t, chats["guest-100"].Messages[0].ID)

	last, err := local.LoadLastChatID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "guest-200", last)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{KeyGuestChats, KeyLastGuestChatID}, keys, "legacy keys are removed")

	again, err := local.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, chats["guest-100"].Messages[0].ID, again["guest-100"].Messages[0].ID, "ids are stable")
}

func TestLocal_ImportsLegacyHistory(t *testing.T) {
	ctx := context.Background()
	store := newDevice(t)
	require.NoError(t, store.Set(KeyLegacyHistory, []byte(
		`[{"sender":"Echo","text":"greeting"},{"sender":"You","text":"hello"}]`)))

	chats, err := NewLocal(store, zerolog.Nop()).LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	for id, c := range chats {
		assert.Contains(t, id, "guest-")
		require.Len(t, c.Messages, 2)
		assert.Equal(t, "hello", c.Messages[1].Text)
	}

	_, ok, err := store.Get(KeyLegacyHistory)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal_AssignsAndStoresMissingIDs(t *testing.T) {
	ctx := context.Background()
	store := newDevice(t)
	require.NoError(t, store.Set(KeyGuestChats, []byte(
		`{"guest-1":{"name":"n","messages":[{"sender":"You","text":"x"}]}}`)))

	local := NewLocal(store, zerolog.Nop())
	first, err := local.LoadAll(ctx)
	require.NoError(t, err)
	second, err := local.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, first["guest-1"].Messages[0].ID, second["guest-1"].Messages[0].ID)
}

func TestLocal_Clear(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(newDevice(t), zerolog.Nop())
	require.NoError(t, local.SaveChat(ctx, chatWith("guest-1")))
	require.NoError(t, local.SaveLastChatID(ctx, "guest-1"))

	require.NoError(t, local.Clear(ctx))
	chats, err := local.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

// =============================================================================
// REMOTE BACKEND
// =============================================================================

func TestRemote_ScopedToOwner(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	alice := NewRemote(db, model.Identity{UserID: "alice", DisplayName: "Alice"}, zerolog.Nop())
	bob := NewRemote(db, model.Identity{UserID: "bob"}, zerolog.Nop())

	require.NoError(t, alice.SaveChat(ctx, chatWith("user-1", "mine")))
	require.NoError(t, bob.SaveChat(ctx, chatWith("user-2", "his")))

	chats, err := alice.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "mine", chats["user-1"].Messages[1].Text)

	var row ChatRow
	require.NoError(t, db.First(&row, "id = ?", "user-1").Error)
	assert.Equal(t, "alice", row.UserID)
	assert.Equal(t, "Alice", row.DisplayName)

	err = bob.SaveChat(ctx, chatWith("user-1", "hijack"))
	assert.True(t, IsForeign(err))
	chats, err = alice.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mine", chats["user-1"].Messages[1].Text, "foreign write must not land")

	require.NoError(t, bob.DeleteChat(ctx, "user-1"))
	chats, err = alice.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 1, "delete is scoped to the owner")
}

func TestRemote_UpdateInPlace(t *testing.T) {
	ctx := context.Background()
	r := NewRemote(newDB(t), model.Identity{UserID: "u"}, zerolog.Nop())

	c := chatWith("user-1", "one")
	require.NoError(t, r.SaveChat(ctx, c))
	c.Name = "Trip"
	c.Append(model.NewUserMessage("two"))
	require.NoError(t, r.SaveChat(ctx, c))
	require.NoError(t, r.SaveChat(ctx, c), "saving unchanged content is not an insert")

	chats, err := r.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Trip", chats["user-1"].Name)
	assert.Len(t, chats["user-1"].Messages, 3)

	require.NoError(t, r.DeleteChat(ctx, "user-1"))
	chats, err = r.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestRemote_LastChatID(t *testing.T) {
	ctx := context.Background()
	r := NewRemote(newDB(t), model.Identity{UserID: "u"}, zerolog.Nop())

	id, err := r.LoadLastChatID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, r.SaveChat(ctx, chatWith("user-1")))
	require.NoError(t, r.SaveLastChatID(ctx, "user-1"))
	require.NoError(t, r.SaveChat(ctx, chatWith("user-2")))

	id, err = r.LoadLastChatID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id, "new rows inherit the pointer")

	require.NoError(t, r.SaveLastChatID(ctx, "user-2"))
	id, err = r.LoadLastChatID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-2", id)
}

func TestRemote_LegacyRowsWithoutIDs(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	msgs, _ := json.Marshal([]map[string]string{{"sender": "You", "text": "old"}})
	require.NoError(t, db.Create(&ChatRow{ID: "user-7", UserID: "u", Name: "", Messages: msgs}).Error)

	r := NewRemote(db, model.Identity{UserID: "u"}, zerolog.Nop())
	first, err := r.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultChatName, first["user-7"].Name)

	second, err := r.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, first["user-7"].Messages[0].ID, second["user-7"].Messages[0].ID)
}

func TestOpenDB_UnknownDriver(t *testing.T) {
	_, err := OpenDB("mysql", "dsn", zerolog.Nop())
	assert.Error(t, err)
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

func TestBackends_For(t *testing.T) {
	b := NewBackends(newDevice(t), nil, zerolog.Nop())

	p, err := b.For(model.Guest)
	require.NoError(t, err)
	assert.Equal(t, KindLocal, p.Kind())

	_, err = b.For(model.Identity{UserID: "u"})
	assert.ErrorIs(t, err, ErrNoRemote)
	assert.False(t, b.HasRemote())

	b = NewBackends(newDevice(t), newDB(t), zerolog.Nop())
	p, err = b.For(model.Identity{UserID: "u"})
	require.NoError(t, err)
	assert.Equal(t, KindRemote, p.Kind())
}

// =============================================================================
// LISTING
// =============================================================================

func TestSummarizeAndFormat(t *testing.T) {
	chats := map[string]*model.Chat{
		"guest-1000": chatWith("guest-1000", "pasta recipes"),
		"guest-2000": chatWith("guest-2000", "weekend trip"),
	}
	chats["guest-2000"].Name = "Trip"

	metas := Summarize(chats, "guest-1000", "")
	require.Len(t, metas, 2)
	assert.Equal(t, "guest-2000", metas[0].ID, "newest first")
	assert.True(t, metas[1].Current)
	assert.Equal(t, 2, metas[0].MessageCount)

	filtered := Summarize(chats, "", "PASTA")
	require.Len(t, filtered, 1)
	assert.Equal(t, "guest-1000", filtered[0].ID)

	out := FormatChatList(metas)
	assert.Contains(t, out, "* guest-1000")
	assert.Contains(t, out, "weekend trip")
	assert.Equal(t, "No chats found.", FormatChatList(nil))
}
