// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/storage"
)

// SwitchIdentity moves the session to another identity and loads its chats.
//
// Signing in from guest mode copies every guest chat the user wrote in to the
// remote store under fresh user ids, then clears the guest keys, unless guest
// migration is disabled. Signing out copies nothing back; guest chats are
// loaded from the device.
func (s *Store) SwitchIdentity(ctx context.Context, identity model.Identity) error {
	backend, err := s.selector.For(identity)
	if err != nil {
		return fmt.Errorf("select backend: %w", err)
	}
	err = s.do(func(st *state) error {
		if st.open && st.identity == identity {
			return nil
		}
		if err := s.writer.flush(ctx); err != nil {
			return err
		}
		if st.open && st.identity.IsGuest() && !identity.IsGuest() && s.migrate {
			s.migrateGuest(ctx, st, backend)
		}
		s.logger.Info().
			Str("user_id", identity.UserID).
			Str("backend", backend.Kind()).
			Msg("switching identity")
		st.identity = identity
		st.backend = backend
		st.current = ""
		s.load(ctx, st)
		return nil
	})
	if err == nil {
		s.notify()
	}
	return err
}

// migrateGuest copies guest chats into dst. Runs on the reducer. The guest
// keys are only cleared when every copy succeeded.
func (s *Store) migrateGuest(ctx context.Context, st *state, dst storage.Persistence) {
	guest := st.backend

	ids := make([]string, 0, len(st.chats))
	for id, c := range st.chats {
		if c.UserMessageCount() > 0 {
			ids = append(ids, id)
		}
	}
	// oldest first, so the new ids keep the original order
	sort.Slice(ids, func(i, j int) bool {
		ti, _ := model.ChatIDTime(ids[i])
		tj, _ := model.ChatIDTime(ids[j])
		return ti.Before(tj)
	})

	failed := 0
	for _, id := range ids {
		c := st.chats[id].Clone()
		c.ID = s.ids.Next(model.PrefixUser)
		if err := dst.SaveChat(ctx, c); err != nil {
			failed++
			s.logger.Warn().Err(err).Str("chat_id", id).Msg("migrate guest chat failed")
			continue
		}
		s.logger.Debug().Str("chat_id", id).Str("new_id", c.ID).Msg("guest chat migrated")
	}
	if failed > 0 {
		return
	}
	if clearer, ok := guest.(storage.Clearer); ok {
		if err := clearer.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("clear guest chats after migration")
		}
	}
	s.logger.Info().Int("chats", len(ids)).Msg("guest chats migrated")
}
