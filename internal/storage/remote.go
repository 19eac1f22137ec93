// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/echochat/echo/internal/model"
)

// ChatRow is one row of the shared "chats" table. DisplayName carries the
// owner's display name; LastChatID is the owner's active chat, mirrored on
// every row the owner has.
type ChatRow struct {
	ID          string         `gorm:"primaryKey;size:64"`
	UserID      string         `gorm:"size:128;not null;index"`
	Name        string         `gorm:"size:200;not null"`
	DisplayName string         `gorm:"size:200"`
	Messages    datatypes.JSON `gorm:"not null"`
	LastChatID  string         `gorm:"size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the table name.
func (ChatRow) TableName() string { return "chats" }

// OpenDB connects to the row store. driver is "postgres" or "sqlite".
func OpenDB(driver, dsn string, logger zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown remote driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer at a time; also keeps ":memory:" databases on a single connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&ChatRow{}); err != nil {
		return nil, fmt.Errorf("migrate chats table: %w", err)
	}
	logger.Debug().Str("driver", driver).Msg("remote chat store ready")
	return db, nil
}

// Remote is the signed-in backend. Every query is filtered by the owner.
type Remote struct {
	db       *gorm.DB
	identity model.Identity
	logger   zerolog.Logger
}

// NewRemote creates the backend for identity, which must not be a guest.
func NewRemote(db *gorm.DB, identity model.Identity, logger zerolog.Logger) *Remote {
	return &Remote{
		db:       db,
		identity: identity,
		logger:   logger.With().Str("backend", KindRemote).Str("user_id", identity.UserID).Logger(),
	}
}

// Kind implements Persistence.
func (r *Remote) Kind() string { return KindRemote }

func (r *Remote) owned(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&ChatRow{}).Where("user_id = ?", r.identity.UserID)
}

// LoadAll implements Persistence.
func (r *Remote) LoadAll(ctx context.Context) (map[string]*model.Chat, error) {
	var rows []ChatRow
	if err := r.owned(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	chats := make(map[string]*model.Chat, len(rows))
	for _, row := range rows {
		chat, assigned, err := row.toChat()
		if err != nil {
			r.logger.Warn().Err(err).Str("chat_id", row.ID).Msg("skip undecodable chat")
			continue
		}
		if assigned {
			if err := r.SaveChat(ctx, chat); err != nil {
				r.logger.Warn().Err(err).Str("chat_id", row.ID).Msg("store assigned message ids")
			}
		}
		chats[chat.ID] = chat
	}
	return chats, nil
}

func (row ChatRow) toChat() (*model.Chat, bool, error) {
	chat := &model.Chat{ID: row.ID, Name: row.Name, Messages: []model.Message{}}
	if len(row.Messages) > 0 {
		if err := json.Unmarshal(row.Messages, &chat.Messages); err != nil {
			return nil, false, fmt.Errorf("decode messages: %w", err)
		}
	}
	if chat.Name == "" {
		chat.Name = model.DefaultChatName
	}
	return chat, model.EnsureIDs(chat.Messages), nil
}

// SaveChat implements Persistence. The update is keyed by id and owner; when
// no owned row matches, a row is inserted unless the id belongs to someone else.
func (r *Remote) SaveChat(ctx context.Context, chat *model.Chat) error {
	if err := validChat(chat); err != nil {
		return err
	}
	msgs, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ChatRow{}).
			Where("id = ? AND user_id = ?", chat.ID, r.identity.UserID).
			Updates(map[string]any{
				"name":         chat.Name,
				"display_name": r.identity.DisplayName,
				"messages":     datatypes.JSON(msgs),
			})
		if res.Error != nil {
			return fmt.Errorf("update chat %s: %w", chat.ID, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var taken int64
		if err := tx.Model(&ChatRow{}).Where("id = ?", chat.ID).Count(&taken).Error; err != nil {
			return fmt.Errorf("check chat %s: %w", chat.ID, err)
		}
		if taken > 0 {
			return fmt.Errorf("save chat %s: %w", chat.ID, ErrForeignChat)
		}

		var last []string
		err := tx.Model(&ChatRow{}).
			Where("user_id = ? AND last_chat_id <> ''", r.identity.UserID).
			Limit(1).
			Pluck("last_chat_id", &last).Error
		if err != nil {
			return fmt.Errorf("read last chat id: %w", err)
		}

		row := ChatRow{
			ID:          chat.ID,
			UserID:      r.identity.UserID,
			Name:        chat.Name,
			DisplayName: r.identity.DisplayName,
			Messages:    datatypes.JSON(msgs),
		}
		if len(last) > 0 {
			row.LastChatID = last[0]
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert chat %s: %w", chat.ID, err)
		}
		return nil
	})
}

// DeleteChat implements Persistence.
func (r *Remote) DeleteChat(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, r.identity.UserID).
		Delete(&ChatRow{}).Error
	if err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	return nil
}

// LoadLastChatID implements Persistence.
func (r *Remote) LoadLastChatID(ctx context.Context) (string, error) {
	var ids []string
	err := r.owned(ctx).
		Where("last_chat_id <> ''").
		Order("updated_at DESC").
		Limit(1).
		Pluck("last_chat_id", &ids).Error
	if err != nil {
		return "", fmt.Errorf("load last chat id: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// SaveLastChatID implements Persistence.
func (r *Remote) SaveLastChatID(ctx context.Context, id string) error {
	err := r.owned(ctx).UpdateColumn("last_chat_id", id).Error
	if err != nil {
		return fmt.Errorf("save last chat id: %w", err)
	}
	return nil
}

// Clear implements Clearer by deleting every row the owner has.
func (r *Remote) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("user_id = ?", r.identity.UserID).Delete(&ChatRow{}).Error
}
