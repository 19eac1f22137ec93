// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of the echo components from configuration.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/echochat/echo/internal/api"
	"github.com/echochat/echo/internal/auth"
	"github.com/echochat/echo/internal/config"
	"github.com/echochat/echo/internal/dispatch"
	"github.com/echochat/echo/internal/export"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/offline"
	"github.com/echochat/echo/internal/session"
	"github.com/echochat/echo/internal/storage"
	"github.com/echochat/echo/internal/storage/device"
	"github.com/echochat/echo/internal/voice"
)

// watchDebounce coalesces the burst of events one atomic write produces.
const watchDebounce = 200 * time.Millisecond

// App holds the wired components shared by every command.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Gate       *auth.TokenGate
	Store      *session.Store
	Client     *api.Client
	Monitor    *offline.Monitor
	Dispatcher *dispatch.Dispatcher
	Voice      voice.Dictation

	backends *storage.Backends
	device   device.Store
	db       *gorm.DB
	watcher  *device.Watcher
	cancel   context.CancelFunc
	unhook   func()
}

// NewGate builds the auth gate from configuration.
func NewGate(cfg *config.Config, logger zerolog.Logger) (*auth.TokenGate, error) {
	path, err := cfg.SessionFile()
	if err != nil {
		return nil, err
	}
	return auth.NewTokenGate(path, cfg.Auth.JWTSecret, logger), nil
}

// OpenApp opens storage, loads the session of the current identity and wires
// the dispatcher. Close must be called to flush pending writes.
func OpenApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	devicePath, err := cfg.DevicePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(devicePath), 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	a.device, err = device.Open(cfg.Storage.DeviceBackend, devicePath)
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}

	if cfg.RemoteEnabled() {
		a.db, err = storage.OpenDB(cfg.Storage.RemoteDriver, cfg.Storage.RemoteDSN, logger)
		if err != nil {
			// signed-in users fall back to guest storage below
			logger.Warn().Err(err).Str("backend", storage.KindRemote).Msg("remote chat store unavailable")
		}
	}
	a.backends = storage.NewBackends(a.device, a.db, logger)

	a.Gate, err = NewGate(cfg, logger)
	if err != nil {
		a.closeStorage()
		return nil, err
	}

	a.Store = session.New(a.backends, a.effectiveIdentity(a.Gate.CurrentIdentity()),
		session.WithLogger(logger),
		session.WithPersonality(cfg.Personality()),
		session.WithGuestMigration(cfg.Storage.MigrateGuestChats),
	)
	if err := a.Store.Open(ctx); err != nil {
		a.closeStorage()
		return nil, fmt.Errorf("open session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.unhook = a.Gate.OnIdentityChange(func(id model.Identity) {
		if err := a.Store.SwitchIdentity(runCtx, a.effectiveIdentity(id)); err != nil {
			logger.Warn().Err(err).Str("user_id", id.UserID).Msg("switch identity")
		}
	})

	if fs, ok := a.device.(*device.FileStore); ok && cfg.Storage.WatchDevice {
		w, err := device.NewWatcher(fs, watchDebounce, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("device store watcher disabled")
		} else {
			a.watcher = w
			w.Start(runCtx, func() {
				if !a.Store.Identity().IsGuest() {
					return
				}
				if err := a.Store.Reload(runCtx); err != nil {
					logger.Warn().Err(err).Msg("reload guest chats")
				}
			})
		}
	}

	a.Client = api.New(cfg.API.BaseURL).
		WithRateLimit(cfg.API.RequestsPerMinute).
		WithLogger(logger)

	a.Monitor = offline.NewMonitor(cfg.API.BaseURL)
	a.Monitor.SetForced(cfg.Chat.OfflineMode)

	a.Dispatcher = dispatch.New(a.Store, a.Client, a.Monitor,
		dispatch.WithTimeout(cfg.Timeout()),
		dispatch.WithTitleTimeout(cfg.TitleTimeout()),
		dispatch.WithTitler(a.Client),
		dispatch.WithLogger(logger),
	)
	a.Voice = voice.NewCommand(cfg.Voice.Command)

	logger.Debug().
		Str("user_id", a.Store.Identity().UserID).
		Str("backend", cfg.Storage.DeviceBackend).
		Msg("session opened")
	return a, nil
}

// effectiveIdentity maps a signed-in identity to Guest when no row store is
// reachable, so chats still persist on this device.
func (a *App) effectiveIdentity(id model.Identity) model.Identity {
	if id.IsGuest() || a.backends.HasRemote() {
		return id
	}
	a.Logger.Warn().Str("user_id", id.UserID).
		Msg("signed in but no remote chat store is configured, using guest storage")
	return model.Guest
}

// ExportOptions returns export settings writing into the working directory.
func (a *App) ExportOptions() *export.Options {
	return export.DefaultOptions()
}

// Close waits for title jobs, flushes queued writes and releases storage.
func (a *App) Close() error {
	if a.unhook != nil {
		a.unhook()
	}
	a.Dispatcher.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Store.Close(ctx)

	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		err = errors.Join(err, a.watcher.Close())
	}
	return errors.Join(err, a.closeStorage())
}

func (a *App) closeStorage() error {
	var err error
	if a.db != nil {
		if sqlDB, dbErr := a.db.DB(); dbErr == nil {
			err = sqlDB.Close()
		}
	}
	if a.device != nil {
		err = errors.Join(err, a.device.Close())
	}
	return err
}
