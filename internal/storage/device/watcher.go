// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package device

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of events an atomic rename produces.
const DefaultDebounce = 150 * time.Millisecond

// Watcher reports writes to a FileStore made by other processes.
type Watcher struct {
	store    *FileStore
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewWatcher watches the directory of store's file. Atomic writes replace the
// file, so watching the file itself would lose track after the first rename.
func NewWatcher(store *FileStore, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(store.Path())); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(store.Path()), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    store,
		watcher:  w,
		debounce: debounce,
		logger:   logger.With().Str("component", "device-watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start calls onChange after each debounced external modification until ctx
// ends or Close is called.
func (w *Watcher) Start(ctx context.Context, onChange func()) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx, onChange)
}

func (w *Watcher) run(ctx context.Context, onChange func()) {
	defer close(w.done)

	target := filepath.Clean(w.store.Path())
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			changed, err := w.store.ChangedExternally()
			if err != nil {
				w.logger.Warn().Err(err).Msg("check device store")
				continue
			}
			if changed {
				w.logger.Debug().Str("path", target).Msg("device store changed on disk")
				onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
		err = w.watcher.Close()
	})
	return err
}
