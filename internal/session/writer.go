// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// writeTimeout bounds a single durable write.
const writeTimeout = 15 * time.Second

// write is one queued persistence call. A write with a non-nil barrier only
// marks a position in the queue.
type write struct {
	op      string
	chatID  string
	backend string
	fn      func(ctx context.Context) error
	barrier chan struct{}
}

// writer performs queued writes one at a time, in order.
type writer struct {
	logger zerolog.Logger

	mu     sync.Mutex
	queue  []write
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	closed bool
}

func newWriter(logger zerolog.Logger) *writer {
	w := &writer{
		logger: logger,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(wr write) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, wr)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// flush waits until every write queued before the call has been attempted.
func (w *writer) flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !w.enqueue(write{barrier: barrier}) {
		return nil
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) next() (write, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return write{}, false
	}
	wr := w.queue[0]
	w.queue[0] = write{}
	w.queue = w.queue[1:]
	return wr, true
}

func (w *writer) run() {
	defer close(w.done)
	for {
		wr, ok := w.next()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-w.quit:
				// drain what was queued before close
				for wr, ok := w.next(); ok; wr, ok = w.next() {
					w.perform(wr)
				}
				return
			}
		}
		w.perform(wr)
	}
}

func (w *writer) perform(wr write) {
	if wr.barrier != nil {
		close(wr.barrier)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wr.fn(ctx); err != nil {
		w.logger.Warn().
			Err(err).
			Str("op", wr.op).
			Str("chat_id", wr.chatID).
			Str("backend", wr.backend).
			Msg("persistence write failed")
	}
}

func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	close(w.quit)
	<-w.done
}
