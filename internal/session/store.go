// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/storage"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyName is returned when renaming a chat to blank text.
	ErrEmptyName = errors.New("chat name is empty")

	// ErrEmptyText is returned when editing a message to blank text.
	ErrEmptyText = errors.New("message text is empty")

	// ErrChatNotFound is returned for unknown chat ids.
	ErrChatNotFound = errors.New("chat not found")

	// ErrMessageNotFound is returned for unknown message ids.
	ErrMessageNotFound = errors.New("message not found")

	// ErrCreateInProgress is returned when a chat creation is already running.
	ErrCreateInProgress = errors.New("chat creation already in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session store closed")

	// ErrNotOpen is returned when the store is used before Open.
	ErrNotOpen = errors.New("session store not opened")
)

// =============================================================================
// STORE
// =============================================================================

// Selector returns the persistence backend for an identity.
type Selector interface {
	For(identity model.Identity) (storage.Persistence, error)
}

// state is owned by the reducer goroutine.
type state struct {
	identity    model.Identity
	backend     storage.Persistence
	chats       map[string]*model.Chat
	current     string
	personality model.Personality
	typing      map[string]bool
	open        bool
}

type op struct {
	fn    func(*state) error
	reply chan error
}

// Store is the session state manager.
type Store struct {
	selector Selector
	ids      *model.IDGenerator
	logger   zerolog.Logger
	migrate  bool

	ops      chan op
	quit     chan struct{}
	done     chan struct{}
	closeMu  sync.Once
	writer   *writer
	creating atomic.Bool

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int

	st *state
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l.With().Str("component", "session").Logger() }
}

// WithPersonality sets the initial personality.
func WithPersonality(p model.Personality) Option {
	return func(s *Store) { s.st.personality = p }
}

// WithGuestMigration controls whether guest chats move to the remote store
// when a user signs in.
func WithGuestMigration(enabled bool) Option {
	return func(s *Store) { s.migrate = enabled }
}

// WithIDGenerator replaces the chat id generator.
func WithIDGenerator(g *model.IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// New creates a store for identity. Call Open before use.
func New(selector Selector, identity model.Identity, opts ...Option) *Store {
	s := &Store{
		selector: selector,
		ids:      model.NewIDGenerator(),
		logger:   zerolog.Nop(),
		migrate:  true,
		ops:      make(chan op),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		subs:     map[int]chan struct{}{},
		st: &state{
			identity:    identity,
			chats:       map[string]*model.Chat{},
			personality: model.DefaultPersonality,
			typing:      map[string]bool{},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.writer = newWriter(s.logger)
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case o := <-s.ops:
			o.reply <- o.fn(s.st)
		case <-s.quit:
			return
		}
	}
}

// do applies fn on the reducer goroutine and waits for it.
func (s *Store) do(fn func(*state) error) error {
	o := op{fn: fn, reply: make(chan error, 1)}
	select {
	case s.ops <- o:
	case <-s.quit:
		return ErrClosed
	}
	return <-o.reply
}

// mutate is do for operations that need an opened store and change state.
func (s *Store) mutate(fn func(*state) error) error {
	err := s.do(func(st *state) error {
		if !st.open {
			return ErrNotOpen
		}
		return fn(st)
	})
	if err == nil {
		s.notify()
	}
	return err
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Open loads the chats of the current identity. A failed load is logged and
// the session starts from a fresh chat.
func (s *Store) Open(ctx context.Context) error {
	backend, err := s.selector.For(s.identity())
	if err != nil {
		return err
	}
	err = s.do(func(st *state) error {
		st.backend = backend
		s.load(ctx, st)
		return nil
	})
	if err == nil {
		s.notify()
	}
	return err
}

// Reload re-reads the chats of the current identity, keeping the current
// selection when it still exists. Used when another process changed them.
func (s *Store) Reload(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	return s.mutate(func(st *state) error {
		s.load(ctx, st)
		return nil
	})
}

func (s *Store) identity() model.Identity {
	var id model.Identity
	_ = s.do(func(st *state) error {
		id = st.identity
		return nil
	})
	return id
}

// load replaces the chats with the backend's. Runs on the reducer.
func (s *Store) load(ctx context.Context, st *state) {
	if err := s.writer.flush(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("flush before load")
	}

	chats, err := st.backend.LoadAll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("backend", st.backend.Kind()).Msg("load chats failed")
		chats = map[string]*model.Chat{}
	}
	last, err := st.backend.LoadLastChatID(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("backend", st.backend.Kind()).Msg("load last chat id failed")
	}

	previous := st.current
	st.chats = chats
	st.typing = map[string]bool{}
	st.open = true
	st.current = ""

	switch {
	case len(chats) == 0:
		s.createLocked(st)
		return
	case chats[previous] != nil:
		st.current = previous
	case chats[last] != nil:
		st.current = last
	default:
		st.current = model.SortedIDs(chats)[0]
	}
	if st.current != last {
		s.saveLast(st)
	}
	s.logger.Debug().Int("chats", len(chats)).Str("chat_id", st.current).Msg("session loaded")
}

// Flush waits for queued durable writes.
func (s *Store) Flush(ctx context.Context) error {
	return s.writer.flush(ctx)
}

// Close flushes pending writes and stops the store.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.closeMu.Do(func() {
		close(s.quit)
		<-s.done
		s.writer.close()
		s.subMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subMu.Unlock()
	})
	return err
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Subscribe returns a channel that receives a value after state changes.
// Bursts are coalesced. The channel is closed by Close or by the returned
// cancel function.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan struct{}, 1)
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// =============================================================================
// PERSISTENCE HELPERS (reducer goroutine only)
// =============================================================================

func (s *Store) saveChat(st *state, id string) {
	chat := st.chats[id].Clone()
	backend := st.backend
	s.writer.enqueue(write{
		op: "save_chat", chatID: id, backend: backend.Kind(),
		fn: func(ctx context.Context) error { return backend.SaveChat(ctx, chat) },
	})
}

func (s *Store) deleteChat(st *state, id string) {
	backend := st.backend
	s.writer.enqueue(write{
		op: "delete_chat", chatID: id, backend: backend.Kind(),
		fn: func(ctx context.Context) error { return backend.DeleteChat(ctx, id) },
	})
}

func (s *Store) saveLast(st *state) {
	id := st.current
	backend := st.backend
	s.writer.enqueue(write{
		op: "save_last_chat_id", chatID: id, backend: backend.Kind(),
		fn: func(ctx context.Context) error { return backend.SaveLastChatID(ctx, id) },
	})
}

// createLocked adds a greeting-only chat and selects it.
func (s *Store) createLocked(st *state) string {
	id := s.ids.Next(st.identity.Prefix())
	for st.chats[id] != nil {
		id = s.ids.Next(st.identity.Prefix())
	}
	st.chats[id] = model.NewChat(id)
	st.current = id
	s.saveChat(st, id)
	s.saveLast(st)
	s.logger.Debug().Str("chat_id", id).Msg("chat created")
	return id
}

func lookup(st *state, chatID string) (*model.Chat, error) {
	c := st.chats[chatID]
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	return c, nil
}

func lookupMessage(st *state, chatID, msgID string) (*model.Chat, int, error) {
	c, err := lookup(st, chatID)
	if err != nil {
		return nil, -1, err
	}
	i := c.IndexOf(msgID)
	if i < 0 {
		return nil, -1, fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	}
	return c, i, nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// CreateChat adds a chat holding only the greeting and makes it current.
// While one creation runs, a concurrent call returns ErrCreateInProgress.
func (s *Store) CreateChat() (string, error) {
	if !s.creating.CompareAndSwap(false, true) {
		return "", ErrCreateInProgress
	}
	defer s.creating.Store(false)

	var id string
	err := s.mutate(func(st *state) error {
		id = s.createLocked(st)
		return nil
	})
	return id, err
}

// SwitchChat makes id current and records it as the last active chat.
// Switching to the current chat does nothing.
func (s *Store) SwitchChat(id string) error {
	changed := false
	err := s.do(func(st *state) error {
		if !st.open {
			return ErrNotOpen
		}
		if _, err := lookup(st, id); err != nil {
			return err
		}
		if st.current == id {
			return nil
		}
		st.current = id
		s.saveLast(st)
		changed = true
		return nil
	})
	if changed {
		s.notify()
	}
	return err
}

// DeleteChat removes a chat. Deleting the current chat selects the newest
// remaining one, or creates a fresh chat when none remain.
func (s *Store) DeleteChat(id string) error {
	return s.mutate(func(st *state) error {
		if _, err := lookup(st, id); err != nil {
			return err
		}
		delete(st.chats, id)
		delete(st.typing, id)
		s.deleteChat(st, id)

		if st.current != id {
			return nil
		}
		if len(st.chats) == 0 {
			s.createLocked(st)
			return nil
		}
		st.current = model.SortedIDs(st.chats)[0]
		s.saveLast(st)
		return nil
	})
}

// RenameChat sets a chat's name. Blank names are rejected with ErrEmptyName.
func (s *Store) RenameChat(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return s.mutate(func(st *state) error {
		c, err := lookup(st, id)
		if err != nil {
			return err
		}
		c.Name = name
		s.saveChat(st, id)
		return nil
	})
}

// ClearChat resets a chat to the greeting, keeping its id and name.
func (s *Store) ClearChat(id string) error {
	return s.mutate(func(st *state) error {
		c, err := lookup(st, id)
		if err != nil {
			return err
		}
		c.Messages = []model.Message{model.GreetingMessage()}
		s.saveChat(st, id)
		return nil
	})
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// EditMessage replaces the text of one message. Blank text is rejected with
// ErrEmptyText; other messages and their order are untouched.
func (s *Store) EditMessage(chatID, msgID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return s.mutate(func(st *state) error {
		c, i, err := lookupMessage(st, chatID, msgID)
		if err != nil {
			return err
		}
		c.Messages[i].Text = text
		s.saveChat(st, chatID)
		return nil
	})
}

// DeleteMessage removes exactly one message.
func (s *Store) DeleteMessage(chatID, msgID string) error {
	return s.mutate(func(st *state) error {
		c, i, err := lookupMessage(st, chatID, msgID)
		if err != nil {
			return err
		}
		c.Messages = append(c.Messages[:i:i], c.Messages[i+1:]...)
		s.saveChat(st, chatID)
		return nil
	})
}

// AppendMessage adds msg to the end of a chat.
func (s *Store) AppendMessage(chatID string, msg model.Message) error {
	return s.mutate(func(st *state) error {
		c, err := lookup(st, chatID)
		if err != nil {
			return err
		}
		c.Append(msg)
		s.saveChat(st, chatID)
		return nil
	})
}

// AppendErrorOnce adds the error bubble for kind unless the chat's latest
// Echo message already is an error. It reports whether a bubble was added.
func (s *Store) AppendErrorOnce(chatID string, kind model.ErrorKind) (bool, error) {
	appended := false
	err := s.mutate(func(st *state) error {
		c, err := lookup(st, chatID)
		if err != nil {
			return err
		}
		if last := c.LastEchoMessage(); last != nil && last.IsError() {
			return nil
		}
		c.Append(model.NewErrorMessage(kind))
		s.saveChat(st, chatID)
		appended = true
		return nil
	})
	return appended, err
}

// SetTitleIfDefault names a chat only while it still has the placeholder
// name, so a rename made in the meantime wins. It reports whether it applied.
func (s *Store) SetTitleIfDefault(chatID, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, ErrEmptyName
	}
	applied := false
	err := s.mutate(func(st *state) error {
		c, err := lookup(st, chatID)
		if err != nil {
			return err
		}
		if !c.HasDefaultName() {
			return nil
		}
		c.Name = title
		s.saveChat(st, chatID)
		applied = true
		return nil
	})
	return applied, err
}

// SetTyping marks whether Echo is composing a reply in a chat.
func (s *Store) SetTyping(chatID string, typing bool) error {
	return s.mutate(func(st *state) error {
		if typing {
			st.typing[chatID] = true
		} else {
			delete(st.typing, chatID)
		}
		return nil
	})
}

// SetPersonality changes the personality sent with completions.
func (s *Store) SetPersonality(p model.Personality) error {
	err := s.do(func(st *state) error {
		st.personality = p
		return nil
	})
	if err == nil {
		s.notify()
	}
	return err
}

// =============================================================================
// READS
// =============================================================================

// Snapshot is a consistent deep copy of the session.
type Snapshot struct {
	Identity    model.Identity
	Backend     string
	Chats       map[string]*model.Chat
	CurrentID   string
	Personality model.Personality
	Typing      map[string]bool
}

// Current returns the current chat, or nil.
func (s Snapshot) Current() *model.Chat {
	return s.Chats[s.CurrentID]
}

// Order returns chat ids newest first.
func (s Snapshot) Order() []string {
	return model.SortedIDs(s.Chats)
}

// Snapshot copies the state.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	_ = s.do(func(st *state) error {
		snap = Snapshot{
			Identity:    st.identity,
			CurrentID:   st.current,
			Personality: st.personality,
			Chats:       make(map[string]*model.Chat, len(st.chats)),
			Typing:      make(map[string]bool, len(st.typing)),
		}
		if st.backend != nil {
			snap.Backend = st.backend.Kind()
		}
		for id, c := range st.chats {
			snap.Chats[id] = c.Clone()
		}
		for id, v := range st.typing {
			snap.Typing[id] = v
		}
		return nil
	})
	return snap
}

// Chat returns a copy of one chat.
func (s *Store) Chat(id string) (*model.Chat, error) {
	var out *model.Chat
	err := s.do(func(st *state) error {
		c, err := lookup(st, id)
		if err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

// CurrentID returns the current chat id ("" before Open).
func (s *Store) CurrentID() string {
	var id string
	_ = s.do(func(st *state) error {
		id = st.current
		return nil
	})
	return id
}

// Personality returns the current personality.
func (s *Store) Personality() model.Personality {
	p := model.DefaultPersonality
	_ = s.do(func(st *state) error {
		p = st.personality
		return nil
	})
	return p
}

// Identity returns the identity the session belongs to.
func (s *Store) Identity() model.Identity {
	return s.identity()
}
