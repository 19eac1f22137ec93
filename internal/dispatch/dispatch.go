// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch sends one user message through the full request cycle:
// optimistic append, canned replies, connectivity check, the bounded
// completion call, error bubbles and chat auto-titling.
//
// Sends to the same chat are serialized; sends to different chats run in
// parallel. Errors from the chat service never reach the caller. They become
// at most one warning bubble in the chat.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/echochat/echo/internal/api"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/offline"
)

const (
	// DefaultTimeout bounds one completion call.
	DefaultTimeout = 30 * time.Second

	// DefaultTitleTimeout bounds one title call.
	DefaultTitleTimeout = 15 * time.Second

	// titleAfterUserMessages is the user message count that triggers titling.
	titleAfterUserMessages = 2
)

// ErrEmptyInput is returned for blank input; nothing is changed.
var ErrEmptyInput = errors.New("empty input")

// Completer produces a reply for one user input.
type Completer interface {
	Complete(ctx context.Context, input string, personality model.Personality) (string, error)
}

// Titler names a chat from its first user messages.
type Titler interface {
	GenerateTitle(ctx context.Context, messages []model.Message) (string, error)
}

// Session is the part of the session store the dispatcher mutates.
type Session interface {
	CurrentID() string
	Chat(id string) (*model.Chat, error)
	Personality() model.Personality
	AppendMessage(chatID string, msg model.Message) error
	AppendErrorOnce(chatID string, kind model.ErrorKind) (bool, error)
	SetTyping(chatID string, typing bool) error
	SetTitleIfDefault(chatID, title string) (bool, error)
}

// Result describes what one send did to the chat.
type Result struct {
	ChatID      string
	UserMessage model.Message
	// Reply is set when Echo answered, canned or not.
	Reply *model.Message
	// Canned is true when the reply was produced without a network call.
	Canned bool
	// Error is the failure class of a failed send.
	Error model.ErrorKind
	// ErrorShown is false when the bubble was suppressed as a repeat.
	ErrorShown bool
}

// Dispatcher runs sends against a session.
type Dispatcher struct {
	session      Session
	completer    Completer
	titler       Titler
	conn         offline.Connectivity
	timeout      time.Duration
	titleTimeout time.Duration
	logger       zerolog.Logger

	locks  keyedMutex
	titles sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the completion timeout.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithTitleTimeout sets the title generation timeout.
func WithTitleTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.titleTimeout = d
		}
	}
}

// WithTitler enables auto-titling.
func WithTitler(t Titler) Option {
	return func(x *Dispatcher) { x.titler = t }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(x *Dispatcher) { x.logger = l.With().Str("component", "dispatch").Logger() }
}

// New creates a dispatcher.
func New(session Session, completer Completer, conn offline.Connectivity, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		session:      session,
		completer:    completer,
		conn:         conn,
		timeout:      DefaultTimeout,
		titleTimeout: DefaultTitleTimeout,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.conn == nil {
		d.conn = offline.Static(true)
	}
	return d
}

// Send sends input in the current chat.
func (d *Dispatcher) Send(ctx context.Context, input string) (Result, error) {
	return d.SendTo(ctx, d.session.CurrentID(), input)
}

// SendTo sends input in chatID.
func (d *Dispatcher) SendTo(ctx context.Context, chatID, input string) (Result, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return Result{}, ErrEmptyInput
	}

	unlock := d.locks.lock(chatID)
	defer unlock()

	res := Result{ChatID: chatID, UserMessage: model.NewUserMessage(text)}
	if err := d.session.AppendMessage(chatID, res.UserMessage); err != nil {
		return Result{}, err
	}

	d.setTyping(chatID, true)
	defer d.setTyping(chatID, false)

	if IsIdentityQuestion(text) {
		reply := model.NewEchoMessage(model.IdentityReply)
		res.Reply, res.Canned = &reply, true
		return res, d.session.AppendMessage(chatID, reply)
	}

	if !d.conn.Online() {
		return d.fail(chatID, res, model.ErrorOffline)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	answer, err := d.completer.Complete(callCtx, text, d.session.Personality())
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		if ctx.Err() != nil && !timedOut {
			// caller went away; nothing to report in the chat
			return res, ctx.Err()
		}
		kind := model.ErrorFailure
		if timedOut || api.IsTimeout(err) {
			kind = model.ErrorTimeout
		}
		d.logger.Warn().Err(err).Str("chat_id", chatID).Str("kind", string(kind)).Msg("completion failed")
		return d.fail(chatID, res, kind)
	}

	reply := model.NewEchoMessage(answer)
	res.Reply = &reply
	if err := d.session.AppendMessage(chatID, reply); err != nil {
		return res, err
	}
	d.maybeTitle(chatID)
	return res, nil
}

func (d *Dispatcher) fail(chatID string, res Result, kind model.ErrorKind) (Result, error) {
	res.Error = kind
	shown, err := d.session.AppendErrorOnce(chatID, kind)
	res.ErrorShown = shown
	return res, err
}

func (d *Dispatcher) setTyping(chatID string, typing bool) {
	if err := d.session.SetTyping(chatID, typing); err != nil {
		d.logger.Debug().Err(err).Str("chat_id", chatID).Msg("set typing")
	}
}

// maybeTitle starts auto-titling after the second user message of a chat
// that still has the placeholder name.
func (d *Dispatcher) maybeTitle(chatID string) {
	if d.titler == nil {
		return
	}
	chat, err := d.session.Chat(chatID)
	if err != nil || !chat.HasDefaultName() || chat.UserMessageCount() != titleAfterUserMessages {
		return
	}
	msgs := chat.UserMessages(titleAfterUserMessages)

	d.titles.Add(1)
	go func() {
		defer d.titles.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.titleTimeout)
		defer cancel()

		title, err := d.titler.GenerateTitle(ctx, msgs)
		if err != nil {
			d.logger.Warn().Err(err).Str("chat_id", chatID).Msg("title generation failed")
			return
		}
		applied, err := d.session.SetTitleIfDefault(chatID, title)
		if err != nil {
			d.logger.Debug().Err(err).Str("chat_id", chatID).Msg("apply title")
			return
		}
		if applied {
			d.logger.Debug().Str("chat_id", chatID).Str("title", title).Msg("chat titled")
		}
	}()
}

// Wait blocks until background title jobs finish.
func (d *Dispatcher) Wait() {
	d.titles.Wait()
}

// keyedMutex hands out one mutex per key and forgets unused keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*keyedEntry{}
	}
	e := k.locks[key]
	if e == nil {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
