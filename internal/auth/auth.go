// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth is the boundary to whoever signs users in. echo never runs a
// login flow itself; it reads the session token that flow produced.
//
// A session token is a JWT whose "sub" claim is the user id. The optional
// "name", "preferred_username" or "email" claims give the display name.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/util"
)

var (
	// ErrInvalidToken is returned for tokens that fail to parse or verify.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("session token expired")

	// ErrNoSubject is returned for tokens without a user id.
	ErrNoSubject = errors.New("session token has no subject")
)

// Gate supplies the current identity and reports changes to it.
type Gate interface {
	CurrentIdentity() model.Identity
	// OnIdentityChange registers fn and returns a function that unregisters it.
	OnIdentityChange(fn func(model.Identity)) (unsubscribe func())
	SignOut() error
}

// Claims are the session token claims echo reads.
type Claims struct {
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// DisplayName picks the friendliest available name.
func (c *Claims) DisplayName() string {
	for _, s := range []string{c.Name, c.PreferredUsername, c.Email} {
		if s != "" {
			return s
		}
	}
	return ""
}

// session is the on-disk session file.
type session struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// TokenGate reads the session token from a file. With a secret, tokens must
// carry a valid HS256 signature; without one, the signature is not checked.
type TokenGate struct {
	path   string
	secret []byte
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	current  model.Identity
	handlers map[int]func(model.Identity)
	nextID   int
}

// NewTokenGate loads the session at path, if any.
func NewTokenGate(path, secret string, logger zerolog.Logger) *TokenGate {
	g := &TokenGate{
		path:     path,
		secret:   []byte(secret),
		logger:   logger.With().Str("component", "auth").Logger(),
		now:      time.Now,
		handlers: map[int]func(model.Identity){},
	}
	g.current = g.load()
	return g
}

func (g *TokenGate) load() model.Identity {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.Warn().Err(err).Msg("read session file")
		}
		return model.Guest
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		g.logger.Warn().Err(err).Msg("decode session file")
		return model.Guest
	}
	id, err := g.Parse(s.Token)
	if err != nil {
		g.logger.Info().Err(err).Msg("stored session rejected, continuing as guest")
		return model.Guest
	}
	return id
}

// Parse validates token and returns the identity it names.
func (g *TokenGate) Parse(token string) (model.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Guest, ErrInvalidToken
	}
	claims := &Claims{}

	if len(g.secret) > 0 {
		_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return g.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.now))
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return model.Guest, ErrTokenExpired
		case err != nil:
			return model.Guest, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return model.Guest, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if claims.ExpiresAt != nil && !g.now().Before(claims.ExpiresAt.Time) {
			return model.Guest, ErrTokenExpired
		}
	}

	if claims.Subject == "" {
		return model.Guest, ErrNoSubject
	}
	return model.Identity{UserID: claims.Subject, DisplayName: claims.DisplayName()}, nil
}

// CurrentIdentity implements Gate.
func (g *TokenGate) CurrentIdentity() model.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// OnIdentityChange implements Gate.
func (g *TokenGate) OnIdentityChange(fn func(model.Identity)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.handlers[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.handlers, id)
	}
}

// SignIn validates token, stores it and switches the identity.
func (g *TokenGate) SignIn(token string) (model.Identity, error) {
	id, err := g.Parse(token)
	if err != nil {
		return model.Guest, err
	}
	data, err := json.MarshalIndent(session{Token: strings.TrimSpace(token), SavedAt: g.now().UTC()}, "", "  ")
	if err != nil {
		return model.Guest, err
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0700); err != nil {
		return model.Guest, fmt.Errorf("create session dir: %w", err)
	}
	if err := util.AtomicWriteFile(g.path, data, 0600); err != nil {
		return model.Guest, fmt.Errorf("write session file: %w", err)
	}
	g.set(id)
	return id, nil
}

// SignOut implements Gate.
func (g *TokenGate) SignOut() error {
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	g.set(model.Guest)
	return nil
}

func (g *TokenGate) set(id model.Identity) {
	g.mu.Lock()
	changed := g.current != id
	g.current = id
	handlers := make([]func(model.Identity), 0, len(g.handlers))
	for _, fn := range g.handlers {
		handlers = append(handlers, fn)
	}
	g.mu.Unlock()

	if !changed {
		return
	}
	g.logger.Info().Str("user_id", id.UserID).Msg("identity changed")
	for _, fn := range handlers {
		fn(id)
	}
}

// Static is a fixed identity Gate, used when nothing can sign in.
type Static struct {
	mu       sync.Mutex
	identity model.Identity
	handlers []func(model.Identity)
}

// NewStatic returns a Gate that reports identity until SignOut or Set.
func NewStatic(identity model.Identity) *Static {
	return &Static{identity: identity}
}

// CurrentIdentity implements Gate.
func (s *Static) CurrentIdentity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// OnIdentityChange implements Gate.
func (s *Static) OnIdentityChange(fn func(model.Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, fn)
	idx := len(s.handlers) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.handlers[idx] = nil
	}
}

// Set switches the identity and notifies subscribers.
func (s *Static) Set(identity model.Identity) {
	s.mu.Lock()
	changed := s.identity != identity
	s.identity = identity
	handlers := append([]func(model.Identity){}, s.handlers...)
	s.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range handlers {
		if fn != nil {
			fn(identity)
		}
	}
}

// SignOut implements Gate.
func (s *Static) SignOut() error {
	s.Set(model.Guest)
	return nil
}
