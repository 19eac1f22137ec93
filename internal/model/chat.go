// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultChatName is the placeholder name of a chat that has not been titled.
const DefaultChatName = "New Chat"

// =============================================================================
// CHAT IDS
// =============================================================================

// IDPrefix is the owner class encoded in a chat id.
type IDPrefix string

const (
	PrefixGuest IDPrefix = "guest"
	PrefixUser  IDPrefix = "user"
)

// NewChatID formats a chat id as "<prefix>-<epoch-millis>".
func NewChatID(prefix IDPrefix, now time.Time) string {
	return string(prefix) + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// ChatIDTime extracts the creation time encoded in a chat id.
func ChatIDTime(id string) (time.Time, bool) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 || i == len(id)-1 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// IDGenerator hands out chat ids whose millisecond component strictly
// increases, so two chats created within the same millisecond never collide.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator creates a generator using the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a fresh chat id for prefix.
func (g *IDGenerator) Next(prefix IDPrefix) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now
	if g.now != nil {
		now = g.now
	}
	ms := now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return NewChatID(prefix, time.UnixMilli(ms))
}

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is a named, ordered message log. Order is chronological.
type Chat struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// NewChat creates a chat holding only the greeting message.
func NewChat(id string) *Chat {
	return &Chat{
		ID:       id,
		Name:     DefaultChatName,
		Messages: []Message{GreetingMessage()},
	}
}

// Clone returns a deep copy of the chat.
func (c *Chat) Clone() *Chat {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

// Append adds a message at the end of the log.
func (c *Chat) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// IndexOf returns the position of the message with id, or -1.
func (c *Chat) IndexOf(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// UserMessageCount returns how many messages the user has sent.
func (c *Chat) UserMessageCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.IsUser() {
			n++
		}
	}
	return n
}

// UserMessages returns up to limit user messages in order (limit <= 0 means all).
func (c *Chat) UserMessages(limit int) []Message {
	var out []Message
	for _, m := range c.Messages {
		if !m.IsUser() {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// LastEchoMessage returns the most recent assistant message, or nil.
func (c *Chat) LastEchoMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Sender == SenderEcho {
			return &c.Messages[i]
		}
	}
	return nil
}

// HasDefaultName reports whether the chat still carries the placeholder name.
func (c *Chat) HasDefaultName() bool {
	return c.Name == DefaultChatName
}

// Preview returns the first user message, or an empty string.
func (c *Chat) Preview() string {
	for _, m := range c.Messages {
		if m.IsUser() && m.Text != "" {
			return m.Text
		}
	}
	return ""
}

// Contains reports whether the chat name or any message contains query,
// case-insensitively.
func (c *Chat) Contains(query string) bool {
	query = strings.ToLower(query)
	if strings.Contains(strings.ToLower(c.Name), query) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Text), query) {
			return true
		}
	}
	return false
}

// =============================================================================
// ORDERING
// =============================================================================

// SortedIDs returns the ids of chats ordered newest first, by the creation
// time encoded in the id. Ids without a timestamp sort last, by name.
func SortedIDs(chats map[string]*Chat) []string {
	ids := make([]string, 0, len(chats))
	for id := range chats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, okI := ChatIDTime(ids[i])
		tj, okJ := ChatIDTime(ids[j])
		switch {
		case okI && okJ && !ti.Equal(tj):
			return ti.After(tj)
		case okI != okJ:
			return okI
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}
