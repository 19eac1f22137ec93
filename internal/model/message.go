// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser Sender = "You"
	SenderEcho Sender = "Echo"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// =============================================================================
// FIXED TEXTS
// =============================================================================

// WarningGlyph prefixes every synthetic error bubble.
const WarningGlyph = "⚠️"

const (
	// GreetingText is the sole message of a freshly created chat.
	GreetingText = "Hey there! 😊 I'm Echo, your AI best friend. I'm here to chat, listen, and support you anytime! 💙"

	// IdentityReply answers questions about who the assistant is.
	IdentityReply = "I'm Echo! Your friendly AI best friend. 😊"

	OfflineText = WarningGlyph + " No internet connection. Please check your network."
	TimeoutText = WarningGlyph + " Server is not responding. Try again later."
	FailureText = WarningGlyph + " Unable to connect. Please try again."
)

// =============================================================================
// ERROR KIND
// =============================================================================

// ErrorKind classifies synthetic error bubbles. The zero value marks a
// regular message.
type ErrorKind string

const (
	ErrorNone    ErrorKind = ""
	ErrorOffline ErrorKind = "offline"
	ErrorTimeout ErrorKind = "timeout"
	ErrorFailure ErrorKind = "failure"
)

// Text returns the bubble text shown for the error kind.
func (k ErrorKind) Text() string {
	switch k {
	case ErrorOffline:
		return OfflineText
	case ErrorTimeout:
		return TimeoutText
	case ErrorFailure:
		return FailureText
	default:
		return ""
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one entry of a chat log. ID is stable across edits and deletes
// of other messages.
type Message struct {
	ID     string    `json:"id,omitempty"`
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
	Error  ErrorKind `json:"error,omitempty"`
}

// NewMessage creates a message with a generated id.
func NewMessage(sender Sender, text string) Message {
	return Message{
		ID:     uuid.NewString(),
		Sender: sender,
		Text:   text,
	}
}

// NewUserMessage creates a message sent by the user.
func NewUserMessage(text string) Message {
	return NewMessage(SenderUser, text)
}

// NewEchoMessage creates an assistant message.
func NewEchoMessage(text string) Message {
	return NewMessage(SenderEcho, text)
}

// NewErrorMessage creates the synthetic assistant bubble for kind.
func NewErrorMessage(kind ErrorKind) Message {
	msg := NewEchoMessage(kind.Text())
	msg.Error = kind
	return msg
}

// GreetingMessage creates the default first message of a chat.
func GreetingMessage() Message {
	return NewEchoMessage(GreetingText)
}

// IsError reports whether the message is a synthetic error bubble. Messages
// persisted before error kinds existed are recognised by the warning glyph.
func (m Message) IsError() bool {
	if m.Error != ErrorNone {
		return true
	}
	return m.Sender == SenderEcho && strings.HasPrefix(m.Text, WarningGlyph)
}

// IsUser reports whether the user wrote the message.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// EnsureIDs assigns ids to messages that lack one, which happens for logs
// written by older clients. It reports whether anything changed.
func EnsureIDs(msgs []Message) bool {
	changed := false
	for i := range msgs {
		if msgs[i].ID == "" {
			msgs[i].ID = uuid.NewString()
			changed = true
		}
	}
	return changed
}
