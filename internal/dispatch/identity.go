// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// identityPhrases are answered locally with model.IdentityReply.
var identityPhrases = []string{
	"who are you",
	"what are you",
	"what is your name",
	"whats your name",
	"who is echo",
	"are you echo",
	"tell me about yourself",
	"introduce yourself",
}

var folder = cases.Fold()

// normalize folds case, turns punctuation into spaces and collapses runs of
// whitespace, so "Hey, WHO are you?!" becomes "hey who are you".
func normalize(s string) string {
	s = folder.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\'' || r == '’':
			return -1
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Greetings and filler allowed around a phrase, so "hey echo, who are you
// really?" still counts while "what are you doing tonight" does not.
var (
	leadingFiller = map[string]bool{
		"hey": true, "hi": true, "hello": true, "yo": true, "ok": true,
		"okay": true, "so": true, "um": true, "and": true, "but": true,
		"echo": true, "there": true, "please": true,
	}
	trailingFiller = map[string]bool{
		"exactly": true, "really": true, "again": true, "echo": true,
		"then": true, "anyway": true, "please": true,
	}
)

// IsIdentityQuestion reports whether text asks who the assistant is. The
// whole message must be one of identityPhrases once leading and trailing
// filler words are dropped.
func IsIdentityQuestion(text string) bool {
	words := strings.Fields(normalize(text))
	for len(words) > 0 && leadingFiller[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 && trailingFiller[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return false
	}
	q := strings.Join(words, " ")
	for _, p := range identityPhrases {
		if q == p {
			return true
		}
	}
	return false
}
