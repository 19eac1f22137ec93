// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
)

// Personality selects the response style requested from the chat service.
// It is passed through unchanged and has no client-side effect.
type Personality string

const (
	PersonalityFriendly     Personality = "Friendly"
	PersonalityFunny        Personality = "Funny"
	PersonalityProfessional Personality = "Professional"
	PersonalitySupportive   Personality = "Supportive"
)

// DefaultPersonality is used when nothing else is configured.
const DefaultPersonality = PersonalityFriendly

// Personalities lists every selectable personality in display order.
var Personalities = []Personality{
	PersonalityFriendly,
	PersonalityFunny,
	PersonalityProfessional,
	PersonalitySupportive,
}

// ParsePersonality resolves a name case-insensitively.
func ParsePersonality(s string) (Personality, error) {
	s = strings.TrimSpace(s)
	for _, p := range Personalities {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown personality %q (want one of Friendly, Funny, Professional, Supportive)", s)
}

// Label returns the display label with its emoji.
func (p Personality) Label() string {
	switch p {
	case PersonalityFriendly:
		return "😊 Friendly"
	case PersonalityFunny:
		return "😂 Funny"
	case PersonalityProfessional:
		return "💼 Professional"
	case PersonalitySupportive:
		return "💙 Supportive"
	default:
		return string(p)
	}
}

// String returns the wire value.
func (p Personality) String() string {
	return string(p)
}
