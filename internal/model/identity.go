// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Identity is who is using the client. An empty UserID means guest.
type Identity struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Guest is the unauthenticated identity.
var Guest = Identity{DisplayName: "Guest"}

// IsGuest reports whether no user is signed in.
func (i Identity) IsGuest() bool {
	return i.UserID == ""
}

// Prefix returns the chat id prefix for chats created under this identity.
func (i Identity) Prefix() IDPrefix {
	if i.IsGuest() {
		return PrefixGuest
	}
	return PrefixUser
}

// Name returns a printable name for the identity.
func (i Identity) Name() string {
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.IsGuest():
		return "Guest"
	default:
		return i.UserID
	}
}
