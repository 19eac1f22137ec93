// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/echochat/echo/internal/dispatch"

// StoreChangedMsg signals that the session store changed.
type StoreChangedMsg struct{}

// SendDoneMsg carries the outcome of one dispatched message.
type SendDoneMsg struct {
	Result dispatch.Result
	Err    error
}

// VoiceDoneMsg carries the input line after dictation.
type VoiceDoneMsg struct {
	Text string
	Err  error
}

// ConnectivityMsg reports the current connectivity.
type ConnectivityMsg struct {
	Online bool
}
