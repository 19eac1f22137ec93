// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SpinnerConfig defines the frames and speed of a spinner.
type SpinnerConfig struct {
	Frames []string
	FPS    int
}

// Duration returns the time per frame.
func (s SpinnerConfig) Duration() time.Duration {
	if s.FPS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Second / time.Duration(s.FPS)
}

// Spinner converts the config to a bubbles spinner.
func (s SpinnerConfig) Spinner() spinner.Spinner {
	return spinner.Spinner{Frames: s.Frames, FPS: s.Duration()}
}

// TypingDots is shown while Echo composes a reply.
var TypingDots = SpinnerConfig{
	Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
	FPS:    8,
}

// ListenPulse is shown while voice dictation is running.
var ListenPulse = SpinnerConfig{
	Frames: []string{"◌", "○", "◎", "●", "◎", "○"},
	FPS:    6,
}
