// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package voice is optional speech-to-text input. Platforms without a
// recognizer use Unsupported; the chat surfaces hide the voice action then.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrUnsupported is returned when no recognizer is available.
	ErrUnsupported = errors.New("voice input is not supported on this platform")

	// ErrAborted is returned when recognition was cancelled. Callers ignore it.
	ErrAborted = errors.New("aborted")
)

// Dictation turns one utterance into text.
type Dictation interface {
	Available() bool
	// Listen blocks until a transcript is ready or ctx ends.
	Listen(ctx context.Context) (string, error)
}

// Unsupported is the Dictation of platforms without a recognizer.
type Unsupported struct{}

// Available implements Dictation.
func (Unsupported) Available() bool { return false }

// Listen implements Dictation.
func (Unsupported) Listen(context.Context) (string, error) { return "", ErrUnsupported }

// Command runs an external recognizer that prints the transcript on stdout.
type Command struct {
	argv []string
}

// NewCommand parses a command line such as "whisper-stream --once". An empty
// line yields Unsupported.
func NewCommand(line string) Dictation {
	argv := strings.Fields(line)
	if len(argv) == 0 {
		return Unsupported{}
	}
	return &Command{argv: argv}
}

// Available implements Dictation.
func (c *Command) Available() bool {
	_, err := exec.LookPath(c.argv[0])
	return err == nil
}

// Listen implements Dictation.
func (c *Command) Listen(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ErrAborted
		}
		return "", fmt.Errorf("voice command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Merge appends transcript to the text already typed, separated by a space.
func Merge(current, transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return current
	}
	if strings.TrimSpace(current) == "" {
		return transcript
	}
	return strings.TrimRight(current, " ") + " " + transcript
}

// Apply runs one dictation and merges the result into current. An aborted
// recognition leaves current unchanged and is not an error.
func Apply(ctx context.Context, d Dictation, current string) (string, error) {
	transcript, err := d.Listen(ctx)
	if errors.Is(err, ErrAborted) {
		return current, nil
	}
	if err != nil {
		return current, err
	}
	return Merge(current, transcript), nil
}
