// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDictation struct {
	transcript string
	err        error
}

func (f fakeDictation) Available() bool { return true }

func (f fakeDictation) Listen(context.Context) (string, error) { return f.transcript, f.err }

func TestMerge(t *testing.T) {
	tests := []struct {
		current, transcript, want string
	}{
		{"", "hello there", "hello there"},
		{"so", "what's up", "so what's up"},
		{"trailing ", "space", "trailing space"},
		{"keep", "   ", "keep"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Merge(tt.current, tt.transcript))
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	got, err := Apply(ctx, fakeDictation{transcript: "world"}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)

	got, err = Apply(ctx, fakeDictation{err: ErrAborted}, "hello")
	require.NoError(t, err, "aborted recognition is ignored")
	assert.Equal(t, "hello", got)

	boom := errors.New("mic busy")
	got, err = Apply(ctx, fakeDictation{err: boom}, "hello")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "hello", got)
}

func TestUnsupported(t *testing.T) {
	d := NewCommand("  ")
	assert.False(t, d.Available())
	_, err := d.Listen(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCommand_Missing(t *testing.T) {
	d := NewCommand("definitely-not-a-real-recognizer --once")
	assert.False(t, d.Available())
}
