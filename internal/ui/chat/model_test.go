// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echochat/echo/internal/dispatch"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/offline"
	"github.com/echochat/echo/internal/session"
	"github.com/echochat/echo/internal/storage"
	"github.com/echochat/echo/internal/storage/device"
	"github.com/echochat/echo/internal/ui/styles"
	"github.com/echochat/echo/internal/voice"
)

// =============================================================================
// FAKES
// =============================================================================

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, input string, _ model.Personality) (string, error) {
	return "re: " + input, nil
}

type fakeVoice struct {
	text string
	err  error
}

func (fakeVoice) Available() bool { return true }

func (f fakeVoice) Listen(context.Context) (string, error) { return f.text, f.err }

// =============================================================================
// HELPERS
// =============================================================================

func newTestModel(t *testing.T, v voice.Dictation) (Model, *session.Store) {
	t.Helper()
	kv, err := device.NewFileStore(filepath.Join(t.TempDir(), "device.json"))
	require.NoError(t, err)
	s := session.New(storage.NewBackends(kv, nil, zerolog.Nop()), model.Guest)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close(context.Background()) })

	conn := offline.NewMonitor("http://localhost:8000")
	d := dispatch.New(s, echoCompleter{}, conn)
	m := New(styles.NewTheme(), Deps{Store: s, Dispatcher: d, Conn: conn, Voice: v, Logger: zerolog.Nop()})
	t.Cleanup(m.Close)

	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, s
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// settle applies pending store changes the way the subscription would.
func settle(m Model) Model {
	m, _ = update(m, StoreChangedMsg{})
	return m
}

func typeText(m Model, text string) Model {
	for _, r := range text {
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func alt(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}, Alt: true}
}

var enter = tea.KeyMsg{Type: tea.KeyEnter}

// =============================================================================
// RENDERING
// =============================================================================

func TestView_InitialChat(t *testing.T) {
	m, _ := newTestModel(t, nil)
	view := m.View()

	assert.Contains(t, view, "Echo")
	assert.Contains(t, view, model.DefaultChatName)
	assert.Contains(t, view, "Hey there!")
	assert.Contains(t, view, "Guest | local")
	assert.Contains(t, view, "online")
	assert.Contains(t, view, "Chats")
}

func TestView_NarrowHidesSidebar(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m, _ = update(m, tea.WindowSizeMsg{Width: 50, Height: 20})
	assert.False(t, m.sidebarVisible())
	assert.Equal(t, 50, m.viewport.Width)
}

// =============================================================================
// SENDING
// =============================================================================

func TestSubmit_SendsMessage(t *testing.T) {
	m, s := newTestModel(t, nil)
	chatID := s.CurrentID()

	m = typeText(m, "hello")
	m, cmd := update(m, enter)
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())

	done, ok := cmd().(SendDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.Err)
	assert.Equal(t, chatID, done.Result.ChatID)

	c, err := s.Chat(chatID)
	require.NoError(t, err)
	require.Len(t, c.Messages, 3)
	assert.Equal(t, "re: hello", c.Messages[2].Text)

	m, _ = update(m, done)
	m = settle(m)
	assert.Contains(t, m.View(), "re: hello")
}

func TestSubmit_BlankDoesNothing(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m = typeText(m, "   ")
	_, cmd := update(m, enter)
	assert.Nil(t, cmd)
}

func TestSendDone_ShowsError(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m, _ = update(m, SendDoneMsg{Err: dispatch.ErrEmptyInput})
	assert.Empty(t, m.notice)

	m, _ = update(m, SendDoneMsg{Err: errors.New("store closed")})
	assert.True(t, m.noticeErr)
	assert.Equal(t, "store closed", m.notice)
}

// =============================================================================
// COMMANDS AND KEYS
// =============================================================================

func TestSlashCommand(t *testing.T) {
	m, s := newTestModel(t, nil)
	first := s.CurrentID()

	m = typeText(m, "/new")
	m, cmd := update(m, enter)
	assert.Nil(t, cmd)
	assert.Equal(t, "Started a new chat.", m.notice)
	assert.Len(t, s.Snapshot().Chats, 2)

	m = settle(m)
	assert.NotEqual(t, first, m.snap.CurrentID)

	m = typeText(m, "/bogus")
	m, _ = update(m, enter)
	assert.True(t, m.noticeErr)
}

func TestSlashCommand_Quit(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m = typeText(m, "/quit")
	_, cmd := update(m, enter)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestQuitKey(t *testing.T) {
	m, _ := newTestModel(t, nil)
	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestSwitchChatKeys(t *testing.T) {
	m, s := newTestModel(t, nil)
	first := s.CurrentID()
	_, err := s.CreateChat()
	require.NoError(t, err)
	m = settle(m)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown, Alt: true})
	assert.Equal(t, first, s.CurrentID(), "older chat")

	m = settle(m)
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown, Alt: true})
	assert.Equal(t, first, s.CurrentID(), "no chat older than the oldest")
}

func TestRenamePrompt(t *testing.T) {
	m, s := newTestModel(t, nil)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Equal(t, modeRename, m.mode)
	assert.Equal(t, model.DefaultChatName, m.input.Value())

	m.input.SetValue("   ")
	m, _ = update(m, enter)
	assert.Equal(t, modeRename, m.mode, "blank name is rejected")
	assert.True(t, m.noticeErr)

	m.input.SetValue("Weekend trip")
	m, _ = update(m, enter)
	assert.Equal(t, modeChat, m.mode)
	assert.Equal(t, "> ", m.input.Prompt)

	c, _ := s.Chat(s.CurrentID())
	assert.Equal(t, "Weekend trip", c.Name)
}

func TestEditLastPrompt(t *testing.T) {
	m, s := newTestModel(t, nil)
	id := s.CurrentID()
	require.NoError(t, s.AppendMessage(id, model.NewUserMessage("helo")))
	m = settle(m)

	m, _ = update(m, alt('e'))
	require.Equal(t, modeEdit, m.mode)
	assert.Equal(t, "helo", m.input.Value())

	m.input.SetValue("hello")
	m, _ = update(m, enter)
	assert.Equal(t, modeChat, m.mode)

	c, _ := s.Chat(id)
	assert.Equal(t, "hello", c.Messages[1].Text)
}

func TestEditLast_NoUserMessage(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m, _ = update(m, alt('e'))
	assert.Equal(t, modeChat, m.mode)
	assert.Contains(t, m.notice, "No message")
}

func TestDeleteConfirm(t *testing.T) {
	m, s := newTestModel(t, nil)
	_, err := s.CreateChat()
	require.NoError(t, err)
	m = settle(m)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlX})
	assert.Equal(t, modeConfirmDelete, m.mode)
	assert.Contains(t, m.View(), "(y/n)")

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	assert.Equal(t, modeChat, m.mode)
	assert.Len(t, s.Snapshot().Chats, 2)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlX})
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	assert.Equal(t, modeChat, m.mode)
	assert.Len(t, s.Snapshot().Chats, 1)
}

func TestPersonalityKey(t *testing.T) {
	m, s := newTestModel(t, nil)
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, model.PersonalityFunny, s.Personality())
	assert.Contains(t, m.notice, "Funny")

	assert.Equal(t, model.PersonalityFriendly, nextPersonality(model.PersonalitySupportive))
	assert.Equal(t, model.DefaultPersonality, nextPersonality("unknown"))
}

func TestOfflineToggle(t *testing.T) {
	m, _ := newTestModel(t, nil)
	require.True(t, m.online)

	m, _ = update(m, alt('o'))
	assert.False(t, m.online)
	assert.Contains(t, m.View(), "offline")

	m, _ = update(m, alt('o'))
	assert.True(t, m.online)
}

func TestTabCompletion(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m = typeText(m, "/ren")
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "/rename", m.input.Value())
	assert.True(t, m.completion.Active())

	m = typeText(m, " ")
	assert.False(t, m.completion.Active())
}

func TestHelpToggle(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyF1})
	assert.True(t, m.showHelp)
	assert.Contains(t, m.viewport.View(), "Commands")

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.showHelp)
}

// =============================================================================
// VOICE
// =============================================================================

func TestVoice_MergesTranscript(t *testing.T) {
	m, _ := newTestModel(t, fakeVoice{text: "there"})
	m = typeText(m, "hi")

	m, cmd := update(m, alt('v'))
	require.NotNil(t, cmd)
	assert.True(t, m.listening)

	done := m.voiceCmd(m.input.Value())().(VoiceDoneMsg)
	assert.Equal(t, "hi there", done.Text)

	m, _ = update(m, done)
	assert.False(t, m.listening)
	assert.Equal(t, "hi there", m.input.Value())
}

func TestVoice_Aborted(t *testing.T) {
	m, _ := newTestModel(t, fakeVoice{err: voice.ErrAborted})
	m = typeText(m, "keep me")
	done := m.voiceCmd(m.input.Value())().(VoiceDoneMsg)
	require.NoError(t, done.Err)

	m, _ = update(m, done)
	assert.Equal(t, "keep me", m.input.Value())
}

func TestVoice_Unsupported(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m, cmd := update(m, alt('v'))
	assert.Nil(t, cmd)
	assert.False(t, m.listening)
	assert.True(t, m.noticeErr)
}
