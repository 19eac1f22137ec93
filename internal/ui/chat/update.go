// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/echochat/echo/internal/commands"
	"github.com/echochat/echo/internal/dispatch"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/voice"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh(false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case StoreChangedMsg:
		prev := m.snap.CurrentID
		m.snap = m.deps.Store.Snapshot()
		m.refresh(prev != m.snap.CurrentID)
		cmds := []tea.Cmd{m.waitForChange()}
		if m.typing() {
			cmds = append(cmds, m.startSpinner())
		}
		return m, tea.Batch(cmds...)

	case SendDoneMsg:
		switch {
		case msg.Err == nil:
		case errors.Is(msg.Err, dispatch.ErrEmptyInput):
		default:
			m.deps.Logger.Warn().Err(msg.Err).Str("chat_id", msg.Result.ChatID).Msg("send failed")
			m.setError(msg.Err)
		}
		return m, nil

	case VoiceDoneMsg:
		m.listening = false
		switch {
		case errors.Is(msg.Err, voice.ErrUnsupported):
			m.setError(errors.New("voice input is not available; set voice.command in the config"))
		case msg.Err != nil:
			m.setError(msg.Err)
		default:
			m.input.SetValue(msg.Text)
			m.input.CursorEnd()
			m.clearNotice()
		}
		return m, nil

	case ConnectivityMsg:
		m.online = msg.Online
		return m, m.pollConnectivity()

	case spinner.TickMsg:
		if !m.typing() && !m.listening {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.mode {
	case modeConfirmDelete:
		return m.handleConfirmKey(msg)
	case modeRename, modeEdit:
		return m.handlePromptKey(msg)
	}

	if !key.Matches(msg, m.keys.Complete) && m.completion.Active() {
		m.completion.Clear()
		m.layout()
	}

	switch {
	case key.Matches(msg, m.keys.Send):
		return m.submit()

	case key.Matches(msg, m.keys.Complete):
		if m.completion.Active() {
			m.input.SetValue(m.completion.Next())
		} else {
			m.input.SetValue(m.completion.Start(m.completer, m.input.Value()))
		}
		m.input.CursorEnd()
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if m.showHelp {
			m.showHelp = false
			m.refresh(true)
		}
		m.clearNotice()
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		if _, err := m.deps.Store.CreateChat(); err != nil {
			m.setError(err)
		}
		return m, nil

	case key.Matches(msg, m.keys.PrevChat), key.Matches(msg, m.keys.NextChat):
		delta := 1
		if key.Matches(msg, m.keys.PrevChat) {
			delta = -1
		}
		if id, ok := m.neighborChat(delta); ok {
			if err := m.deps.Store.SwitchChat(id); err != nil {
				m.setError(err)
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Rename):
		if c := m.snap.Current(); c != nil {
			m.enterPrompt(modeRename, "Rename: ", c.Name)
		}
		return m, nil

	case key.Matches(msg, m.keys.EditLast):
		c := m.snap.Current()
		if c == nil {
			return m, nil
		}
		for i := len(c.Messages) - 1; i >= 0; i-- {
			if c.Messages[i].IsUser() {
				m.editTarget = c.Messages[i].ID
				m.enterPrompt(modeEdit, "Edit: ", c.Messages[i].Text)
				return m, nil
			}
		}
		m.setNotice("No message of yours to edit yet.")
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		m.mode = modeConfirmDelete
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		if err := m.deps.Store.ClearChat(m.snap.CurrentID); err != nil {
			m.setError(err)
		}
		return m, nil

	case key.Matches(msg, m.keys.Voice):
		return m.startListening()

	case key.Matches(msg, m.keys.Personality):
		next := nextPersonality(m.snap.Personality)
		if err := m.deps.Store.SetPersonality(next); err != nil {
			m.setError(err)
		} else {
			m.setNotice("Personality: " + next.Label())
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleOffline):
		out, err := m.registry.Execute(m.cmdCtx, "/offline "+onOff(m.online))
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.online = m.deps.Conn.Online()
		m.setNotice(out.Notice)
		return m, nil

	case key.Matches(msg, m.keys.Sidebar):
		m.showSidebar = !m.showSidebar
		m.layout()
		m.refresh(false)
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.refresh(true)
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input line or runs it as a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	m.input.Reset()
	m.clearNotice()

	if commands.IsCommand(text) {
		return m.runCommand(text)
	}
	if m.showHelp {
		m.showHelp = false
		m.refresh(true)
	}
	return m, m.sendCmd(m.snap.CurrentID, text)
}

func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	out, err := m.registry.Execute(m.cmdCtx, line)
	if err != nil {
		m.setError(err)
		return m, nil
	}
	if out.Quit {
		return m, tea.Quit
	}
	if out.Listen {
		return m.startListening()
	}
	if out.Notice != "" {
		if strings.Contains(out.Notice, "\n") {
			// multi-line output goes where the messages are
			m.showHelp = false
			m.viewport.SetContent(m.theme.HeaderSubtitle.Render(out.Notice))
			m.viewport.GotoTop()
			m.setNotice("esc to return to the chat")
		} else {
			m.setNotice(out.Notice)
		}
	}
	return m, nil
}

func (m Model) startListening() (tea.Model, tea.Cmd) {
	if m.listening {
		return m, nil
	}
	if !m.deps.Voice.Available() {
		m.setError(errors.New("voice input is not available; set voice.command in the config"))
		return m, nil
	}
	m.listening = true
	m.setNotice("Listening...")
	return m, tea.Batch(m.voiceCmd(m.input.Value()), m.startSpinner())
}

// =============================================================================
// PROMPTS
// =============================================================================

func (m *Model) enterPrompt(md mode, prompt, value string) {
	m.mode = md
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.layout()
}

func (m *Model) leavePrompt() {
	m.mode = modeChat
	m.editTarget = ""
	m.input.Prompt = "> "
	m.input.Reset()
	m.input.Focus()
	m.layout()
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.leavePrompt()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		var err error
		value := m.input.Value()
		if m.mode == modeRename {
			err = m.deps.Store.RenameChat(m.snap.CurrentID, value)
		} else {
			err = m.deps.Store.EditMessage(m.snap.CurrentID, m.editTarget, value)
		}
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.leavePrompt()
		m.clearNotice()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y":
		name := ""
		if c := m.snap.Current(); c != nil {
			name = c.Name
		}
		if err := m.deps.Store.DeleteChat(m.snap.CurrentID); err != nil {
			m.setError(err)
		} else {
			m.setNotice("Deleted \"" + name + "\".")
		}
		m.leavePrompt()
	case "n", "esc":
		m.leavePrompt()
	}
	return m, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nextPersonality(p model.Personality) model.Personality {
	for i, candidate := range model.Personalities {
		if candidate == p {
			return model.Personalities[(i+1)%len(model.Personalities)]
		}
	}
	return model.DefaultPersonality
}

// onOff returns the /offline argument that flips the current state.
func onOff(online bool) string {
	if online {
		return "on"
	}
	return "off"
}
