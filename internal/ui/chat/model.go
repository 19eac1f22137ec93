// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/echochat/echo/internal/commands"
	"github.com/echochat/echo/internal/dispatch"
	"github.com/echochat/echo/internal/export"
	"github.com/echochat/echo/internal/offline"
	"github.com/echochat/echo/internal/session"
	"github.com/echochat/echo/internal/storage"
	"github.com/echochat/echo/internal/ui/styles"
	"github.com/echochat/echo/internal/voice"
)

// connectivityInterval is how often the online indicator is refreshed.
const connectivityInterval = 3 * time.Second

// mode selects what the input line is for.
type mode int

const (
	modeChat          mode = iota // Messages and slash commands
	modeRename                    // Renaming the current chat
	modeEdit                      // Editing one message
	modeConfirmDelete             // Waiting for y/n
)

// Deps are the services the chat screen drives.
type Deps struct {
	Store      *session.Store
	Dispatcher *dispatch.Dispatcher
	Conn       offline.Connectivity
	Voice      voice.Dictation

	// ExportOptions configures /export. Nil uses export defaults.
	ExportOptions *export.Options
	Logger        zerolog.Logger
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	theme *styles.Theme
	deps  Deps
	keys  KeyMap

	registry   *commands.Registry
	cmdCtx     *commands.Context
	completer  *commands.Completer
	completion commands.CompletionState

	// ctx is cancelled when the screen quits; in-flight sends see it.
	ctx    context.Context
	cancel context.CancelFunc

	changes     <-chan struct{}
	unsubscribe func()

	// Store state as of the last StoreChangedMsg
	snap   session.Snapshot
	online bool

	// Dimensions
	width  int
	height int

	mode       mode
	editTarget string
	listening  bool
	spinning   bool

	showSidebar bool
	showHelp    bool
	notice      string
	noticeErr   bool

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
}

// New creates the chat screen. Call Close after the program exits.
func New(theme *styles.Theme, deps Deps) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}
	if deps.Conn == nil {
		deps.Conn = offline.Static(true)
	}
	if deps.Voice == nil {
		deps.Voice = voice.Unsupported{}
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Message Echo, or /help"
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = styles.TypingDots.Spinner()

	registry := commands.NewRegistry()
	completer := commands.NewCompleter(registry)
	completer.ChatsFn = func() []storage.ChatMeta {
		snap := deps.Store.Snapshot()
		return storage.Summarize(snap.Chats, snap.CurrentID, "")
	}

	ctx, cancel := context.WithCancel(context.Background())
	changes, unsubscribe := deps.Store.Subscribe()

	m := Model{
		theme:     theme,
		deps:      deps,
		keys:      DefaultKeyMap(),
		registry:  registry,
		completer: completer,
		cmdCtx: &commands.Context{
			Store:         deps.Store,
			Conn:          deps.Conn,
			ExportOptions: deps.ExportOptions,
		},
		ctx:         ctx,
		cancel:      cancel,
		changes:     changes,
		unsubscribe: unsubscribe,
		snap:        deps.Store.Snapshot(),
		online:      deps.Conn.Online(),
		showSidebar: true,
		input:       ti,
		viewport:    viewport.New(80, 20),
		spinner:     sp,
		help:        help.New(),
	}
	m.layout()
	return m
}

// Close stops the store subscription and cancels in-flight sends.
func (m Model) Close() {
	m.cancel()
	m.unsubscribe()
}

// Init starts the store subscription, cursor blink and connectivity polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.waitForChange(),
		m.pollConnectivity(),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForChange blocks until the store publishes a change.
func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return StoreChangedMsg{}
	}
}

func (m Model) pollConnectivity() tea.Cmd {
	conn := m.deps.Conn
	return tea.Tick(connectivityInterval, func(time.Time) tea.Msg {
		return ConnectivityMsg{Online: conn.Online()}
	})
}

// sendCmd dispatches text to chatID in the background.
func (m Model) sendCmd(chatID, text string) tea.Cmd {
	ctx, d := m.ctx, m.deps.Dispatcher
	return func() tea.Msg {
		res, err := d.SendTo(ctx, chatID, text)
		return SendDoneMsg{Result: res, Err: err}
	}
}

// voiceCmd runs one dictation and merges it into current.
func (m Model) voiceCmd(current string) tea.Cmd {
	ctx, v := m.ctx, m.deps.Voice
	return func() tea.Msg {
		text, err := voice.Apply(ctx, v, current)
		return VoiceDoneMsg{Text: text, Err: err}
	}
}

// startSpinner begins ticking if nothing is ticking yet.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinning {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

// =============================================================================
// STATE HELPERS
// =============================================================================

func (m Model) typing() bool {
	return m.snap.Typing[m.snap.CurrentID]
}

func (m *Model) setNotice(text string) {
	m.notice, m.noticeErr = text, false
}

func (m *Model) setError(err error) {
	m.notice, m.noticeErr = err.Error(), true
}

func (m *Model) clearNotice() {
	m.notice, m.noticeErr = "", false
}

// sidebarVisible reports whether the chat list fits next to the messages.
func (m Model) sidebarVisible() bool {
	return m.showSidebar && m.width >= styles.SidebarWidth+40
}

// layout sizes the viewport and input for the current window and mode.
func (m *Model) layout() {
	width, height := m.width, m.height
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	m.theme.SetSize(width, height)

	// header + typing line + input (border and line) + status bar
	reserved := 1 + 1 + 2 + 1
	if m.completion.Active() {
		reserved++
	}
	vpHeight := height - reserved
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = m.theme.ChatWidth(m.sidebarVisible())
	m.viewport.Height = vpHeight

	inputWidth := width - lenPrompt(m.input.Prompt) - 2
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth
	m.help.Width = width
}

// refresh re-renders the message list. The view follows new messages when
// it was already at the bottom or the chat changed.
func (m *Model) refresh(chatChanged bool) {
	follow := chatChanged || m.viewport.AtBottom()
	if m.showHelp {
		m.viewport.SetContent(m.renderHelp())
	} else {
		m.viewport.SetContent(m.renderMessages())
	}
	if follow && !m.showHelp {
		m.viewport.GotoBottom()
	}
}

// neighborChat returns the chat id delta steps away in newest-first order.
func (m Model) neighborChat(delta int) (string, bool) {
	order := m.snap.Order()
	for i, id := range order {
		if id == m.snap.CurrentID {
			j := i + delta
			if j < 0 || j >= len(order) {
				return "", false
			}
			return order[j], true
		}
	}
	return "", false
}
