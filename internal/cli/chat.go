// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat: the full screen and the line REPL.
//
// Both front ends share the slash commands of the commands package. The
// REPL adds /logout, which needs the auth gate.
//
// Interactive Commands (REPL):
//   /help, /h           Show available commands
//   /new, /chats, /switch, /rename, /delete, /clear, /export
//   /edit, /rm          Edit or remove a message by number
//   /personality, /p    Show or set the personality
//   /voice              Dictate the next message
//   /logout             Sign out and continue as guest
//   /quit, /q           Exit chat
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterh/liner"

	"github.com/echochat/echo/internal/commands"
	"github.com/echochat/echo/internal/config"
	"github.com/echochat/echo/internal/dispatch"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/ui/chat"
	"github.com/echochat/echo/internal/ui/styles"
	"github.com/echochat/echo/internal/voice"
)

// runTUI runs the Bubble Tea chat screen until the user quits.
func runTUI(a *App) error {
	m := chat.New(styles.NewTheme(), chat.Deps{
		Store:         a.Store,
		Dispatcher:    a.Dispatcher,
		Conn:          a.Monitor,
		Voice:         a.Voice,
		ExportOptions: a.ExportOptions(),
		Logger:        a.Logger,
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one line of input. suggestion pre-fills the line.
type lineReader interface {
	ReadInput(prompt, suggestion string) (string, error)
	Close()
}

// ChatCLI provides input history and line editing for the REPL.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

func newLinerReader() lineReader {
	return NewChatCLI()
}

// NewChatCLI creates a ChatCLI with history loaded from the config dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(configDir, "chat_history")}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line; non-empty lines are added to history.
func (c *ChatCLI) ReadInput(prompt, suggestion string) (string, error) {
	var (
		input string
		err   error
	)
	if suggestion != "" {
		input, err = c.line.PromptWithSuggestion(prompt, suggestion, -1)
	} else {
		input, err = c.line.Prompt(prompt)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history owner-readable only.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl is the line-oriented chat session.
type repl struct {
	app      *App
	in       lineReader
	out      io.Writer
	registry *commands.Registry
	cmdCtx   *commands.Context
	markdown bool

	// suggestion pre-fills the next prompt after dictation
	suggestion string
}

func newREPL(a *App, in lineReader, out io.Writer) *repl {
	r := &repl{
		app:      a,
		in:       in,
		out:      out,
		registry: commands.NewRegistry(),
		cmdCtx: &commands.Context{
			Store:         a.Store,
			Conn:          a.Monitor,
			ExportOptions: a.ExportOptions(),
		},
		markdown: isTerminalWriter(out),
	}
	r.registry.Register(&commands.Command{
		Name:        "/logout",
		Description: "Sign out and continue as guest",
		Category:    "Settings",
		Handler: func(*commands.Context, []string) (commands.Outcome, error) {
			if a.Store.Identity().IsGuest() {
				return commands.Outcome{Notice: "Not signed in."}, nil
			}
			if err := a.Gate.SignOut(); err != nil {
				return commands.Outcome{}, err
			}
			return commands.Outcome{Notice: "Signed out. Chats are now stored on this device."}, nil
		},
	})
	return r
}

// runREPL runs the REPL until /quit, Ctrl+D or end of input.
func runREPL(ctx context.Context, a *App, in lineReader, out io.Writer) error {
	defer in.Close()
	return newREPL(a, in, out).loop(ctx)
}

func (r *repl) loop(ctx context.Context) error {
	r.banner()
	r.printChat(r.app.Store.Snapshot().Current())

	for {
		if ctx.Err() != nil {
			return nil
		}
		suggestion := r.suggestion
		r.suggestion = ""

		line, err := r.in.ReadInput(r.prompt(), suggestion)
		if errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(r.out, RenderConditional(DimStyle, "(type /quit or press Ctrl+D to exit)"))
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if commands.IsCommand(line) {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

func (r *repl) prompt() string {
	// liner counts prompt width itself, so no escape codes here
	return "you> "
}

func (r *repl) banner() {
	snap := r.app.Store.Snapshot()
	fmt.Fprintln(r.out, RenderConditional(TitleStyle, "Echo")+" "+
		RenderConditional(DimStyle, "signed in as "+snap.Identity.Name()+", personality "+snap.Personality.Label()))
	fmt.Fprintln(r.out, RenderConditional(DimStyle, "Type a message, or /help for commands."))
	fmt.Fprintln(r.out, RenderSeparator())
}

// printChat prints the chat header and every message.
func (r *repl) printChat(c *model.Chat) {
	if c == nil {
		return
	}
	fmt.Fprintln(r.out, RenderConditional(TitleStyle, "# "+c.Name))
	for _, msg := range c.Messages {
		r.printMessage(msg)
	}
}

func (r *repl) printMessage(msg model.Message) {
	if !msg.IsUser() && !msg.IsError() && r.markdown {
		fmt.Fprintln(r.out, RenderConditional(SenderStyle, msg.Sender.String()+":"))
		fmt.Fprint(r.out, renderMarkdown(msg.Text))
		return
	}
	fmt.Fprintln(r.out, renderBubble(msg))
}

func (r *repl) send(ctx context.Context, text string) {
	res, err := r.app.Dispatcher.Send(ctx, text)
	switch {
	case errors.Is(err, dispatch.ErrEmptyInput):
		return
	case err != nil:
		fmt.Fprintln(r.out, RenderConditional(ErrorStyle, "Error: ")+err.Error())
		return
	}
	if res.Reply != nil {
		r.printMessage(*res.Reply)
	}
	if res.Error != "" && res.ErrorShown {
		r.printMessage(model.NewErrorMessage(res.Error))
	}
}

// command runs one slash command and reports whether the session should end.
func (r *repl) command(ctx context.Context, line string) bool {
	before := r.app.Store.CurrentID()
	outcome, err := r.registry.Execute(r.cmdCtx, line)
	if err != nil {
		fmt.Fprintln(r.out, RenderConditional(ErrorStyle, "Error: ")+err.Error())
		return false
	}
	if outcome.Notice != "" {
		fmt.Fprintln(r.out, outcome.Notice)
	}
	if outcome.Listen {
		r.listen(ctx)
	}
	if after := r.app.Store.CurrentID(); after != before {
		fmt.Fprintln(r.out, RenderSeparator())
		r.printChat(r.app.Store.Snapshot().Current())
	}
	return outcome.Quit
}

// listen runs dictation and offers the transcript as the next input.
func (r *repl) listen(ctx context.Context) {
	fmt.Fprintln(r.out, RenderConditional(DimStyle, "Listening..."))
	text, err := voice.Apply(ctx, r.app.Voice, "")
	switch {
	case errors.Is(err, voice.ErrUnsupported):
		fmt.Fprintln(r.out, RenderConditional(WarningStyle, "Voice input is not available. Set [voice] command in the config file."))
	case err != nil:
		fmt.Fprintln(r.out, RenderConditional(ErrorStyle, "Error: ")+err.Error())
	default:
		r.suggestion = text
	}
}
