// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single message command handler.
//
// Command: ask [text...]
// Short:   Send one message and print Echo's reply
//
// Examples:
//   echo ask "How are you today?"
//   echo ask --new "Let's talk about books"
//   echo ask --chat 2 "And what about poetry?"
//   echo "tell me a joke" | echo ask --json
//
// Flags:
//   --chat REF    Send in this chat (number from "chats list" or id)
//   --new         Start a new chat first
//   --json        Print the result as JSON

package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/echochat/echo/internal/commands"
	"github.com/echochat/echo/internal/dispatch"
	"github.com/echochat/echo/internal/model"
)

// ErrNotDelivered is returned when a send ended with an error bubble.
var ErrNotDelivered = errors.New("message not delivered")

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownOnce     sync.Once
	markdownRenderer *glamour.TermRenderer
)

// renderMarkdown renders Echo's reply for a terminal, falling back to the
// raw text when the renderer is unavailable.
func renderMarkdown(content string) string {
	markdownOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()-4),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return content + "\n"
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return rendered
}

// =============================================================================
// ASK COMMAND
// =============================================================================

// askResult is the --json output.
type askResult struct {
	ChatID   string          `json:"chat_id"`
	Message  string          `json:"message"`
	Reply    string          `json:"reply,omitempty"`
	Canned   bool            `json:"canned,omitempty"`
	Error    model.ErrorKind `json:"error,omitempty"`
	ErrorMsg string          `json:"error_text,omitempty"`
}

func newAskCmd(o *rootOptions) *cobra.Command {
	var (
		chatRef string
		newChat bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "ask [text...]",
		Short: "Send one message and print Echo's reply",
		Long: `Send one message through the same path as the chat screen and print the
reply. Without arguments the message is read from standard input.`,
		Example: `  echo ask "How are you today?"
  echo ask --chat 2 "And what about poetry?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				var err error
				if text, err = readStdin(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to send")
			}
			return o.withApp(cmd, func(a *App) error {
				chatID := a.Store.CurrentID()
				switch {
				case newChat:
					id, err := a.Store.CreateChat()
					if err != nil {
						return err
					}
					chatID = id
				case chatRef != "":
					id, err := commands.ResolveChat(&commands.Context{Store: a.Store}, chatRef)
					if err != nil {
						return err
					}
					chatID = id
				}
				res, err := a.Dispatcher.SendTo(cmd.Context(), chatID, text)
				if err != nil {
					return err
				}
				return printAskResult(cmd.OutOrStdout(), res, asJSON)
			})
		},
	}
	cmd.Flags().StringVar(&chatRef, "chat", "", "chat number or id (default: current chat)")
	cmd.Flags().BoolVar(&newChat, "new", false, "start a new chat first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.MarkFlagsMutuallyExclusive("chat", "new")
	return cmd
}

func printAskResult(w io.Writer, res dispatch.Result, asJSON bool) error {
	if asJSON {
		out := askResult{ChatID: res.ChatID, Message: res.UserMessage.Text, Error: res.Error}
		if res.Reply != nil {
			out.Reply, out.Canned = res.Reply.Text, res.Canned
		}
		if res.Error != model.ErrorNone {
			out.ErrorMsg = res.Error.Text()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		switch {
		case res.Reply != nil && isTerminalWriter(w):
			fmt.Fprint(w, renderMarkdown(res.Reply.Text))
		case res.Reply != nil:
			fmt.Fprintln(w, res.Reply.Text)
		case res.Error != model.ErrorNone:
			fmt.Fprintln(w, RenderConditional(WarningStyle, res.Error.Text()))
		}
	}
	if res.Error != model.ErrorNone {
		return ErrNotDelivered
	}
	return nil
}

// readStdin reads piped input; a terminal stdin yields nothing.
func readStdin(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok && isTerminalWriter(f) {
		return "", nil
	}
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
