// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// messages.go - Single message commands.
//
// Command: messages <subcommand>
//
// Subcommands:
//   edit CHAT MSG TEXT...   Replace the text of one message
//   delete CHAT MSG         Remove one message
//
// CHAT is a number from "chats list" or a chat id. MSG is a number from
// "chats show" (1 = first message) or a message id.

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/session"
)

func newMessagesCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"msg"},
		Short:   "Edit or delete single messages",
	}
	cmd.AddCommand(newMessagesEditCmd(o), newMessagesDeleteCmd(o))
	return cmd
}

// resolveMessageRef maps a 1-based message number or a message id.
func resolveMessageRef(c *model.Chat, ref string) (string, error) {
	if c.IndexOf(ref) >= 0 {
		return ref, nil
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(c.Messages) {
		return "", fmt.Errorf("%w: %s", session.ErrMessageNotFound, ref)
	}
	return c.Messages[n-1].ID, nil
}

// chatAndMessage resolves both references.
func chatAndMessage(a *App, chatRef, msgRef string) (chatID, msgID string, err error) {
	chatID, err = resolve(a, chatRef)
	if err != nil {
		return "", "", err
	}
	c, err := a.Store.Chat(chatID)
	if err != nil {
		return "", "", err
	}
	msgID, err = resolveMessageRef(c, msgRef)
	return chatID, msgID, err
}

func newMessagesEditCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit CHAT MSG TEXT...",
		Short: "Replace the text of one message",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[2:], " ")
			return o.withApp(cmd, func(a *App) error {
				chatID, msgID, err := chatAndMessage(a, args[0], args[1])
				if err != nil {
					return err
				}
				if err := a.Store.EditMessage(chatID, msgID, text); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Message updated.")
				return nil
			})
		},
	}
}

func newMessagesDeleteCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete CHAT MSG",
		Aliases: []string{"rm"},
		Short:   "Remove one message",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(a *App) error {
				chatID, msgID, err := chatAndMessage(a, args[0], args[1])
				if err != nil {
					return err
				}
				if err := a.Store.DeleteMessage(chatID, msgID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Message deleted.")
				return nil
			})
		},
	}
}
