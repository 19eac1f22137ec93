// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats.go - Chat management commands.
//
// Command: chats <subcommand>
//
// Subcommands:
//   list [--search Q] [--json]     List chats, newest first
//   show [REF]                     Print a chat's messages
//   new                            Start a new chat and select it
//   switch REF                     Select a chat
//   rename REF NAME...             Rename a chat
//   delete REF                     Delete a chat
//   clear [REF]                    Reset a chat to the greeting
//   export [REF] [--format F]      Write a chat to md, json or html
//
// REF is a number from "chats list" (1 = newest) or a chat id.

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/echochat/echo/internal/commands"
	"github.com/echochat/echo/internal/export"
	"github.com/echochat/echo/internal/storage"
)

func newChatsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"chat"},
		Short:   "List and manage chats",
	}
	cmd.AddCommand(
		newChatsListCmd(o),
		newChatsShowCmd(o),
		newChatsNewCmd(o),
		newChatsSwitchCmd(o),
		newChatsRenameCmd(o),
		newChatsDeleteCmd(o),
		newChatsClearCmd(o),
		newChatsExportCmd(o),
	)
	return cmd
}

// resolve maps a chat reference against the store. An empty ref is the
// current chat.
func resolve(a *App, ref string) (string, error) {
	if ref == "" {
		return a.Store.CurrentID(), nil
	}
	return commands.ResolveChat(&commands.Context{Store: a.Store}, ref)
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func newChatsListCmd(o *rootOptions) *cobra.Command {
	var (
		search string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List chats, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(a *App) error {
				snap := a.Store.Snapshot()
				metas := storage.Summarize(snap.Chats, snap.CurrentID, search)
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(metas)
				}
				fmt.Fprint(cmd.OutOrStdout(), storage.FormatChatList(metas))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only chats whose name or messages contain this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newChatsShowCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [REF]",
		Short: "Print the messages of a chat (default: the current one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(a *App) error {
				id, err := resolve(a, optionalArg(args))
				if err != nil {
					return err
				}
				c, err := a.Store.Chat(id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, RenderConditional(TitleStyle, "# "+c.Name))
				for i, msg := range c.Messages {
					fmt.Fprintf(out, "%3d  %s\n", i+1, renderBubble(msg))
				}
				return nil
			})
		},
	}
}

func newChatsNewCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new chat and select it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(a *App) error {
				id, err := a.Store.CreateChat()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func newChatsSwitchCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "switch REF",
		Short: "Select a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(a *App) error {
				id, err := resolve(a, args[0])
				if err != nil {
					return err
				}
				if err := a.Store.SwitchChat(id); err != nil {
					return err
				}
				c, err := a.Store.Chat(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Switched to %q.\n", c.Name)
				return nil
			})
		},
	}
}

func newChatsRenameCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename REF NAME...",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			return o.withApp(cmd, func(a *App) error {
				id, err := resolve(a, args[0])
				if err != nil {
					return err
				}
				if err := a.Store.RenameChat(id, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed chat to %q.\n", name)
				return nil
			})
		},
	}
}

func newChatsDeleteCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete REF",
		Aliases: []string{"rm"},
		Short:   "Delete a chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(a *App) error {
				id, err := resolve(a, args[0])
				if err != nil {
					return err
				}
				c, err := a.Store.Chat(id)
				if err != nil {
					return err
				}
				if err := a.Store.DeleteChat(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q.\n", c.Name)
				return nil
			})
		},
	}
}

func newChatsClearCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [REF]",
		Short: "Reset a chat to the greeting (default: the current one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(a *App) error {
				id, err := resolve(a, optionalArg(args))
				if err != nil {
					return err
				}
				if err := a.Store.ClearChat(id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Chat cleared.")
				return nil
			})
		},
	}
}

func newChatsExportCmd(o *rootOptions) *cobra.Command {
	var (
		format string
		asJSON bool
		outDir string
		theme  string
	)
	cmd := &cobra.Command{
		Use:   "export [REF]",
		Short: "Export a chat to Markdown, JSON or HTML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				format = "json"
			}
			return o.withApp(cmd, func(a *App) error {
				id, err := resolve(a, optionalArg(args))
				if err != nil {
					return err
				}
				c, err := a.Store.Chat(id)
				if err != nil {
					return err
				}
				opts := a.ExportOptions()
				if outDir != "" {
					opts.OutputDir = outDir
				}
				if theme != "" {
					opts.Theme = theme
				}
				exporter, err := export.New(format, opts)
				if err != nil {
					return err
				}
				path, err := export.ToFile(c, exporter, opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "export format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().BoolVar(&asJSON, "json", false, "shorthand for --format json")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "output directory (default: current directory)")
	cmd.Flags().StringVar(&theme, "theme", "", "HTML theme: light or dark")
	return cmd
}
