// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - Sign in, sign out and identity commands.
//
// echo never runs a login flow. "login" stores a session token issued
// elsewhere; signing in moves guest chats into the account when
// storage.migrate_guest_chats is set.

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/storage"
)

func newLoginCmd(o *rootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login --token JWT",
		Short: "Sign in with a session token",
		Long: `Store a session token and sign in. Use "--token -" to read the token from
standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "-" {
				t, err := readStdin(cmd.InOrStdin())
				if err != nil {
					return err
				}
				token = t
			}
			if strings.TrimSpace(token) == "" {
				return errors.New("a session token is required")
			}
			return o.withApp(cmd, func(a *App) error {
				id, err := a.Gate.SignIn(token)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Signed in as %s.\n", id.Name())
				if !a.backends.HasRemote() {
					fmt.Fprintln(out, RenderConditional(WarningStyle,
						"No remote chat store is configured; chats stay on this device."))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token (JWT), or - for stdin")
	return cmd
}

func newLogoutCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and continue as guest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(a *App) error {
				if a.Gate.CurrentIdentity().IsGuest() {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
					return nil
				}
				if err := a.Gate.SignOut(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func newWhoamiCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity and where chats are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gate, err := NewGate(o.cfg, o.logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeIdentity(gate.CurrentIdentity(), o.cfg.RemoteEnabled()))
			return nil
		},
	}
}

func describeIdentity(id model.Identity, remote bool) string {
	if id.IsGuest() {
		return id.Name() + " (chats are stored on this device)"
	}
	where := "chats are stored in your account"
	if !remote {
		where = "no remote store configured, chats are stored on this device"
	}
	return fmt.Sprintf("%s [%s] (%s, backend %s)", id.Name(), id.UserID, where, backendFor(remote))
}

func backendFor(remote bool) string {
	if remote {
		return storage.KindRemote
	}
	return storage.KindLocal
}
