// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// root.go - The echo root command, global flags and process entry point.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/echochat/echo/internal/config"
	"github.com/echochat/echo/internal/logging"
)

// BuildInfo is stamped into the binary by the linker.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// String formats the version line.
func (b BuildInfo) String() string {
	v := b.Version
	if v == "" {
		v = "dev"
	}
	if b.Commit != "" {
		v += " (" + b.Commit
		if b.Date != "" {
			v += ", " + b.Date
		}
		v += ")"
	}
	return v
}

// annotationConfigOptional marks commands that run with defaults when the
// config file is missing or invalid.
const annotationConfigOptional = "echo/config-optional"

// rootOptions carries global flags and the state PersistentPreRunE builds.
type rootOptions struct {
	configPath string
	logLevel   string
	offline    bool
	plain      bool

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
}

// NewRootCmd builds the full command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	root, _ := newRoot(info)
	return root
}

func newRoot(info BuildInfo) (*cobra.Command, *rootOptions) {
	o := &rootOptions{logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "echo",
		Short: "Chat with Echo, your AI best friend",
		Long: `Echo is a terminal chat client. Chats are kept on this device while you
are a guest and in your account once you sign in with "echo login".`,
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup(cmd, cmd == cmd.Root())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, func(a *App) error {
				if o.plain || !interactive() {
					return runREPL(cmd.Context(), a, newLinerReader(), cmd.OutOrStdout())
				}
				return runTUI(a)
			})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "config file (default ~/.echo/config.toml)")
	pf.StringVar(&o.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.BoolVar(&o.offline, "offline", false, "force offline mode")
	root.Flags().BoolVar(&o.plain, "plain", false, "use the line REPL instead of the full screen")

	root.AddCommand(
		newAskCmd(o),
		newChatsCmd(o),
		newMessagesCmd(o),
		newLoginCmd(o),
		newLogoutCmd(o),
		newWhoamiCmd(o),
		newConfigCmd(o),
	)
	return root, o
}

// setup loads configuration and builds the logger. Interactive sessions log
// to a file by default so log lines never land on the chat screen.
func (o *rootOptions) setup(cmd *cobra.Command, interactiveSession bool) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if cmd.Annotations[annotationConfigOptional] == "" {
			return err
		}
		// config init and path must work before a valid file exists
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
	}
	if o.offline {
		cfg.Chat.OfflineMode = true
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	opts := logging.FromConfig(cfg)
	opts.Out = cmd.ErrOrStderr()
	if interactiveSession && opts.File == "" {
		if dir, err := config.ConfigDir(); err == nil {
			opts.File = filepath.Join(dir, "echo.log")
		}
	}
	logger, closer, err := logging.New(opts)
	if err != nil {
		return err
	}
	o.cfg, o.logger, o.logCloser = cfg, logger, closer
	return nil
}

// withApp opens the application for the duration of fn.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(a *App) error) (err error) {
	a, err := OpenApp(cmd.Context(), o.cfg, o.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			o.logger.Warn().Err(cerr).Msg("close session")
		}
	}()
	return fn(a)
}

func (o *rootOptions) close() {
	if o.logCloser != nil {
		o.logCloser.Close()
	}
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute(info BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, o := newRoot(info)
	return run(ctx, root, o, os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, o *rootOptions, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	o.close()
	if err != nil {
		fmt.Fprintln(stderr, RenderConditional(ErrorStyle, "Error:"), err)
		return 1
	}
	return 0
}
