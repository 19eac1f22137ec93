// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash commands shared by the chat screen and
// the plain line REPL: parsing, validation, completion and execution against
// the session store.
//
// Handlers never print. They return an Outcome that the caller renders, so
// the same command behaves identically in both front ends.
package commands

import (
	"errors"
	"sort"
	"strings"

	"github.com/echochat/echo/internal/export"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/offline"
	"github.com/echochat/echo/internal/session"
)

// ErrUnknownCommand is returned for an unregistered command name.
var ErrUnknownCommand = errors.New("unknown command")

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	Description string

	// Usage shows argument syntax (e.g., "/rename <name>")
	Usage string

	Args []ArgDef

	Handler func(ctx *Context, args []string) (Outcome, error)

	// Category groups commands in help output.
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeChat                   // Chat number or id
	ArgTypeMessage                // Message number in the current chat
	ArgTypeEnum                   // One of predefined values
)

// Outcome is what a command asks its front end to do.
type Outcome struct {
	// Notice is shown to the user.
	Notice string

	// Quit ends the session.
	Quit bool

	// Listen starts voice dictation into the input line.
	Listen bool
}

// Context carries the dependencies handlers act on.
type Context struct {
	Store *session.Store
	Conn  offline.Connectivity

	// Registry is set by Execute for /help.
	Registry *Registry

	// ExportOptions configures /export. Nil uses export defaults.
	ExportOptions *export.Options
}

// Forcer is implemented by connectivity sources that can be forced offline.
type Forcer interface {
	SetForced(offline bool)
	Forced() bool
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
	parser   *Parser
}

// NewRegistry creates a registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.parser = NewParser(r)
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	return r.aliases[name]
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Execute parses and runs one command line.
func (r *Registry) Execute(ctx *Context, input string) (Outcome, error) {
	res := r.parser.Parse(input)
	if !res.IsCommand {
		return Outcome{}, errors.New("not a command")
	}
	if res.Command == nil {
		return Outcome{}, &ValidationError{Command: res.CommandName, Message: ErrUnknownCommand.Error()}
	}
	if err := ValidateArgs(res.Command, res.Args); err != nil {
		return Outcome{}, err
	}
	ctx.Registry = r
	return res.Command.Handler(ctx, res.Args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

// categoryOrder is the order categories appear in help.
var categoryOrder = []string{"Chats", "Messages", "Settings", "General"}

func (r *Registry) registerBuiltins() {
	// Chats
	r.Register(&Command{
		Name:        "/new",
		Aliases:     []string{"/n"},
		Description: "Start a new chat",
		Category:    "Chats",
		Handler:     handleNew,
	})
	r.Register(&Command{
		Name:        "/chats",
		Aliases:     []string{"/list", "/ls"},
		Description: "List chats, newest first",
		Usage:       "/chats [search]",
		Args:        []ArgDef{{Name: "search", Type: ArgTypeString, Description: "Only chats containing this text"}},
		Category:    "Chats",
		Handler:     handleChats,
	})
	r.Register(&Command{
		Name:        "/switch",
		Aliases:     []string{"/open"},
		Description: "Switch to another chat",
		Usage:       "/switch <number|id>",
		Args:        []ArgDef{{Name: "chat", Required: true, Type: ArgTypeChat, Description: "Chat number from /chats or chat id"}},
		Category:    "Chats",
		Handler:     handleSwitch,
	})
	r.Register(&Command{
		Name:        "/rename",
		Description: "Rename the current chat",
		Usage:       "/rename <name>",
		Args:        []ArgDef{{Name: "name", Required: true, Type: ArgTypeString, Description: "New chat name"}},
		Category:    "Chats",
		Handler:     handleRename,
	})
	r.Register(&Command{
		Name:        "/delete",
		Aliases:     []string{"/del"},
		Description: "Delete a chat (default: the current one)",
		Usage:       "/delete [number|id]",
		Args:        []ArgDef{{Name: "chat", Type: ArgTypeChat, Description: "Chat number from /chats or chat id"}},
		Category:    "Chats",
		Handler:     handleDelete,
	})
	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/c"},
		Description: "Reset the current chat to the greeting",
		Category:    "Chats",
		Handler:     handleClear,
	})
	r.Register(&Command{
		Name:        "/export",
		Description: "Export the current chat to a file",
		Usage:       "/export [md|json|html]",
		Args:        []ArgDef{{Name: "format", Type: ArgTypeEnum, Values: export.Formats, Description: "Export format"}},
		Category:    "Chats",
		Handler:     handleExport,
	})

	// Messages
	r.Register(&Command{
		Name:        "/edit",
		Description: "Replace the text of a message",
		Usage:       "/edit <number> <text>",
		Args: []ArgDef{
			{Name: "number", Required: true, Type: ArgTypeMessage, Description: "Message number"},
			{Name: "text", Required: true, Type: ArgTypeString, Description: "New text"},
		},
		Category: "Messages",
		Handler:  handleEdit,
	})
	r.Register(&Command{
		Name:        "/rm",
		Description: "Delete a message",
		Usage:       "/rm <number>",
		Args:        []ArgDef{{Name: "number", Required: true, Type: ArgTypeMessage, Description: "Message number"}},
		Category:    "Messages",
		Handler:     handleRemove,
	})
	r.Register(&Command{
		Name:        "/voice",
		Aliases:     []string{"/mic"},
		Description: "Dictate into the input line",
		Category:    "Messages",
		Handler:     handleVoice,
	})

	// Settings
	personalities := make([]string, len(model.Personalities))
	for i, p := range model.Personalities {
		personalities[i] = string(p)
	}
	r.Register(&Command{
		Name:        "/personality",
		Aliases:     []string{"/p"},
		Description: "Show or set Echo's personality",
		Usage:       "/personality [" + strings.Join(personalities, "|") + "]",
		Args:        []ArgDef{{Name: "name", Type: ArgTypeEnum, Values: personalities, Description: "Personality"}},
		Category:    "Settings",
		Handler:     handlePersonality,
	})
	r.Register(&Command{
		Name:        "/offline",
		Description: "Show or force offline mode",
		Usage:       "/offline [on|off]",
		Args:        []ArgDef{{Name: "state", Type: ArgTypeEnum, Values: []string{"on", "off"}, Description: "Force offline on or off"}},
		Category:    "Settings",
		Handler:     handleOffline,
	})
	r.Register(&Command{
		Name:        "/whoami",
		Description: "Show the signed-in identity",
		Category:    "Settings",
		Handler:     handleWhoami,
	})

	// General
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		Args:        []ArgDef{{Name: "command", Type: ArgTypeString, Description: "Command to describe"}},
		Category:    "General",
		Handler:     handleHelp,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit Echo",
		Category:    "General",
		Handler:     handleQuit,
	})
}
