// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/echochat/echo/internal/export"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/storage"
	"github.com/echochat/echo/internal/util"
)

var errNoStore = errors.New("no chat session")

// =============================================================================
// CHATS
// =============================================================================

func handleNew(ctx *Context, _ []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	if _, err := ctx.Store.CreateChat(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: "Started a new chat."}, nil
}

func handleChats(ctx *Context, args []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	snap := ctx.Store.Snapshot()
	metas := storage.Summarize(snap.Chats, snap.CurrentID, strings.Join(args, " "))
	return Outcome{Notice: storage.FormatChatList(metas)}, nil
}

func handleSwitch(ctx *Context, args []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	id, err := ResolveChat(ctx, args[0])
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Store.SwitchChat(id); err != nil {
		return Outcome{}, err
	}
	c, _ := ctx.Store.Chat(id)
	return Outcome{Notice: "Switched to " + chatLabel(c, id) + "."}, nil
}

func handleRename(ctx *Context, args []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	name := strings.Join(args, " ")
	if err := ctx.Store.RenameChat(ctx.Store.CurrentID(), name); err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: "Renamed chat to " + strconv.Quote(strings.TrimSpace(name)) + "."}, nil
}

func handleDelete(ctx *Context, args []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	id := ctx.Store.CurrentID()
	if len(args) > 0 {
		var err error
		if id, err = ResolveChat(ctx, args[0]); err != nil {
			return Outcome{}, err
		}
	}
	c, _ := ctx.Store.Chat(id)
	label := chatLabel(c, id)
	if err := ctx.Store.DeleteChat(id); err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: "Deleted " + label + "."}, nil
}

func handleClear(ctx *Context, _ []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	if err := ctx.Store.ClearChat(ctx.Store.CurrentID()); err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: "Chat cleared."}, nil
}

func handleExport(ctx *Context, args []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	format := "md"
	if len(args) > 0 {
		format = args[0]
	}
	exporter, err := export.New(format, ctx.ExportOptions)
	if err != nil {
		return Outcome{}, err
	}
	c, err := ctx.Store.Chat(ctx.Store.CurrentID())
	if err != nil {
		return Outcome{}, err
	}
	path, err := export.ToFile(c, exporter, ctx.ExportOptions)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: "Exported to " + path}, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

func handleEdit(ctx *Context, args []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	chatID, msgID, err := resolveMessage(ctx, args[0])
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Store.EditMessage(chatID, msgID, strings.Join(args[1:], " ")); err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: "Message " + args[0] + " updated."}, nil
}

func handleRemove(ctx *Context, args []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	chatID, msgID, err := resolveMessage(ctx, args[0])
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Store.DeleteMessage(chatID, msgID); err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: "Message " + args[0] + " deleted."}, nil
}

func handleVoice(*Context, []string) (Outcome, error) {
	return Outcome{Listen: true}, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func handlePersonality(ctx *Context, args []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	if len(args) == 0 {
		return Outcome{Notice: "Personality: " + ctx.Store.Personality().Label()}, nil
	}
	p, err := model.ParsePersonality(args[0])
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Store.SetPersonality(p); err != nil {
		return Outcome{}, err
	}
	return Outcome{Notice: "Personality set to " + p.Label() + "."}, nil
}

func handleOffline(ctx *Context, args []string) (Outcome, error) {
	forcer, _ := ctx.Conn.(Forcer)
	if len(args) > 0 {
		if forcer == nil {
			return Outcome{}, errors.New("offline mode cannot be changed here")
		}
		forcer.SetForced(strings.EqualFold(args[0], "on"))
	}

	state := "online"
	if ctx.Conn != nil && !ctx.Conn.Online() {
		state = "offline"
	}
	if forcer != nil && forcer.Forced() {
		state = "offline (forced)"
	}
	return Outcome{Notice: "Connection: " + state}, nil
}

func handleWhoami(ctx *Context, _ []string) (Outcome, error) {
	if ctx.Store == nil {
		return Outcome{}, errNoStore
	}
	snap := ctx.Store.Snapshot()
	if snap.Identity.IsGuest() {
		return Outcome{Notice: "Guest (chats are stored on this device)"}, nil
	}
	return Outcome{Notice: fmt.Sprintf("%s (%s, chats stored %s)",
		snap.Identity.Name(), snap.Identity.UserID, snap.Backend)}, nil
}

// =============================================================================
// GENERAL
// =============================================================================

func handleHelp(ctx *Context, args []string) (Outcome, error) {
	r := ctx.Registry
	if r == nil {
		r = NewRegistry()
	}
	if len(args) > 0 {
		name := args[0]
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}
		cmd := r.Get(strings.ToLower(name))
		if cmd == nil {
			return Outcome{}, &ValidationError{Command: name, Message: ErrUnknownCommand.Error()}
		}
		return Outcome{Notice: describe(cmd)}, nil
	}
	return Outcome{Notice: Help(r)}, nil
}

func handleQuit(*Context, []string) (Outcome, error) {
	return Outcome{Quit: true}, nil
}

// Help formats all commands grouped by category.
func Help(r *Registry) string {
	groups := r.ByCategory()
	var sb strings.Builder
	for _, category := range categoryOrder {
		cmds := groups[category]
		if len(cmds) == 0 {
			continue
		}
		sb.WriteString(category + ":\n")
		for _, cmd := range cmds {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			sb.WriteString("  " + util.PadWidth(usage, 34) + " " + cmd.Description + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Anything else you type is sent to Echo.")
	return sb.String()
}

func describe(cmd *Command) string {
	var sb strings.Builder
	usage := cmd.Usage
	if usage == "" {
		usage = cmd.Name
	}
	sb.WriteString(usage + "\n  " + cmd.Description)
	if len(cmd.Aliases) > 0 {
		sb.WriteString("\n  Aliases: " + strings.Join(cmd.Aliases, ", "))
	}
	return sb.String()
}

// =============================================================================
// REFERENCES
// =============================================================================

// ResolveChat maps a 1-based listing number or a chat id to a chat id.
func ResolveChat(ctx *Context, ref string) (string, error) {
	snap := ctx.Store.Snapshot()
	if _, ok := snap.Chats[ref]; ok {
		return ref, nil
	}
	order := snap.Order()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(order) {
			return "", fmt.Errorf("no chat number %d (have %d)", n, len(order))
		}
		return order[n-1], nil
	}
	return "", fmt.Errorf("no chat %q", ref)
}

// resolveMessage maps a 1-based message number in the current chat.
func resolveMessage(ctx *Context, ref string) (chatID, msgID string, err error) {
	chatID = ctx.Store.CurrentID()
	c, err := ctx.Store.Chat(chatID)
	if err != nil {
		return "", "", err
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(c.Messages) {
		return "", "", fmt.Errorf("no message %s (have %d)", ref, len(c.Messages))
	}
	return chatID, c.Messages[n-1].ID, nil
}

func chatLabel(c *model.Chat, id string) string {
	if c == nil {
		return id
	}
	return strconv.Quote(c.Name)
}
