// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/util"
)

// ChatMeta is the lightweight listing view of a chat.
type ChatMeta struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
	Current      bool      `json:"current,omitempty"`
}

// Summarize builds listing entries newest first. A non-empty query keeps only
// chats whose name or messages contain it, case-insensitively.
func Summarize(chats map[string]*model.Chat, currentID, query string) []ChatMeta {
	metas := make([]ChatMeta, 0, len(chats))
	for _, id := range model.SortedIDs(chats) {
		c := chats[id]
		if query != "" && !c.Contains(query) {
			continue
		}
		created, _ := model.ChatIDTime(id)
		metas = append(metas, ChatMeta{
			ID:           id,
			Name:         c.Name,
			CreatedAt:    created,
			MessageCount: len(c.Messages),
			Preview:      c.Preview(),
			Current:      id == currentID,
		})
	}
	return metas
}

// FormatChatList formats chats as a table with id, creation time, message
// count, name and preview. The current chat is marked with "*".
func FormatChatList(chats []ChatMeta) string {
	if len(chats) == 0 {
		return "No chats found."
	}

	var sb strings.Builder
	sb.WriteString("Chats:\n")
	sb.WriteString("--------------------------------------------------------------------------\n")
	sb.WriteString("  " + util.PadWidth("ID", 20) + " " + util.PadWidth("Created", 17) + " " +
		util.PadWidth("Msgs", 5) + " " + util.PadWidth("Name", 20) + " Preview\n")
	sb.WriteString("--------------------------------------------------------------------------\n")

	for _, c := range chats {
		mark := "  "
		if c.Current {
			mark = "* "
		}
		created := "-"
		if !c.CreatedAt.IsZero() {
			created = c.CreatedAt.Format("2006-01-02 15:04")
		}
		sb.WriteString(mark +
			util.PadWidth(util.TruncateWidth(c.ID, 20), 20) + " " +
			util.PadWidth(created, 17) + " " +
			util.PadWidth(strconv.Itoa(c.MessageCount), 5) + " " +
			util.PadWidth(util.TruncateWidth(c.Name, 20), 20) + " " +
			util.TruncateWidth(util.SingleLine(c.Preview), 30) + "\n")
	}
	return sb.String()
}
