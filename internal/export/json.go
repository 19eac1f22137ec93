// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/echochat/echo/internal/model"
)

// JSONExporter exports the complete chat record. Options are ignored so the
// output can be re-imported.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(*Options) *JSONExporter {
	return &JSONExporter{}
}

// jsonChat is the exported document.
type jsonChat struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	Messages  []model.Message `json:"messages"`
}

// Export converts a chat to indented JSON.
func (e *JSONExporter) Export(chat *model.Chat) ([]byte, error) {
	if err := validate(chat); err != nil {
		return nil, err
	}
	doc := jsonChat{ID: chat.ID, Name: chat.Name, Messages: chat.Messages}
	if t, ok := created(chat); ok {
		doc.CreatedAt = &t
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
