// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echochat/echo/internal/model"
)

func sampleChat() *model.Chat {
	c := model.NewChat("guest-1700000000000")
	c.Name = "Trip: ideas"
	c.Append(model.NewUserMessage("Where should I go?"))
	c.Append(model.NewEchoMessage("Try `Lisbon`.\n\n```go\nfmt.Println(\"hi\")\n```"))
	c.Append(model.NewErrorMessage(model.ErrorOffline))
	return c
}

func fixedOptions(dir string) *Options {
	opts := DefaultOptions()
	opts.OutputDir = dir
	opts.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return opts
}

func TestNew(t *testing.T) {
	for _, format := range []string{"md", "markdown", ".json", "HTML"} {
		e, err := New(format, nil)
		require.NoError(t, err, format)
		assert.NotNil(t, e)
	}
	_, err := New("pdf", nil)
	assert.Error(t, err)
}

func TestExport_RejectsEmptyChat(t *testing.T) {
	for _, format := range Formats {
		e, err := New(format, nil)
		require.NoError(t, err)

		_, err = e.Export(nil)
		assert.ErrorIs(t, err, ErrEmptyChat)
		_, err = e.Export(&model.Chat{ID: "guest-1", Name: "x"})
		assert.ErrorIs(t, err, ErrEmptyChat)
	}
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(fixedOptions("")).Export(sampleChat())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: \"Trip: ideas\"\n"), "title with a colon is quoted")
	assert.Contains(t, md, "chat_id: guest-1700000000000\n")
	assert.Contains(t, md, "messages: 4\n")
	assert.Contains(t, md, "exported: 2026-01-02T03:04:05Z\n")
	assert.Contains(t, md, "# Trip: ideas\n")
	assert.Contains(t, md, "### You\n\nWhere should I go?")
	assert.Contains(t, md, "### Echo\n\n"+model.GreetingText)
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeMetadata = false
	out, err := NewMarkdownExporter(opts).Export(sampleChat())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "# Trip: ideas"))
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(sampleChat())
	require.NoError(t, err)

	var doc struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		CreatedAt time.Time       `json:"created_at"`
		Messages  []model.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "guest-1700000000000", doc.ID)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), doc.CreatedAt.UTC())
	require.Len(t, doc.Messages, 4)
	assert.Equal(t, model.ErrorOffline, doc.Messages[3].Error)
}

func TestHTMLExporter_EscapesText(t *testing.T) {
	c := model.NewChat("guest-1700000000000")
	c.Name = "<script>alert(1)</script>"
	c.Append(model.NewUserMessage("<img src=x onerror=alert(1)>"))

	out, err := NewHTMLExporter(fixedOptions("")).Export(c)
	require.NoError(t, err)
	page := string(out)

	assert.NotContains(t, page, "<script>alert")
	assert.NotContains(t, page, "<img src=x")
	assert.Contains(t, page, "&lt;script&gt;")
	assert.Contains(t, page, `class="dark-theme"`)
	assert.Contains(t, page, `<div class="message user">`)
}

func TestHTMLExporter_Code(t *testing.T) {
	out, err := NewHTMLExporter(nil).Export(sampleChat())
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<code>Lisbon</code>")
	assert.Contains(t, page, `<pre><code class="language-go">fmt.Println(&#34;hi&#34;)</code></pre>`)
	assert.Contains(t, page, `<div class="message warning">`)
}

func TestToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	opts := fixedOptions(dir)

	path, err := ToFile(sampleChat(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "echo_Trip-_ideas_20260102_030405.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "### You")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"New Chat", "New_Chat"},
		{"a/b\\c:d", "a-b-c-d"},
		{"  ", "chat"},
		{"bell\x07", "bell-"},
		{strings.Repeat("x", 80), strings.Repeat("x", 47) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
