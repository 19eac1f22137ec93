// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/echochat/echo/internal/model"
)

var (
	codeBlockRegex  = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")
	inlineCodeRegex = regexp.MustCompile("`([^`\n]+)`")
)

// HTMLExporter exports chats to a standalone HTML page with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a chat to HTML. All chat text is escaped.
func (e *HTMLExporter) Export(chat *model.Chat) ([]byte, error) {
	if err := validate(chat); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	title := html.EscapeString(chat.Name)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("  <meta charset=\"UTF-8\">\n")
	sb.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString("  <meta name=\"generator\" content=\"echo\">\n")
	fmt.Fprintf(&sb, "  <title>%s</title>\n", title)
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", theme)

	fmt.Fprintf(&sb, "<header><h1>%s</h1>", title)
	if e.options.IncludeMetadata {
		sb.WriteString("<div class=\"meta\">")
		if t, ok := created(chat); ok {
			fmt.Fprintf(&sb, "<span>Created %s</span> ", t.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(&sb, "<span>%d messages</span></div>", len(chat.Messages))
	}
	sb.WriteString("</header>\n<main>\n")

	for _, msg := range chat.Messages {
		class := "echo"
		switch {
		case msg.IsUser():
			class = "user"
		case msg.IsError():
			class = "warning"
		}
		fmt.Fprintf(&sb, "<div class=\"message %s\"><div class=\"sender\">%s</div>%s</div>\n",
			class, html.EscapeString(msg.Sender.String()), formatContent(msg.Text))
	}

	sb.WriteString("</main>\n")
	fmt.Fprintf(&sb, "<footer>Exported from Echo on %s</footer>\n",
		e.options.clock().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// formatContent escapes text and renders fenced and inline code.
func formatContent(content string) string {
	content = html.EscapeString(strings.TrimSpace(content))

	content = codeBlockRegex.ReplaceAllStringFunc(content, func(match string) string {
		parts := codeBlockRegex.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		return fmt.Sprintf("<pre><code class=\"language-%s\">%s</code></pre>",
			parts[1], strings.TrimSpace(parts[2]))
	})
	content = inlineCodeRegex.ReplaceAllString(content, "<code>$1</code>")

	var out []string
	for _, para := range strings.Split(content, "\n\n") {
		if strings.HasPrefix(para, "<pre>") {
			out = append(out, para)
			continue
		}
		out = append(out, "<p>"+strings.ReplaceAll(para, "\n", "<br>")+"</p>")
	}
	return strings.Join(out, "\n")
}

const css = `  <style>
    body { margin: 0; font-family: system-ui, sans-serif; line-height: 1.5; }
    .dark-theme { background: #1e1e2e; color: #cdd6f4; }
    .light-theme { background: #ffffff; color: #1f2937; }
    .container { max-width: 760px; margin: 0 auto; padding: 24px; }
    header h1 { margin-bottom: 4px; }
    .meta { opacity: 0.7; font-size: 0.9em; }
    .message { border-radius: 12px; padding: 8px 14px; margin: 12px 0; max-width: 80%; }
    .message.user { margin-left: auto; background: #1d4ed8; color: #e0f2fe; }
    .message.echo { background: #3b3655; color: #e9e4f5; }
    .message.warning { background: #78350f; color: #fef3c7; }
    .light-theme .message.user { background: #dbeafe; color: #1e40af; }
    .light-theme .message.echo { background: #f5f3ff; color: #5b4b8a; }
    .light-theme .message.warning { background: #fef3c7; color: #92400e; }
    .sender { font-weight: bold; font-size: 0.85em; opacity: 0.8; }
    pre { overflow-x: auto; padding: 8px; border-radius: 6px; background: rgba(0,0,0,0.25); }
    footer { margin-top: 32px; opacity: 0.6; font-size: 0.85em; }
  </style>
`
