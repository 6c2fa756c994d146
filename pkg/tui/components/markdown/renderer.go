// Package markdown renders assistant markdown, viewport embeds and frontend
// tool pages for the terminal.
package markdown

import (
	"log/slog"
	"strings"

	"charm.land/glamour/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/linlay/agent-webclient/pkg/tui/styles"
)

const maxWrap = 120

type Renderer struct {
	theme string
	width int
	tr    *glamour.TermRenderer
}

// NewRenderer builds a renderer wrapping at width, capped at 120 columns.
func NewRenderer(theme string, width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	theme = styles.Normalize(theme)
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme),
		glamour.WithWordWrap(min(width, maxWrap)),
	)
	if err != nil {
		slog.Debug("Markdown renderer unavailable", "error", err)
	}
	return &Renderer{theme: theme, width: width, tr: tr}
}

// Matches reports whether the renderer was built for theme and width.
func (r *Renderer) Matches(theme string, width int) bool {
	return r.theme == styles.Normalize(theme) && r.width == width
}

// Render returns styled output, or the input unchanged when rendering fails.
func (r *Renderer) Render(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	if r.tr == nil {
		return md
	}
	out, err := r.tr.Render(md)
	if err != nil {
		slog.Debug("Markdown render failed", "error", err)
		return md
	}
	return strings.Trim(out, "\n")
}

// HTMLToMarkdown converts an embed or tool page so it can be rendered like
// any other message. Broken markup falls back to the raw text.
func HTMLToMarkdown(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		slog.Debug("HTML conversion failed", "error", err)
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(md)
}
