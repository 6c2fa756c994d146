package tui

import (
	"cmp"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/linlay/agent-webclient/pkg/chatlist"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/tui/components/markdown"
)

const (
	maxPageLines   = 10
	maxParamLines  = 6
	maxDebugShown  = 8
	fireworksChars = "✦ 🎆 ✧ 🎇 ✨ "
)

// renderPanels stacks the panels shown between the transcript and the
// composer.
func (m *Model) renderPanels() string {
	var parts []string
	if p := m.todo.Render(); p != "" {
		parts = append(parts, p)
	}
	if p := m.renderPending(); p != "" {
		parts = append(parts, p)
	}
	if m.tool != nil {
		parts = append(parts, m.renderTool())
	}
	if len(m.suggestions) > 0 {
		parts = append(parts, m.renderSuggestions())
	}
	if m.debug {
		parts = append(parts, m.renderDebug())
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderPending() string {
	if len(m.pending) == 0 {
		return ""
	}
	width := max(m.width-4, 10)
	lines := make([]string, 0, len(m.pending)+1)
	for _, p := range m.pending {
		var mark string
		switch p.Status {
		case frontendtool.PendingOK:
			mark = m.theme.Success.Render("✓")
		case frontendtool.PendingError:
			mark = m.theme.Error.Render("✗")
		default:
			mark = m.theme.Warning.Render("◇")
		}
		line := mark + " " + m.theme.Bold.Render(cmp.Or(p.ToolName, p.ToolKey, p.ToolID)) + m.theme.Muted.Render(" "+p.Key)
		if p.StatusText != "" {
			line += " " + m.theme.Secondary.Render(p.StatusText)
		}
		lines = append(lines, ansi.Truncate(line, width, "…"))
		if payload, _, _ := strings.Cut(strings.TrimSpace(p.PayloadText), "\n"); payload != "" {
			lines = append(lines, m.theme.Muted.Render(ansi.Truncate("  "+payload, width, "…")))
		}
	}
	lines = append(lines, m.theme.Muted.Render("Ctrl+a approves the first open card"))
	return m.theme.Panel.Width(m.width).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderTool() string {
	t := m.tool
	lines := []string{
		m.theme.Badge.Render("◆ "+cmp.Or(t.ToolName, t.ToolKey)) + m.theme.Muted.Render(" "+t.ToolKey),
	}
	if t.Description != "" {
		lines = append(lines, m.theme.Secondary.Render(t.Description))
	}

	switch {
	case t.Loading:
		lines = append(lines, m.theme.Muted.Render("loading page…"))
	case t.LoadError != "":
		lines = append(lines, m.theme.Error.Render(t.LoadError))
	case t.HTML != "":
		lines = append(lines, clipLines(m.md.Render(markdown.HTMLToMarkdown(t.HTML)), maxPageLines))
	}

	lines = append(lines,
		m.theme.Muted.Render("params"),
		clipLines(frontendtool.ParamsText(t.Params), maxParamLines),
	)
	switch {
	case t.Submitting:
		lines = append(lines, m.theme.Warning.Render("submitting…"))
	case t.SubmitError != "":
		lines = append(lines, m.theme.Error.Render(t.SubmitError))
	}
	lines = append(lines, m.theme.Muted.Render("Enter submits the composer JSON, or the params above when it is empty"))

	return m.theme.PanelFocus.
		BorderForeground(lipgloss.Color(m.theme.Palette.Badge)).
		Width(m.width).
		Render(strings.Join(lines, "\n"))
}

func (m *Model) renderSuggestions() string {
	parts := make([]string, len(m.suggestions))
	for i, a := range m.suggestions {
		label := "@" + a.Key
		if a.Name != "" && a.Name != a.Key {
			label += " " + a.Name
		}
		if i == 0 {
			parts[i] = m.theme.Selected.Render(label)
		} else {
			parts[i] = m.theme.Secondary.Render(label)
		}
	}
	line := strings.Join(parts, "  ") + m.theme.Muted.Render("  (Tab completes)")
	return " " + ansi.Truncate(line, max(m.width-2, 10), "…")
}

func (m *Model) renderDebug() string {
	lines := m.debugLines[max(len(m.debugLines)-maxDebugShown, 0):]
	out := make([]string, 0, len(lines)+1)
	out = append(out, m.theme.Info.Render("debug"))
	for _, l := range lines {
		out = append(out, m.theme.Muted.Render(ansi.Truncate(l, max(m.width-4, 10), "…")))
	}
	return m.theme.Panel.Width(m.width).Render(strings.Join(out, "\n"))
}

func (m *Model) renderChats(height int) string {
	inner := sidebarWidth - 4
	lines := []string{m.theme.Accent.Bold(true).Render("Chats")}
	if len(m.snapshot.Chats) == 0 {
		lines = append(lines, m.theme.Muted.Render("no chats"))
	}
	now := time.Now()
	for i, c := range m.snapshot.Chats {
		title := ansi.Truncate(chatlist.Title(c), inner-2, "…")
		meta := ansi.Truncate(chatlist.TimeLabel(c.UpdatedAt, now)+" "+chatlist.AgentLabel(c), inner-2, "…")
		if i == m.chatCursor {
			lines = append(lines, m.theme.Selected.Render("› "+title))
		} else {
			lines = append(lines, "  "+title)
		}
		lines = append(lines, m.theme.Muted.Render("  "+meta))
	}
	return m.theme.PanelFocus.
		Width(sidebarWidth).
		Height(max(height, 3)).
		Render(strings.Join(lines, "\n"))
}

func (m *Model) renderModal() string {
	mod := m.modal
	body := m.theme.Bold.Render(mod.Title) + "\n\n" + mod.Content + "\n\n" + m.theme.Muted.Render("["+mod.CloseText+"]")
	return m.theme.Modal.Width(min(60, max(m.width-4, 20))).Render(body)
}

func (m *Model) renderFireworks() string {
	n := max(m.width/ansi.StringWidth(fireworksChars), 1)
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, m.theme.Warning.Render(strings.Repeat(fireworksChars, n)))
}

func clipLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + "\n…"
}
