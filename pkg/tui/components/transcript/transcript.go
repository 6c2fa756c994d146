// Package transcript draws the conversation timeline. It keeps a copy of
// every node the engine has painted and caches each node's rendering until
// the node changes.
package transcript

import (
	"slices"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/timeline"
	"github.com/linlay/agent-webclient/pkg/tui/components/markdown"
	"github.com/linlay/agent-webclient/pkg/tui/styles"
	"github.com/linlay/agent-webclient/pkg/viewport"
)

type Model struct {
	order    []string
	nodes    map[string]*timeline.Node
	cache    map[string]string
	selected string

	width int
	theme styles.Theme
	md    *markdown.Renderer
}

const minWidth = 20

func New(theme styles.Theme, width int) *Model {
	width = max(width, minWidth)
	return &Model{
		nodes: make(map[string]*timeline.Node),
		cache: make(map[string]string),
		width: width,
		theme: theme,
		md:    markdown.NewRenderer(theme.Name, width),
	}
}

// Apply takes one engine frame.
func (m *Model) Apply(f render.Frame) {
	if f.Full {
		clear(m.nodes)
		clear(m.cache)
	}
	for _, id := range f.Removed {
		delete(m.nodes, id)
		delete(m.cache, id)
	}
	for _, n := range f.Updated {
		m.nodes[n.ID] = n
		delete(m.cache, n.ID)
	}
	m.order = slices.Clone(f.Order)
	if _, ok := m.nodes[m.selected]; !ok {
		m.selected = ""
	}
}

func (m *Model) SetWidth(width int) {
	width = max(width, minWidth)
	if width == m.width {
		return
	}
	m.width = width
	m.reset()
}

func (m *Model) SetTheme(theme styles.Theme) {
	m.theme = theme
	m.reset()
}

func (m *Model) reset() {
	clear(m.cache)
	if !m.md.Matches(m.theme.Name, m.width) {
		m.md = markdown.NewRenderer(m.theme.Name, m.width)
	}
}

func (m *Model) Len() int {
	return len(m.order)
}

// Selected returns the id of the highlighted node, if any.
func (m *Model) Selected() string {
	return m.selected
}

// Select moves the highlight by delta among the nodes that can be toggled.
// With nothing selected, a step up starts from the newest node.
func (m *Model) Select(delta int) {
	var ids []string
	for _, id := range m.order {
		if n, ok := m.nodes[id]; ok && toggleable(n) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		m.selected = ""
		return
	}

	i := slices.Index(ids, m.selected)
	switch {
	case i < 0 && delta < 0:
		i = len(ids) - 1
	case i < 0:
		i = 0
	default:
		i = max(0, min(len(ids)-1, i+delta))
	}
	m.markSelected(ids[i])
}

// ClearSelection removes the highlight.
func (m *Model) ClearSelection() {
	m.markSelected("")
}

func (m *Model) markSelected(id string) {
	if id == m.selected {
		return
	}
	delete(m.cache, m.selected)
	delete(m.cache, id)
	m.selected = id
}

// CopyText returns the plain text of the selected node, or of the newest
// assistant answer when nothing is selected.
func (m *Model) CopyText() string {
	if n, ok := m.nodes[m.selected]; ok {
		return plainText(n)
	}
	for _, id := range slices.Backward(m.order) {
		if n, ok := m.nodes[id]; ok && n.Kind == timeline.KindContent {
			return plainText(n)
		}
	}
	return ""
}

func plainText(n *timeline.Node) string {
	switch n.Kind {
	case timeline.KindContent:
		return strings.TrimSpace(viewport.VisibleText(n.Text))
	case timeline.KindTool:
		if n.Result != nil && n.Result.Text != "" {
			return n.Result.Text
		}
		return n.ArgsText
	}
	return n.Text
}

func toggleable(n *timeline.Node) bool {
	return n.Kind == timeline.KindThinking || n.Kind == timeline.KindTool
}

// View renders every node in display order.
func (m *Model) View() string {
	parts := make([]string, 0, len(m.order))
	for _, id := range m.order {
		n, ok := m.nodes[id]
		if !ok {
			continue
		}
		out, ok := m.cache[id]
		if !ok {
			out = m.renderNode(n)
			m.cache[id] = out
		}
		if out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderNode(n *timeline.Node) string {
	switch n.Kind {
	case timeline.KindMessage:
		return m.renderMessage(n)
	case timeline.KindThinking:
		return m.renderThinking(n)
	case timeline.KindContent:
		return m.renderContent(n)
	case timeline.KindTool:
		return m.renderTool(n)
	}
	return ""
}

func (m *Model) renderMessage(n *timeline.Node) string {
	switch n.Role {
	case timeline.RoleUser:
		return m.theme.UserMessage.Width(m.width).Render(n.Text)
	case timeline.RoleSystem:
		return m.theme.Error.Width(m.width).Render("! " + n.Text)
	}
	return m.md.Render(n.Text)
}

func (m *Model) header(n *timeline.Node, label string) string {
	arrow := "▸"
	if n.Expanded {
		arrow = "▾"
	}
	line := ansi.Truncate(arrow+" "+label, m.width, "…")
	if n.ID == m.selected {
		return m.theme.Selected.Render(line)
	}
	return line
}

func (m *Model) renderThinking(n *timeline.Node) string {
	label := "Thinking"
	if n.Status == timeline.StatusRunning {
		label += " …"
	}
	head := m.header(n, m.theme.Muted.Render(label))
	if !n.Expanded || strings.TrimSpace(n.Text) == "" {
		return head
	}
	body := m.theme.Muted.Italic(true).Width(m.width - 2).Render(strings.TrimSpace(n.Text))
	return head + "\n" + indent(body, "  ")
}

func (m *Model) renderContent(n *timeline.Node) string {
	if len(n.Segments) == 0 {
		return m.md.Render(viewport.VisibleText(n.Text))
	}

	var parts []string
	for _, seg := range n.Segments {
		var out string
		switch seg.Kind {
		case timeline.SegmentViewport:
			out = m.renderEmbed(n.Embeds[seg.Signature], seg.Key)
		default:
			out = m.md.Render(viewport.VisibleText(seg.Text))
		}
		if out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderEmbed(embed *timeline.Embed, key string) string {
	title := m.theme.Badge.Render("viewport " + key)
	switch {
	case embed == nil || embed.Loading || (embed.HTML == "" && embed.Error == ""):
		return title + m.theme.Muted.Render(" loading…")
	case embed.Error != "":
		return title + " " + m.theme.Error.Render(embed.Error)
	}
	body := m.md.Render(markdown.HTMLToMarkdown(embed.HTML))
	return m.theme.Panel.Width(m.width).Render(title + "\n" + body)
}

func (m *Model) renderTool(n *timeline.Node) string {
	var mark string
	switch n.Status {
	case timeline.StatusCompleted:
		mark = m.theme.Success.Render("✓")
	case timeline.StatusFailed:
		mark = m.theme.Error.Render("✗")
	default:
		mark = m.theme.Warning.Render("●")
	}
	head := m.header(n, mark+" "+m.theme.Bold.Render(toolLabel(n)))

	if !n.Expanded {
		if n.Result == nil {
			return head
		}
		first, _, _ := strings.Cut(strings.TrimSpace(n.Result.Text), "\n")
		return head + "\n" + m.theme.Muted.Render(ansi.Truncate("  → "+first, m.width, "…"))
	}

	var b strings.Builder
	b.WriteString(head)
	if args := strings.TrimSpace(n.ArgsText); args != "" {
		b.WriteString("\n" + m.theme.Muted.Render("  args") + "\n")
		b.WriteString(indent(timeline.PrettyJSON(args, args), "    "))
	}
	if n.Result != nil {
		style := m.theme.Secondary
		if n.Status == timeline.StatusFailed {
			style = m.theme.Error
		}
		b.WriteString("\n" + m.theme.Muted.Render("  result") + "\n")
		b.WriteString(indent(style.Render(strings.TrimSpace(n.Result.Text)), "    "))
	}
	return b.String()
}

func toolLabel(n *timeline.Node) string {
	label := n.ToolName
	if label == "" {
		label = n.ToolID
	}
	if n.Description != "" {
		label += " - " + n.Description
	}
	return label
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
