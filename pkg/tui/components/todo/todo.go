// Package todo draws the plan panel: a header with progress and, when
// expanded, one line per task.
package todo

import (
	"cmp"
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/linlay/agent-webclient/pkg/plan"
	"github.com/linlay/agent-webclient/pkg/tui/styles"
)

// MaxTasks is how many tasks an expanded panel lists before summarizing.
const MaxTasks = 8

type Component struct {
	view  plan.View
	theme styles.Theme
	width int
}

func NewComponent(theme styles.Theme) *Component {
	return &Component{
		theme: theme,
		width: 20,
	}
}

func (c *Component) SetSize(width int) {
	c.width = width
}

func (c *Component) SetTheme(theme styles.Theme) {
	c.theme = theme
}

func (c *Component) SetView(v plan.View) {
	c.view = v
}

// Render returns the panel, or "" when there is no plan to show.
func (c *Component) Render() string {
	v := c.view
	if !v.Visible {
		return ""
	}
	maxWidth := max(c.width-4, 10)

	head := c.theme.Accent.Bold(true).Render("Plan") +
		c.theme.Muted.Render(fmt.Sprintf(" %d/%d ", v.Current, v.Total)) +
		c.theme.Secondary.Render(v.Summary)
	head = ansi.Truncate(head, maxWidth, "…")
	if !v.Expanded {
		return c.theme.Panel.Width(c.width).Render(head)
	}

	lines := []string{head}
	for i, t := range v.Tasks {
		if i == MaxTasks {
			lines = append(lines, c.theme.Muted.Render(fmt.Sprintf("  … %d more", len(v.Tasks)-i)))
			break
		}
		icon, style := c.statusStyle(t.Status)
		line := style.Render(icon) + " " + cmp.Or(t.Description, t.TaskID)
		if t.Error != "" {
			line += " " + c.theme.Error.Render(t.Error)
		}
		lines = append(lines, ansi.Truncate(line, maxWidth, "…"))
	}
	return c.theme.Panel.Width(c.width).Render(strings.Join(lines, "\n"))
}

func (c *Component) statusStyle(s plan.Status) (string, lipgloss.Style) {
	switch s {
	case plan.StatusCompleted:
		return "✓", c.theme.Success
	case plan.StatusRunning:
		return "●", c.theme.Warning
	case plan.StatusFailed:
		return "✗", c.theme.Error
	case plan.StatusCanceled:
		return "⊘", c.theme.Muted
	}
	return "○", c.theme.Muted
}
