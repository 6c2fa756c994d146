package todo

import (
	"fmt"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"

	"github.com/linlay/agent-webclient/pkg/plan"
	"github.com/linlay/agent-webclient/pkg/tui/styles"
)

func TestComponent_HiddenWithoutPlan(t *testing.T) {
	t.Parallel()
	c := NewComponent(styles.ByName("dark"))
	c.SetSize(60)

	assert.Empty(t, c.Render())
}

func TestComponent_CollapsedShowsHeaderOnly(t *testing.T) {
	t.Parallel()
	c := NewComponent(styles.ByName("dark"))
	c.SetSize(60)
	c.SetView(plan.View{
		Visible: true,
		Current: 1,
		Total:   2,
		Summary: "write docs",
		Tasks:   []plan.Task{{TaskID: "t1", Description: "outline"}},
	})

	out := ansi.Strip(c.Render())
	assert.Contains(t, out, "Plan 1/2 write docs")
	assert.NotContains(t, out, "outline")
}

func TestComponent_ExpandedListsTasks(t *testing.T) {
	t.Parallel()
	c := NewComponent(styles.ByName("light"))
	c.SetSize(60)

	tasks := []plan.Task{
		{TaskID: "t1", Description: "outline", Status: plan.StatusCompleted},
		{TaskID: "t2", Status: plan.StatusRunning},
		{TaskID: "t3", Description: "publish", Status: plan.StatusFailed, Error: "denied"},
	}
	for i := range MaxTasks {
		tasks = append(tasks, plan.Task{TaskID: fmt.Sprintf("extra-%d", i)})
	}
	c.SetView(plan.View{Visible: true, Expanded: true, Total: len(tasks), Tasks: tasks})

	out := ansi.Strip(c.Render())
	assert.Contains(t, out, "✓ outline")
	assert.Contains(t, out, "● t2")
	assert.Contains(t, out, "✗ publish denied")
	assert.Contains(t, out, "… 3 more")
	assert.NotContains(t, out, fmt.Sprintf("extra-%d", MaxTasks-1))
}
