// Package plan tracks the agent's execution plan and the lifecycle of each
// task, reconciling plan snapshots with discrete task events.
package plan

import (
	"slices"
	"strings"
	"time"

	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/clock"
)

// AutoCollapseDelay is how long an automatically expanded plan stays open.
const AutoCollapseDelay = 4 * time.Second

const timerKey = "plan"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// NormalizeStatus maps the loose status vocabulary agents use onto Status.
func NormalizeStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "done", "success", "ok":
		return StatusCompleted
	case "running", "in_progress", "working", "doing":
		return StatusRunning
	case "failed", "error":
		return StatusFailed
	case "canceled", "cancelled":
		return StatusCanceled
	default:
		return StatusPending
	}
}

func taskEventStatus(t api.EventType) Status {
	switch t {
	case api.EventTaskStart:
		return StatusRunning
	case api.EventTaskComplete:
		return StatusCompleted
	case api.EventTaskCancel:
		return StatusCanceled
	case api.EventTaskFail:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Runtime is the observed state of one task.
type Runtime struct {
	Status    Status
	UpdatedAt time.Time
	Error     string
}

// Task is a plan entry with its effective status.
type Task struct {
	TaskID      string
	Description string
	Status      Status
	Error       string
}

// View is what a renderer needs to draw the plan panel.
type View struct {
	Visible  bool
	PlanID   string
	Expanded bool
	Tasks    []Task
	Current  int
	Total    int
	Summary  string
}

// Tracker owns plan state. It is not safe for concurrent use; timer
// callbacks are expected to be serialized with other calls by the Timers
// dispatch function.
type Tracker struct {
	clock    clock.Clock
	timers   *clock.Timers
	onChange func()

	planID  string
	tasks   []api.PlanTask
	hasPlan bool

	runtime        map[string]Runtime
	currentRunning string
	lastTouched    string

	expanded bool
	override *bool
}

// NewTracker returns a tracker whose auto-collapse timer runs on timers.
// onChange is called when a timer changes the view.
func NewTracker(c clock.Clock, timers *clock.Timers, onChange func()) *Tracker {
	if onChange == nil {
		onChange = func() {}
	}
	return &Tracker{
		clock:    c,
		timers:   timers,
		onChange: onChange,
		runtime:  make(map[string]Runtime),
	}
}

// Reset forgets the plan, task runtime and manual override.
func (t *Tracker) Reset() {
	t.timers.Cancel(timerKey)
	t.planID = ""
	t.tasks = nil
	t.hasPlan = false
	t.runtime = make(map[string]Runtime)
	t.currentRunning = ""
	t.lastTouched = ""
	t.expanded = false
	t.override = nil
}

// Update replaces the plan with a new snapshot and applies the expansion
// policy.
func (t *Tracker) Update(planID string, tasks []api.PlanTask) {
	if t.planID != "" && planID != "" && t.planID != planID {
		t.runtime = make(map[string]Runtime)
		t.currentRunning = ""
		t.lastTouched = ""
	}

	t.planID = planID
	t.tasks = slices.Clone(tasks)
	t.hasPlan = true
	t.Sync(t.tasks)

	switch {
	case t.override == nil:
		t.expanded = true
		t.scheduleCollapse()
	default:
		t.expanded = *t.override
		t.timers.Cancel(timerKey)
	}
}

// Sync rebuilds the runtime map from a snapshot. A snapshot saying pending
// never regresses a status already observed.
func (t *Tracker) Sync(tasks []api.PlanTask) {
	next := make(map[string]Runtime, len(tasks))
	for _, task := range tasks {
		id := strings.TrimSpace(task.TaskID)
		if id == "" {
			continue
		}
		status := NormalizeStatus(task.Status)
		existing, ok := t.runtime[id]
		if ok && status == StatusPending && existing.Status != "" {
			status = existing.Status
		}
		updated := existing.UpdatedAt
		if updated.IsZero() {
			updated = t.clock.Now()
		}
		next[id] = Runtime{Status: status, UpdatedAt: updated, Error: existing.Error}
	}
	t.runtime = next

	if t.currentRunning != "" {
		if rt, ok := t.runtime[t.currentRunning]; !ok || rt.Status != StatusRunning {
			t.currentRunning = ""
		}
	}
	if t.currentRunning == "" {
		for _, task := range tasks {
			id := strings.TrimSpace(task.TaskID)
			if id != "" && t.runtime[id].Status == StatusRunning {
				t.currentRunning = id
				break
			}
		}
	}
}

// ApplyTaskEvent records a task lifecycle event. It reports whether the
// task's status or error text changed.
func (t *Tracker) ApplyTaskEvent(ev *api.Event) bool {
	id := strings.TrimSpace(string(ev.TaskID))
	if id == "" {
		return false
	}

	current, ok := t.runtime[id]
	if !ok {
		current = Runtime{Status: StatusPending}
	}

	next := Runtime{Status: taskEventStatus(ev.Type), UpdatedAt: t.clock.Now()}
	if ev.Timestamp > 0 {
		next.UpdatedAt = time.UnixMilli(ev.Timestamp)
	}
	if ev.Type == api.EventTaskFail {
		next.Error = ev.ErrorText()
	}
	t.runtime[id] = next
	t.lastTouched = id

	if ev.Type == api.EventTaskStart {
		t.currentRunning = id
	} else if t.currentRunning == id {
		t.currentRunning = ""
	}

	if t.hasPlan {
		description := ev.Description
		if description == "" {
			description = ev.TaskName
		}
		idx := slices.IndexFunc(t.tasks, func(p api.PlanTask) bool {
			return strings.TrimSpace(p.TaskID) == id
		})
		if idx < 0 {
			t.tasks = append(t.tasks, api.PlanTask{TaskID: id, Description: description, Status: string(next.Status)})
		} else if t.tasks[idx].Description == "" {
			t.tasks[idx].Description = description
		}
	}

	return current.Status != next.Status || current.Error != next.Error
}

// SetExpanded expands or collapses the plan. A manual change pins the
// state and disables auto-collapse until ClearOverride.
func (t *Tracker) SetExpanded(expanded, manual bool) {
	t.expanded = expanded
	if manual {
		t.override = &expanded
		t.timers.Cancel(timerKey)
	}
}

// ClearOverride returns the plan to automatic expansion.
func (t *Tracker) ClearOverride() {
	t.override = nil
}

// Override returns the manual pin, or nil in automatic mode.
func (t *Tracker) Override() *bool {
	if t.override == nil {
		return nil
	}
	v := *t.override
	return &v
}

func (t *Tracker) Expanded() bool {
	return t.expanded
}

func (t *Tracker) Runtime(taskID string) (Runtime, bool) {
	rt, ok := t.runtime[taskID]
	return rt, ok
}

func (t *Tracker) scheduleCollapse() {
	t.timers.Schedule(timerKey, AutoCollapseDelay, func() {
		if t.override != nil {
			return
		}
		t.expanded = false
		t.onChange()
	})
}

// View summarizes the plan for display.
func (t *Tracker) View() View {
	if !t.hasPlan || len(t.tasks) == 0 {
		return View{Summary: "No active plan"}
	}

	tasks := make([]Task, len(t.tasks))
	for i, p := range t.tasks {
		id := strings.TrimSpace(p.TaskID)
		status := NormalizeStatus(p.Status)
		var errText string
		if rt, ok := t.runtime[id]; ok && id != "" {
			if rt.Status != "" {
				status = rt.Status
			}
			errText = rt.Error
		}
		tasks[i] = Task{TaskID: p.TaskID, Description: p.Description, Status: status, Error: errText}
	}

	focus := t.focus(tasks)
	current := 1
	summary := "Plan updated"
	if focus >= 0 {
		current = focus + 1
		switch {
		case tasks[focus].Description != "":
			summary = tasks[focus].Description
		case tasks[focus].TaskID != "":
			summary = tasks[focus].TaskID
		}
	}

	return View{
		Visible:  true,
		PlanID:   t.planID,
		Expanded: t.expanded,
		Tasks:    tasks,
		Current:  current,
		Total:    len(tasks),
		Summary:  summary,
	}
}

func (t *Tracker) focus(tasks []Task) int {
	byID := func(id string) int {
		if id == "" {
			return -1
		}
		return slices.IndexFunc(tasks, func(task Task) bool { return strings.TrimSpace(task.TaskID) == id })
	}
	byStatus := func(s Status) int {
		return slices.IndexFunc(tasks, func(task Task) bool { return task.Status == s })
	}

	running := byStatus(StatusRunning)
	if t.currentRunning != "" {
		running = byID(t.currentRunning)
	}
	for _, idx := range []int{
		running,
		byID(t.lastTouched),
		byStatus(StatusFailed),
		byStatus(StatusPending),
		byStatus(StatusCanceled),
	} {
		if idx >= 0 {
			return idx
		}
	}
	return len(tasks) - 1
}
