package tui

import (
	"context"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/linlay/agent-webclient/pkg/actions"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/plan"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/session"
	"github.com/linlay/agent-webclient/pkg/tui/messages"
)

// Bridge turns engine callbacks into tea messages. The engine calls it with
// its lock held, so every method only queues; Run delivers the queue to the
// program from its own goroutine.
type Bridge struct {
	mu      sync.Mutex
	queue   []tea.Msg
	metrics render.Metrics
	wake    chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{wake: make(chan struct{}, 1)}
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run forwards queued messages to send, in order, until ctx is done.
func (b *Bridge) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		}

		b.mu.Lock()
		queue := b.queue
		b.queue = nil
		b.mu.Unlock()

		for _, msg := range queue {
			send(msg)
		}
	}
}

// SetMetrics records the transcript scroll position for the render
// scheduler.
func (b *Bridge) SetMetrics(m render.Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
}

func (b *Bridge) ScrollMetrics() render.Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

func (b *Bridge) Apply(f render.Frame) { b.post(messages.FrameMsg{Frame: f}) }
func (b *Bridge) ScrollToBottom()      { b.post(messages.ScrollToBottomMsg{}) }

func (b *Bridge) StatusChanged(s session.Status)       { b.post(messages.StatusMsg{Status: s}) }
func (b *Bridge) PlanChanged(v plan.View)              { b.post(messages.PlanMsg{View: v}) }
func (b *Bridge) SessionChanged(snap session.Snapshot) { b.post(messages.SessionMsg{Snapshot: snap}) }
func (b *Bridge) DebugLogged(line string)              { b.post(messages.DebugMsg{Line: line}) }

func (b *Bridge) SetInputLocked(locked bool)                 { b.post(messages.InputLockedMsg{Locked: locked}) }
func (b *Bridge) ShowTool(tool *frontendtool.Active)         { b.post(messages.ToolMsg{Tool: tool}) }
func (b *Bridge) PostInit(msg frontendtool.InitMessage)      { b.post(messages.ToolInitMsg{Init: msg}) }
func (b *Bridge) ShowPending(pending []frontendtool.Pending) { b.post(messages.PendingMsg{Pending: pending}) }

func (b *Bridge) SetTheme(theme string)           { b.post(messages.ThemeMsg{Theme: theme}) }
func (b *Bridge) LaunchFireworks(d time.Duration) { b.post(messages.FireworksMsg{Duration: d}) }
func (b *Bridge) ShowModal(m actions.Modal)       { b.post(messages.ModalMsg{Modal: m}) }

var (
	_ render.Surface       = (*Bridge)(nil)
	_ session.Observer     = (*Bridge)(nil)
	_ frontendtool.Surface = (*Bridge)(nil)
	_ actions.Host         = (*Bridge)(nil)
)
