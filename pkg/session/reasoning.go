package session

import (
	"cmp"
	"time"

	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/timeline"
)

// ReasoningCollapseDelay is how long a finished live thinking block stays
// open.
const ReasoningCollapseDelay = 1500 * time.Millisecond

func reasoningTimerKey(key string) string {
	return "reasoning:" + key
}

// reasoningKey returns the explicit reasoningId, or the current implicit
// key. A start without an id, or any event with no block open, begins a new
// implicit block.
func (e *Engine) reasoningKey(ev *api.Event) string {
	if ev.ReasoningID != "" {
		e.st.activeReasoningKey = ev.ReasoningID.String()
		return e.st.activeReasoningKey
	}
	if ev.Type == api.EventReasoningStart || e.st.activeReasoningKey == "" {
		e.st.activeReasoningKey = "implicit:" + e.store.NextID("reasoning")
	}
	return e.st.activeReasoningKey
}

func (e *Engine) applyReasoning(ev *api.Event, source Source) {
	switch ev.Type {
	case api.EventReasoningStart, api.EventReasoningDelta, api.EventReasoningSnapshot, api.EventReasoningEnd:
	default:
		return
	}

	key := e.reasoningKey(ev)
	if ev.Type == api.EventReasoningDelta && ev.Delta == "" {
		if _, ok := e.store.ReasoningNode(key); !ok {
			return
		}
	}
	node, created := e.store.EnsureReasoning(key, e.eventTime(ev))

	switch ev.Type {
	case api.EventReasoningStart:
		e.cancelReasoningTimer(key)
		// A re-delivered start keeps the text streamed so far.
		if ev.Text != "" && (created || node.Text == "") {
			node.Text = ev.Text
		}
		node.Status = timeline.StatusRunning
		node.Expanded = true

	case api.EventReasoningDelta:
		e.cancelReasoningTimer(key)
		node.Text += ev.Delta
		node.Status = timeline.StatusRunning
		node.Expanded = true

	case api.EventReasoningSnapshot:
		node.Text = cmp.Or(ev.Text, node.Text)
		node.Status = timeline.StatusCompleted
		e.st.activeReasoningKey = ""
		e.settleReasoning(key, node, source)

	case api.EventReasoningEnd:
		if ev.Text != "" {
			node.Text = ev.Text
		}
		node.Status = timeline.StatusCompleted
		e.st.activeReasoningKey = ""
		e.settleReasoning(key, node, source)
	}

	if ev.Timestamp > 0 {
		node.Timestamp = e.eventTime(ev)
	}
	e.render.Schedule(render.NodeRequest(node.ID))
}

// settleReasoning collapses a finished block: at once for history, after
// ReasoningCollapseDelay for live streams.
func (e *Engine) settleReasoning(key string, node *timeline.Node, source Source) {
	if source == SourceHistory {
		e.cancelReasoningTimer(key)
		node.Expanded = false
		return
	}

	node.Expanded = true
	nodeID := node.ID
	e.st.reasoningTimers[key] = nodeID
	e.timers.Schedule(reasoningTimerKey(key), ReasoningCollapseDelay, func() {
		delete(e.st.reasoningTimers, key)
		n, ok := e.store.Node(nodeID)
		if !ok {
			return
		}
		n.Expanded = false
		e.render.Schedule(render.Request{NodeID: nodeID})
	})
}

func (e *Engine) cancelReasoningTimer(key string) {
	delete(e.st.reasoningTimers, key)
	e.timers.Cancel(reasoningTimerKey(key))
}

func (e *Engine) cancelAllReasoningTimers() {
	for key := range e.st.reasoningTimers {
		e.timers.Cancel(reasoningTimerKey(key))
	}
	e.st.reasoningTimers = make(map[string]string)
}
