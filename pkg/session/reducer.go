package session

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/timeline"
	"github.com/linlay/agent-webclient/pkg/viewport"
)

// apply folds one event into the conversation. It never fails: events
// without the id they need are dropped and unknown types are only logged.
func (e *Engine) apply(ev *api.Event, source Source) {
	e.st.pushEvent(*ev)
	if line, err := json.Marshal(ev); err == nil {
		e.debugLine(string(line))
	}

	if ev.ChatID != "" && ev.ChatID.String() != e.st.chatID {
		e.st.chatID = ev.ChatID.String()
		e.notifySession()
	}

	switch ev.Type.Family() {
	case "request":
		if ev.Type == api.EventRequestQuery {
			e.applyRequestQuery(ev)
		}
	case "run":
		e.applyRun(ev)
	case "plan":
		if ev.Type == api.EventPlanUpdate {
			e.plan.Update(ev.PlanID.String(), ev.Plan)
			e.notifyPlan()
		}
	case "task":
		if e.plan.ApplyTaskEvent(ev) {
			e.notifyPlan()
		}
	case "reasoning":
		e.applyReasoning(ev, source)
	case "content":
		e.applyContent(ev)
	case "tool":
		e.applyTool(ev, source)
	case "action":
		e.applyAction(ev)
	}
}

func (e *Engine) applyRequestQuery(ev *api.Event) {
	if ev.RequestID != "" {
		e.st.requestID = ev.RequestID.String()
	}
	key := ev.RequestID.String()
	if key == "" {
		key = fmt.Sprint(len(e.st.events))
	}
	node := e.store.UpsertMessage("user:"+key, timeline.RoleUser, ev.Message, e.eventTime(ev))
	e.render.Schedule(render.NodeRequest(node.ID))
}

func (e *Engine) applyRun(ev *api.Event) {
	switch ev.Type {
	case api.EventRunStart:
		if ev.RunID != "" {
			e.st.runID = ev.RunID.String()
		}
		e.setStatus("run.start "+e.st.runID, false)
		e.notifySession()

	case api.EventRunComplete:
		if ev.RunID != "" {
			e.st.runID = ev.RunID.String()
		}
		e.setStatus(fmt.Sprintf("run.complete (%s)", cmp.Or(ev.FinishReason, "end_turn")), false)
		e.st.streaming = false
		e.tools.Clear()
		e.notifySession()
		e.async(func(ctx context.Context) {
			if err := e.RefreshChats(ctx); err != nil {
				e.do(func() { e.debugf("refresh chats failed: %v", err) })
			}
		})

	case api.EventRunError:
		e.st.streaming = false
		e.tools.Clear()
		errText := "{}"
		if api.IsPresent(ev.Error) {
			errText = string(ev.Error)
		}
		e.systemMessage("sys:error", "run.error: "+timeline.PrettyJSON(errText, "{}"))
		e.setStatus("run.error", true)
		e.notifySession()

	case api.EventRunCancel:
		e.st.streaming = false
		e.tools.Clear()
		e.systemMessage("sys:cancel", "run.cancel")
		e.setStatus("run.cancel", true)
		e.notifySession()
	}
}

// systemMessage appends a system message under a fresh "<prefix>:<n>" id.
func (e *Engine) systemMessage(prefix, text string) {
	node := e.store.UpsertMessage(e.store.NextID(prefix), timeline.RoleSystem, text, e.clock.Now())
	e.render.Schedule(render.NodeRequest(node.ID))
}

func (e *Engine) applyContent(ev *api.Event) {
	if ev.ContentID == "" {
		return
	}
	switch ev.Type {
	case api.EventContentStart, api.EventContentSnapshot, api.EventContentEnd:
	case api.EventContentDelta:
		// An empty delta never creates the block.
		if _, ok := e.store.ContentNode(ev.ContentID.String()); !ok && ev.Delta == "" {
			return
		}
	default:
		return
	}
	node, created := e.store.EnsureContent(ev.ContentID.String(), e.eventTime(ev))

	switch ev.Type {
	case api.EventContentStart:
		if created || (node.Text == "" && strings.TrimSpace(ev.Text) != "") {
			node.Text = ev.Text
		}
		node.Status = timeline.StatusRunning
	case api.EventContentDelta:
		node.Text += ev.Delta
		node.Status = timeline.StatusRunning
	case api.EventContentEnd:
		if strings.TrimSpace(ev.Text) != "" {
			node.Text = ev.Text
		}
		node.Status = timeline.StatusCompleted
	case api.EventContentSnapshot:
		node.Text = cmp.Or(ev.Text, node.Text)
		node.Status = timeline.StatusCompleted
	}
	if ev.Timestamp > 0 {
		node.Timestamp = e.eventTime(ev)
	}

	runID := cmp.Or(ev.RunID.String(), e.st.runID)
	for _, t := range e.viewports.Process(node, runID, e.clock.Now()) {
		e.loadViewport(t)
	}
	e.render.Schedule(render.NodeRequest(node.ID))
}

// loadViewport fetches one embed. The result is dropped when the
// conversation changed in the meantime.
func (e *Engine) loadViewport(t viewport.Ticket) {
	seq := e.loadSeq
	e.async(func(ctx context.Context) {
		vp, err := e.backend.GetViewport(ctx, t.Key)
		html := ""
		if vp != nil {
			html = vp.HTML
		}
		e.do(func() {
			if seq != e.loadSeq {
				return
			}
			if err != nil {
				e.debugf("viewport %s failed: %v", t.Key, err)
			}
			if e.viewports.Finish(e.store, t, html, err) {
				e.render.Schedule(render.Request{NodeID: t.NodeID})
			}
		})
	})
}
