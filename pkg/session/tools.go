package session

import (
	"cmp"
	"encoding/json"

	"github.com/linlay/agent-webclient/pkg/actions"
	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/timeline"
)

func (st *ToolState) descriptor() frontendtool.Descriptor {
	return frontendtool.Descriptor{
		RunID:       st.RunID,
		ToolID:      st.ToolID,
		ToolName:    st.ToolName,
		ToolAPI:     st.ToolAPI,
		ToolKey:     st.ToolKey,
		ToolType:    st.ToolType,
		Description: st.Description,
		Timeout:     st.ToolTimeout,
		Params:      st.Params,
	}
}

// toolState returns the state for ev.ToolID, creating it from the event on
// first sight.
func (e *Engine) toolState(ev *api.Event) *ToolState {
	toolID := ev.ToolID.String()
	if st, ok := e.st.tools[toolID]; ok {
		return st
	}
	st := &ToolState{
		ToolID: toolID,
		RunID:  cmp.Or(ev.RunID.String(), e.st.runID),
	}
	e.st.tools[toolID] = st
	return st
}

// mergeToolMeta copies the metadata the event carries over the state.
func mergeToolMeta(st *ToolState, ev *api.Event) {
	st.ToolName = cmp.Or(ev.ToolName, st.ToolName)
	st.ToolType = cmp.Or(ev.ToolType, st.ToolType)
	st.ToolKey = cmp.Or(ev.ToolKey, st.ToolKey)
	st.ToolAPI = cmp.Or(ev.ToolAPI, st.ToolAPI)
	st.Description = cmp.Or(ev.Description, st.Description)
	st.RunID = cmp.Or(ev.RunID.String(), st.RunID)
	if ev.ToolTimeout != nil {
		st.ToolTimeout = ev.ToolTimeout
	}
}

// toolNode returns the tool's node with the state's display metadata applied.
func (e *Engine) toolNode(st *ToolState, ev *api.Event) *timeline.Node {
	node, _ := e.store.EnsureTool(st.ToolID, e.eventTime(ev))
	node.ToolName = cmp.Or(st.ToolName, st.ToolID)
	node.ToolAPI = st.ToolAPI
	node.Description = st.Description
	if ev.Timestamp > 0 {
		node.Timestamp = e.eventTime(ev)
	}
	return node
}

func (e *Engine) applyTool(ev *api.Event, source Source) {
	if ev.ToolID == "" {
		return
	}

	switch ev.Type {
	case api.EventToolStart:
		st := e.toolState(ev)
		mergeToolMeta(st, ev)
		st.Params = timeline.ResolveToolParams(ev, st.Params, e.debugLine)

		node := e.toolNode(st, ev)
		node.ArgsText = timeline.PrettyValue(st.Params, "{}")
		node.Status = timeline.StatusRunning
		node.Expanded = false
		e.render.Schedule(render.NodeRequest(node.ID))

		if source == SourceLive {
			e.activateFrontendTool(st, "pending")
		}

	case api.EventToolArgs:
		st := e.toolState(ev)
		st.ToolName = cmp.Or(ev.ToolName, st.ToolName)
		st.ToolAPI = cmp.Or(ev.ToolAPI, st.ToolAPI)
		st.Description = cmp.Or(ev.Description, st.Description)
		st.ArgsBuffer += ev.Delta
		if params, ok := timeline.TryDecode(st.ArgsBuffer); ok {
			st.Params = params
		}
		e.tools.SyncParams(st.descriptor())

		node := e.toolNode(st, ev)
		node.ArgsText = cmp.Or(st.ArgsBuffer, node.ArgsText, "{}")
		node.Status = timeline.StatusRunning
		e.render.Schedule(render.NodeRequest(node.ID))

	case api.EventToolSnapshot:
		st := e.toolState(ev)
		mergeToolMeta(st, ev)
		res := timeline.ParseToolParams(ev)
		if res.Diagnostic != "" {
			e.debugLine(res.Diagnostic)
		}
		if res.Found {
			st.Params = res.Params
		}

		node := e.toolNode(st, ev)
		if st.Params != nil {
			node.ArgsText = timeline.PrettyValue(st.Params, "{}")
		} else {
			node.ArgsText = timeline.PrettyJSON(st.ArgsBuffer, "{}")
		}
		node.Status = timeline.StatusCompleted
		e.render.Schedule(render.NodeRequest(node.ID))

		if source == SourceLive {
			e.activateFrontendTool(st, "pending(snapshot)")
		}

	case api.EventToolResult:
		st := e.toolState(ev)
		st.ToolName = cmp.Or(ev.ToolName, st.ToolName)
		st.ToolAPI = cmp.Or(ev.ToolAPI, st.ToolAPI)
		st.Description = cmp.Or(ev.Description, st.Description)

		node := e.toolNode(st, ev)
		if payload := timeline.ResultPayload(toolResultValue(ev)); payload != nil {
			node.Result = payload
		}
		node.Status = timeline.StatusCompleted
		if ev.HasError() {
			node.Status = timeline.StatusFailed
		}
		e.render.Schedule(render.NodeRequest(node.ID))

	case api.EventToolEnd:
		node, _ := e.store.EnsureTool(ev.ToolID.String(), e.eventTime(ev))
		if node.Result == nil {
			node.Status = timeline.StatusCompleted
			if ev.HasError() {
				node.Status = timeline.StatusFailed
			}
		}
		if ev.Timestamp > 0 {
			node.Timestamp = e.eventTime(ev)
		}
		e.render.Schedule(render.NodeRequest(node.ID))
	}
}

// toolResultValue picks the result payload: result when sent at all, then a
// non-null output, then text.
func toolResultValue(ev *api.Event) json.RawMessage {
	if api.IsPresent(ev.Result) {
		return ev.Result
	}
	if api.IsPresent(ev.Output) && string(ev.Output) != "null" {
		return ev.Output
	}
	text, _ := json.Marshal(ev.Text)
	return text
}

// activateFrontendTool registers the pending card and hands the tool to the
// coordinator. Non-frontend tools are ignored.
func (e *Engine) activateFrontendTool(st *ToolState, statusText string) {
	if !frontendtool.IsFrontendTool(st.ToolType, st.ToolKey) {
		return
	}
	d := st.descriptor()
	e.tools.Upsert(d, statusText)
	if t := e.tools.Activate(d); t != nil {
		e.loadFrontendTool(*t)
	}
}

func (e *Engine) applyAction(ev *api.Event) {
	if ev.ActionID == "" {
		return
	}
	actionID := ev.ActionID.String()

	switch ev.Type {
	case api.EventActionStart:
		st := e.actionState(actionID)
		st.ActionName = cmp.Or(ev.ActionName, st.ActionName)

	case api.EventActionArgs:
		st := e.actionState(actionID)
		st.ActionName = cmp.Or(ev.ActionName, st.ActionName)
		st.ArgsBuffer += ev.Delta

	case api.EventActionEnd:
		if st, ok := e.st.actions[actionID]; ok {
			e.executeAction(actionID, cmp.Or(st.ActionName, "unknown"), actions.ParseArgs(st.ArgsBuffer))
		}

	case api.EventActionSnapshot:
		e.executeAction(actionID, cmp.Or(ev.ActionName, "unknown"), actions.ParseRawArgs(ev.Arguments))
	}
}

func (e *Engine) actionState(actionID string) *ActionState {
	st, ok := e.st.actions[actionID]
	if !ok {
		st = &ActionState{ActionID: actionID, ActionName: "unknown"}
		e.st.actions[actionID] = st
	}
	return st
}

// executeAction runs an action at most once per action id.
func (e *Engine) executeAction(actionID, name string, args map[string]any) {
	if _, done := e.st.executedActions[actionID]; done {
		return
	}
	e.st.executedActions[actionID] = struct{}{}
	res := e.actions.Execute(name, args)
	e.setStatus(res.Status, false)
}
