package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/timeline"
)

type nodeSummary struct {
	ID       string
	Kind     timeline.Kind
	Status   timeline.Status
	Text     string
	Expanded bool
}

func summarize(nodes []*timeline.Node) []nodeSummary {
	out := make([]nodeSummary, len(nodes))
	for i, n := range nodes {
		out[i] = nodeSummary{ID: n.ID, Kind: n.Kind, Status: n.Status, Text: n.Text, Expanded: n.Expanded}
	}
	return out
}

func TestApply_RequestAndRunEvents(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventRequestQuery, RequestID: "req1", ChatID: "c1", Message: "hello"},
		api.Event{Type: api.EventRunStart, RunID: "r1"},
		api.Event{Type: api.EventRunError, Error: json.RawMessage(`{"code":1}`)},
		api.Event{Type: api.EventRunCancel},
	)

	want := []nodeSummary{
		{ID: "msg:user:req1", Kind: timeline.KindMessage, Text: "hello"},
		{ID: "msg:sys:error:1", Kind: timeline.KindMessage, Text: "run.error: {\n  \"code\": 1\n}"},
		{ID: "msg:sys:cancel:2", Kind: timeline.KindMessage, Text: "run.cancel"},
	}
	if diff := cmp.Diff(want, summarize(h.engine.Nodes())); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}

	snap := h.engine.Snapshot()
	assert.Equal(t, "c1", snap.ChatID)
	assert.Equal(t, "r1", snap.RunID)
	assert.Equal(t, "req1", snap.RequestID)
	assert.Equal(t, Status{Text: "run.cancel", Error: true}, h.engine.Status())
}

func TestApply_RunComplete(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.chats = []api.Chat{{ChatID: "c1", ChatName: "First"}}

	h.ingest(SourceLive,
		api.Event{Type: api.EventRunStart, RunID: "r1", ChatID: "c1"},
		api.Event{Type: api.EventRunComplete},
	)
	h.engine.Wait()

	assert.Equal(t, "run.complete (end_turn)", h.engine.Status().Text)
	assert.Equal(t, "First", h.engine.ChatTitle(), "chat list refreshes after completion")
}

func TestApply_UnknownAndMalformedEventsAreIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: "mystery.event"},
		api.Event{Type: api.EventContentDelta, Delta: "no id"},
		api.Event{Type: api.EventToolArgs, Delta: "{}"},
		api.Event{Type: api.EventActionEnd},
	)

	assert.Empty(t, h.engine.Nodes())
	assert.Len(t, h.engine.Events(), 4)
}

func TestReasoning_LiveCollapsesAfterDelay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventReasoningStart, ReasoningID: "r1", Text: "Hmm"},
		api.Event{Type: api.EventReasoningDelta, ReasoningID: "r1", Delta: ", let me think"},
		api.Event{Type: api.EventReasoningEnd, ReasoningID: "r1"},
	)

	nodes := h.engine.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "thinking:r1:1", nodes[0].ID)
	assert.Equal(t, "Hmm, let me think", nodes[0].Text)
	assert.Equal(t, timeline.StatusCompleted, nodes[0].Status)
	assert.True(t, nodes[0].Expanded)

	h.clock.Advance(ReasoningCollapseDelay - time.Millisecond)
	assert.True(t, h.engine.Nodes()[0].Expanded)

	h.clock.Advance(time.Millisecond)
	assert.False(t, h.engine.Nodes()[0].Expanded)
}

func TestReasoning_DeltaCancelsPendingCollapse(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventReasoningSnapshot, ReasoningID: "r1", Text: "done"},
		api.Event{Type: api.EventReasoningDelta, ReasoningID: "r1", Delta: " more"},
	)
	h.clock.Advance(2 * ReasoningCollapseDelay)

	node := h.engine.Nodes()[0]
	assert.True(t, node.Expanded)
	assert.Equal(t, timeline.StatusRunning, node.Status)
	assert.Equal(t, "done more", node.Text)
}

func TestReasoning_HistoryCollapsesImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceHistory,
		api.Event{Type: api.EventReasoningStart},
		api.Event{Type: api.EventReasoningDelta, Delta: "a"},
		api.Event{Type: api.EventReasoningEnd, Text: "final"},
	)

	nodes := h.engine.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "final", nodes[0].Text)
	assert.False(t, nodes[0].Expanded)
	assert.Zero(t, h.clock.Pending())
}

func TestReasoning_ImplicitKeys(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceHistory,
		api.Event{Type: api.EventReasoningDelta, Delta: "first"},
		api.Event{Type: api.EventReasoningDelta, Delta: " block"},
		api.Event{Type: api.EventReasoningEnd},
		api.Event{Type: api.EventReasoningDelta, Delta: "second"},
		api.Event{Type: api.EventReasoningStart},
	)

	nodes := h.engine.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "first block", nodes[0].Text)
	assert.True(t, strings.HasPrefix(nodes[0].ID, "thinking:implicit:reasoning:"))
	assert.Equal(t, "second", nodes[1].Text)
	assert.Empty(t, nodes[2].Text)
}

func TestContent_TextRules(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventContentStart, ContentID: "c1", Text: "Hel"},
		api.Event{Type: api.EventContentDelta, ContentID: "c1", Delta: "lo"},
		api.Event{Type: api.EventContentEnd, ContentID: "c1", Text: "   "},
	)
	node := h.engine.Nodes()[0]
	assert.Equal(t, "Hello", node.Text)
	assert.Equal(t, timeline.StatusCompleted, node.Status)

	h.ingest(SourceLive, api.Event{Type: api.EventContentSnapshot, ContentID: "c1"})
	assert.Equal(t, "Hello", h.engine.Nodes()[0].Text)

	h.ingest(SourceLive, api.Event{Type: api.EventContentSnapshot, ContentID: "c1", Text: "Replaced"})
	assert.Equal(t, "Replaced", h.engine.Nodes()[0].Text)
}

func TestReducer_RedeliveredStartKeepsStreamedText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []api.Event
		kind   timeline.Kind
	}{
		{
			name: "content",
			kind: timeline.KindContent,
			events: []api.Event{
				{Type: api.EventContentStart, ContentID: "c1"},
				{Type: api.EventContentDelta, ContentID: "c1", Delta: "Hello "},
				{Type: api.EventContentStart, ContentID: "c1"},
				{Type: api.EventContentDelta, ContentID: "c1", Delta: "world"},
				{Type: api.EventContentEnd, ContentID: "c1"},
			},
		},
		{
			name: "content start carrying text",
			kind: timeline.KindContent,
			events: []api.Event{
				{Type: api.EventContentStart, ContentID: "c1", Text: "Hello "},
				{Type: api.EventContentStart, ContentID: "c1", Text: "Hel"},
				{Type: api.EventContentDelta, ContentID: "c1", Delta: "world"},
				{Type: api.EventContentEnd, ContentID: "c1", Text: " "},
			},
		},
		{
			name: "reasoning",
			kind: timeline.KindThinking,
			events: []api.Event{
				{Type: api.EventReasoningStart, ReasoningID: "r1"},
				{Type: api.EventReasoningDelta, ReasoningID: "r1", Delta: "Hello "},
				{Type: api.EventReasoningStart, ReasoningID: "r1", Text: "stale"},
				{Type: api.EventReasoningDelta, ReasoningID: "r1", Delta: "world"},
				{Type: api.EventReasoningEnd, ReasoningID: "r1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.ingest(SourceLive, tt.events...)

			nodes := h.engine.Nodes()
			require.Len(t, nodes, 1)
			assert.Equal(t, tt.kind, nodes[0].Kind)
			assert.Equal(t, "Hello world", nodes[0].Text)
			assert.Equal(t, timeline.StatusCompleted, nodes[0].Status)
		})
	}
}

func TestReducer_UnknownSubtypesAndEmptyDeltasCreateNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: "content.citation", ContentID: "c9"},
		api.Event{Type: "reasoning.summary", ReasoningID: "r9"},
		api.Event{Type: "tool.progress", ToolID: "t9"},
		api.Event{Type: api.EventContentDelta, ContentID: "c10"},
		api.Event{Type: api.EventReasoningDelta, ReasoningID: "r10"},
	)
	h.engine.Flush()

	assert.Empty(t, h.engine.Nodes())

	h.ingest(SourceLive, api.Event{Type: api.EventContentDelta, ContentID: "c10", Delta: "hi"})
	nodes := h.engine.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "hi", nodes[0].Text)
}

func TestContent_KeepsEventTimestamp(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	text := "old answer\n```viewport\ntype=html, key=chart\n{}\n```"
	h.ingest(SourceHistory, api.Event{
		Type:      api.EventContentSnapshot,
		ContentID: "c1",
		Text:      text,
		Timestamp: 1_600_000_000_000,
	})
	h.engine.Wait()

	node := h.engine.Nodes()[0]
	assert.Equal(t, time.UnixMilli(1_600_000_000_000), node.Timestamp)
	for _, embed := range node.Embeds {
		assert.Equal(t, h.clock.Now(), embed.UpdatedAt)
	}
}

func TestContent_LoadsViewportEmbeds(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.viewports["chart"] = &api.Viewport{HTML: "<p>chart</p>"}

	text := "Here:\n```viewport\ntype=html, key=chart\n{\"a\":1}\n```\n"
	h.ingest(SourceLive, api.Event{Type: api.EventContentSnapshot, ContentID: "c1", RunID: "r1", Text: text})
	h.engine.Wait()

	node := h.engine.Nodes()[0]
	require.Len(t, node.Embeds, 1)
	for _, embed := range node.Embeds {
		assert.Equal(t, "chart", embed.Key)
		assert.Equal(t, "<p>chart</p>", embed.HTML)
		assert.False(t, embed.Loading)
	}
}

func TestContent_ViewportErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.viewportErr = errors.New("boom")

	text := "```viewport\ntype=html, key=chart\n{}\n```"
	h.ingest(SourceLive, api.Event{Type: api.EventContentSnapshot, ContentID: "c1", Text: text})
	h.engine.Wait()

	for _, embed := range h.engine.Nodes()[0].Embeds {
		assert.Equal(t, "viewport failed: boom", embed.Error)
	}
}

func TestTool_Lifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventToolStart, ToolID: "t1", ToolName: "search", ToolParams: json.RawMessage(`{"q":"go"}`)},
		api.Event{Type: api.EventToolArgs, ToolID: "t1", Delta: `{"q":`},
	)
	node := h.engine.Nodes()[0]
	assert.Equal(t, "tool:t1:1", node.ID)
	assert.Equal(t, "search", node.ToolName)
	assert.Equal(t, `{"q":`, node.ArgsText)
	assert.Equal(t, timeline.StatusRunning, node.Status)
	assert.False(t, node.Expanded)

	h.ingest(SourceLive,
		api.Event{Type: api.EventToolArgs, ToolID: "t1", Delta: `"rust"}`},
		api.Event{Type: api.EventToolResult, ToolID: "t1", Result: json.RawMessage(`{"hits":2}`)},
		api.Event{Type: api.EventToolEnd, ToolID: "t1", Error: json.RawMessage(`"late"`)},
	)
	node = h.engine.Nodes()[0]
	assert.Equal(t, `{"q":"rust"}`, node.ArgsText)
	assert.Equal(t, &timeline.ToolResult{Text: "{\n  \"hits\": 2\n}", IsCode: true}, node.Result)
	assert.Equal(t, timeline.StatusCompleted, node.Status, "tool.end does not override a recorded result")
}

func TestTool_FailedResultAndEndWithoutResult(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventToolResult, ToolID: "t1", Text: "", Error: json.RawMessage(`"denied"`)},
		api.Event{Type: api.EventToolEnd, ToolID: "t2", Error: json.RawMessage(`true`)},
	)

	nodes := h.engine.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, &timeline.ToolResult{Text: "(empty)"}, nodes[0].Result)
	assert.Equal(t, timeline.StatusFailed, nodes[0].Status)
	assert.Nil(t, nodes[1].Result)
	assert.Equal(t, timeline.StatusFailed, nodes[1].Status)
}

func TestTool_SnapshotArgs(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventToolSnapshot, ToolID: "t1", Arguments: json.RawMessage(`"{\"x\":1}"`)},
		api.Event{Type: api.EventToolSnapshot, ToolID: "t2", Arguments: json.RawMessage(`"{broken"`)},
	)

	nodes := h.engine.Nodes()
	assert.Equal(t, "{\n  \"x\": 1\n}", nodes[0].ArgsText)
	assert.Equal(t, timeline.StatusCompleted, nodes[0].Status)
	assert.Equal(t, "{}", nodes[1].ArgsText)

	var sawDiagnostic bool
	for _, line := range h.engine.DebugLines() {
		if strings.HasPrefix(line, "[tool:t2] parse arguments failed") {
			sawDiagnostic = true
		}
	}
	assert.True(t, sawDiagnostic)
}

func frontendToolStart(runID, toolID string) api.Event {
	return api.Event{
		Type:       api.EventToolStart,
		RunID:      api.ID(runID),
		ToolID:     api.ID(toolID),
		ToolName:   "confirm",
		ToolType:   "HTML",
		ToolKey:    "confirm_dialog",
		ToolParams: json.RawMessage(`{"question":"ok?"}`),
	}
}

func TestFrontendTool_LiveActivation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.backend.viewports["confirm_dialog"] = &api.Viewport{HTML: "<form></form>"}

	h.ingest(SourceLive, frontendToolStart("r1", "t1"))
	h.engine.Wait()

	active := h.engine.ActiveTool()
	require.NotNil(t, active)
	assert.Equal(t, "r1#t1", active.Key)
	assert.Equal(t, "<form></form>", active.HTML)

	pending := h.engine.PendingTools()
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].StatusText)

	h.engine.do(func() {
		require.Len(t, h.tools.inits, 1)
		assert.Equal(t, map[string]any{"question": "ok?"}, h.tools.inits[0].Data.Params)
		assert.True(t, h.tools.locked[len(h.tools.locked)-1])
	})
}

func TestFrontendTool_HistoryDoesNotActivate(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceHistory, frontendToolStart("r1", "t1"))
	h.engine.Wait()

	assert.Nil(t, h.engine.ActiveTool())
	assert.Empty(t, h.engine.PendingTools())
}

func TestFrontendTool_ClearedByTerminalRunEvent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive, frontendToolStart("r1", "t1"))
	h.engine.Wait()
	require.NotNil(t, h.engine.ActiveTool())

	h.ingest(SourceLive, api.Event{Type: api.EventRunCancel})
	assert.Nil(t, h.engine.ActiveTool())
}

func TestSubmitActiveFrontendTool(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive, frontendToolStart("r1", "t1"))
	h.engine.Wait()

	h.backend.submitResp = &api.SubmitResponse{Accepted: false, Detail: "expired"}
	require.NoError(t, h.engine.SubmitActiveFrontendTool(t.Context(), map[string]any{"ok": true}))
	assert.Equal(t, Status{Text: "submit unmatched: t1", Error: true}, h.engine.Status())
	active := h.engine.ActiveTool()
	require.NotNil(t, active)
	assert.Equal(t, "submit unmatched: expired", active.SubmitError)

	h.backend.submitResp = &api.SubmitResponse{Accepted: true}
	require.NoError(t, h.engine.SubmitActiveFrontendTool(t.Context(), map[string]any{"ok": true}))
	assert.Equal(t, Status{Text: "submit accepted: t1"}, h.engine.Status())
	assert.Nil(t, h.engine.ActiveTool())
	assert.Empty(t, h.engine.PendingTools())

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	require.Len(t, h.backend.submits, 2)
	assert.Equal(t, api.SubmitRequest{RunID: "r1", ToolID: "t1", Params: map[string]any{"ok": true}}, h.backend.submits[1])
}

func TestSubmitActiveFrontendTool_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	err := h.engine.SubmitActiveFrontendTool(t.Context(), nil)
	require.ErrorIs(t, err, ErrNoActiveTool)

	h.ingest(SourceLive, frontendToolStart("r1", "t1"))
	h.engine.Wait()

	h.backend.submitErr = errors.New("network down")
	err = h.engine.SubmitActiveFrontendTool(t.Context(), nil)
	require.Error(t, err)
	assert.Equal(t, Status{Text: "submit failed: network down", Error: true}, h.engine.Status())
	assert.NotNil(t, h.engine.ActiveTool())
}

func TestSubmitPendingTool(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive, frontendToolStart("r1", "t1"))
	h.engine.Wait()
	h.backend.submitResp = &api.SubmitResponse{Accepted: true}

	require.NoError(t, h.engine.SubmitPendingTool(t.Context(), "r1#t1"))
	assert.Empty(t, h.engine.PendingTools())
	assert.Nil(t, h.engine.ActiveTool())

	err := h.engine.SubmitPendingTool(t.Context(), "r1#t1")
	require.ErrorIs(t, err, frontendtool.ErrUnknownPending)
}

func TestActions_ExecuteOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventActionStart, ActionID: "a1", ActionName: "switch_theme"},
		api.Event{Type: api.EventActionArgs, ActionID: "a1", Delta: `{"theme":`},
		api.Event{Type: api.EventActionArgs, ActionID: "a1", Delta: `"dark"}`},
		api.Event{Type: api.EventActionEnd, ActionID: "a1"},
		api.Event{Type: api.EventActionSnapshot, ActionID: "a1", ActionName: "switch_theme", Arguments: json.RawMessage(`{"theme":"light"}`)},
		api.Event{Type: api.EventActionSnapshot, ActionID: "a2", ActionName: "switch_theme", Arguments: json.RawMessage(`"{\"theme\":\"light\"}"`)},
		api.Event{Type: api.EventActionEnd, ActionID: "unknown-id"},
	)

	h.engine.do(func() {
		assert.Equal(t, []string{"dark", "light"}, h.host.themes)
	})
	assert.Equal(t, "Action switch_theme -> light", h.engine.Status().Text)
}

func TestPlan_UpdateAndTasks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventPlanUpdate, PlanID: "p1", Plan: []api.PlanTask{
			{TaskID: "a", Description: "Collect"},
			{TaskID: "b", Description: "Write"},
		}},
		api.Event{Type: api.EventTaskStart, TaskID: "a"},
	)

	view := h.engine.Plan()
	assert.True(t, view.Visible)
	assert.True(t, view.Expanded)
	assert.Equal(t, 1, view.Current)
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, "Collect", view.Summary)

	h.clock.Advance(4 * time.Second)
	assert.False(t, h.engine.Plan().Expanded)

	h.engine.SetPlanExpanded(true, true)
	h.ingest(SourceLive, api.Event{Type: api.EventPlanUpdate, PlanID: "p1", Plan: []api.PlanTask{{TaskID: "a"}}})
	h.clock.Advance(10 * time.Second)
	assert.True(t, h.engine.Plan().Expanded)

	h.engine.do(func() {
		assert.NotEmpty(t, h.observer.plans)
	})
}

func TestToggleNode(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventReasoningEnd, ReasoningID: "r1", Text: "x"},
		api.Event{Type: api.EventRequestQuery, RequestID: "q", Message: "hi"},
	)
	nodes := h.engine.Nodes()

	assert.True(t, h.engine.ToggleNode(nodes[0].ID))
	assert.False(t, h.engine.Nodes()[0].Expanded)

	h.clock.Advance(time.Minute)
	assert.False(t, h.engine.Nodes()[0].Expanded)
	assert.True(t, h.engine.ToggleNode(nodes[0].ID))
	h.clock.Advance(time.Minute)
	assert.True(t, h.engine.Nodes()[0].Expanded, "toggling cancels the auto-collapse")

	assert.False(t, h.engine.ToggleNode(nodes[1].ID), "messages do not toggle")
	assert.False(t, h.engine.ToggleNode("missing"))
}

func TestRender_FramesAreCoalesced(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.ingest(SourceLive,
		api.Event{Type: api.EventContentStart, ContentID: "c1", Text: "a"},
		api.Event{Type: api.EventContentDelta, ContentID: "c1", Delta: "b"},
		api.Event{Type: api.EventContentDelta, ContentID: "c1", Delta: "c"},
	)
	assert.Equal(t, 1, h.frames.Tick())

	h.engine.do(func() {
		require.Len(t, h.surface.frames, 1)
		frame := h.surface.frames[0]
		require.Len(t, frame.Updated, 1)
		assert.Equal(t, "abc", frame.Updated[0].Text)
		assert.Equal(t, 1, h.surface.scrolled)
	})
}

func TestLogsAreCapped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for i := range MaxEvents + 5 {
		h.engine.Ingest(api.Event{Type: "noise", Message: fmt.Sprint(i)}, SourceLive)
	}

	events := h.engine.Events()
	require.Len(t, events, MaxEvents)
	assert.Equal(t, "5", events[0].Message)
	assert.Len(t, h.engine.DebugLines(), MaxDebugLines)
}
