package frontendtool

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlay/agent-webclient/pkg/api"
)

type recordingSurface struct {
	locked  bool
	shown   *Active
	inits   []InitMessage
	pending []Pending
}

func (r *recordingSurface) SetInputLocked(locked bool)    { r.locked = locked }
func (r *recordingSurface) ShowTool(tool *Active)         { r.shown = tool }
func (r *recordingSurface) PostInit(msg InitMessage)      { r.inits = append(r.inits, msg) }
func (r *recordingSurface) ShowPending(pending []Pending) { r.pending = pending }

func descriptor(toolID, toolKey string, params map[string]any) Descriptor {
	return Descriptor{
		RunID:    "run-1",
		ToolID:   toolID,
		ToolName: "confirm",
		ToolKey:  toolKey,
		ToolType: " HTML ",
		Params:   params,
	}
}

func viewportHTML(html string) *api.Viewport {
	return &api.Viewport{HTML: html}
}

func TestIsFrontendTool(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFrontendTool("html", "k"))
	assert.True(t, IsFrontendTool(" QLC", "k"))
	assert.False(t, IsFrontendTool("html", ""))
	assert.False(t, IsFrontendTool("function", "k"))
	assert.Equal(t, "r#t", PendingKey(" r ", "t"))
	assert.Empty(t, PendingKey("", "t"))
}

func TestCoordinator_ActivateLoadsThenInits(t *testing.T) {
	t.Parallel()
	surface := &recordingSurface{}
	c := New(surface, nil)

	ticket := c.Activate(descriptor("t1", "k1", map[string]any{"a": 1}))
	require.NotNil(t, ticket)
	assert.True(t, surface.locked)
	require.NotNil(t, surface.shown)
	assert.True(t, surface.shown.Loading)
	assert.Empty(t, surface.inits)

	require.True(t, c.FinishLoad(*ticket, viewportHTML("<form/>"), nil))
	require.Len(t, surface.inits, 1)
	init := surface.inits[0]
	assert.Equal(t, "tool_init", init.Type)
	assert.Equal(t, "run-1", init.Data.RunID)
	assert.Equal(t, "t1", init.Data.ToolID)
	assert.Equal(t, "html", init.Data.ToolType)
	assert.Equal(t, map[string]any{"a": 1}, init.Data.Params)
	assert.False(t, surface.shown.Loading)
}

func TestCoordinator_SameToolReusesHTML(t *testing.T) {
	t.Parallel()
	surface := &recordingSurface{}
	c := New(surface, nil)

	ticket := c.Activate(descriptor("t1", "k1", map[string]any{"v": 1}))
	require.NotNil(t, ticket)
	c.FinishLoad(*ticket, viewportHTML("<form/>"), nil)

	again := c.Activate(descriptor("t1", "k1", map[string]any{"v": 2}))
	assert.Nil(t, again)
	require.Len(t, surface.inits, 2)
	assert.Equal(t, map[string]any{"v": 2}, surface.inits[1].Data.Params)
	assert.Equal(t, "<form/>", c.Active().HTML)

	changed := c.Activate(descriptor("t1", "k2", nil))
	assert.NotNil(t, changed)
}

func TestCoordinator_SameToolWhileLoadingKeepsFetch(t *testing.T) {
	t.Parallel()
	surface := &recordingSurface{}
	c := New(surface, nil)

	first := c.Activate(descriptor("t1", "k1", map[string]any{"v": 1}))
	require.NotNil(t, first)

	assert.Nil(t, c.Activate(descriptor("t1", "k1", map[string]any{"v": 2})))
	assert.True(t, surface.shown.Loading)
	assert.Empty(t, surface.inits)

	require.True(t, c.FinishLoad(*first, viewportHTML("<form/>"), nil))
	require.Len(t, surface.inits, 1)
	assert.Equal(t, map[string]any{"v": 2}, surface.inits[0].Data.Params)
	assert.Equal(t, "<form/>", c.Active().HTML)
}

func TestCoordinator_FinishLoadFallbackAndErrors(t *testing.T) {
	t.Parallel()
	c := New(nil, nil)

	ticket := c.Activate(descriptor("t1", "k1", nil))
	require.NotNil(t, ticket)
	require.True(t, c.FinishLoad(*ticket, &api.Viewport{Raw: json.RawMessage(`{"x":"<b>"}`)}, nil))
	assert.Equal(t, "<html><body><pre>{\n  &#34;x&#34;: &#34;&lt;b&gt;&#34;\n}</pre></body></html>", c.Active().HTML)

	ticket = c.Activate(descriptor("t2", "k2", nil))
	require.NotNil(t, ticket)
	require.True(t, c.FinishLoad(*ticket, nil, errors.New("404")))
	assert.Equal(t, "frontend tool load failed: 404", c.Active().LoadError)
}

func TestCoordinator_StaleLoadIsDropped(t *testing.T) {
	t.Parallel()
	c := New(nil, nil)

	first := c.Activate(descriptor("t1", "k1", nil))
	require.NotNil(t, first)
	second := c.Activate(descriptor("t2", "k2", nil))
	require.NotNil(t, second)

	assert.False(t, c.FinishLoad(*first, viewportHTML("<old/>"), nil))
	assert.True(t, c.FinishLoad(*second, viewportHTML("<new/>"), nil))
	assert.Equal(t, "run-1#t2", c.Active().Key)

	c.Clear()
	assert.False(t, c.FinishLoad(*second, viewportHTML("<late/>"), nil))
}

func TestCoordinator_Policies(t *testing.T) {
	t.Parallel()

	t.Run("reject keeps current", func(t *testing.T) {
		t.Parallel()
		c := New(nil, RejectPolicy{})
		c.Activate(descriptor("t1", "k1", nil))
		assert.Nil(t, c.Activate(descriptor("t2", "k2", nil)))
		assert.Equal(t, "run-1#t1", c.Active().Key)
	})

	t.Run("queue activates after accept", func(t *testing.T) {
		t.Parallel()
		c := New(nil, QueuePolicy{})
		c.Activate(descriptor("t1", "k1", nil))
		assert.Nil(t, c.Activate(descriptor("t2", "k2", nil)))
		assert.Equal(t, 1, c.Queued())

		ticket, err := c.BeginSubmit(nil)
		require.NoError(t, err)
		out := c.FinishSubmit(ticket, &api.SubmitResponse{Accepted: true}, nil)
		require.NotNil(t, out.Next)
		assert.Equal(t, "run-1#t2", c.Active().Key)
		assert.Zero(t, c.Queued())
	})

	t.Run("clear drops queue", func(t *testing.T) {
		t.Parallel()
		c := New(nil, QueuePolicy{})
		c.Activate(descriptor("t1", "k1", nil))
		c.Activate(descriptor("t2", "k2", nil))
		c.Clear()
		assert.Nil(t, c.Active())
		assert.Zero(t, c.Queued())
	})
}

func TestCoordinator_SubmitAccepted(t *testing.T) {
	t.Parallel()
	surface := &recordingSurface{}
	c := New(surface, nil)
	d := descriptor("t1", "k1", nil)
	c.Upsert(d, "pending")
	c.Activate(d)

	ticket, err := c.BeginSubmit(map[string]any{"ok": true})
	require.NoError(t, err)
	assert.True(t, surface.shown.Submitting)
	assert.Equal(t, "{\n  \"ok\": true\n}", c.Pending()[0].PayloadText)

	out := c.FinishSubmit(ticket, &api.SubmitResponse{Accepted: true}, nil)
	assert.True(t, out.Accepted)
	assert.Equal(t, "accepted", out.Status)
	assert.Equal(t, "accepted", out.Detail)
	assert.Nil(t, c.Active())
	assert.Empty(t, c.Pending())
	assert.False(t, surface.locked)
	assert.Nil(t, surface.shown)
}

func TestCoordinator_SubmitRejectedKeepsTool(t *testing.T) {
	t.Parallel()
	c := New(nil, nil)
	d := descriptor("t1", "k1", nil)
	c.Upsert(d, "pending")
	c.Activate(d)

	ticket, err := c.BeginSubmit(nil)
	require.NoError(t, err)
	out := c.FinishSubmit(ticket, &api.SubmitResponse{Detail: "run not waiting"}, nil)
	assert.False(t, out.Accepted)
	assert.Equal(t, "unmatched", out.Status)

	active := c.Active()
	require.NotNil(t, active)
	assert.Equal(t, StateRejected, active.State)
	assert.Equal(t, "submit unmatched: run not waiting", active.SubmitError)
	assert.Equal(t, PendingError, c.Pending()[0].Status)
	assert.Equal(t, "run not waiting", c.Pending()[0].StatusText)

	// Transport failure leaves it retryable too.
	ticket, err = c.BeginSubmit(nil)
	require.NoError(t, err)
	out = c.FinishSubmit(ticket, nil, errors.New("connection refused"))
	require.Error(t, out.Err)
	assert.Equal(t, "submit failed: connection refused", c.Active().SubmitError)
	assert.Equal(t, "connection refused", c.Pending()[0].StatusText)
}

func TestCoordinator_BeginSubmitWithoutActive(t *testing.T) {
	t.Parallel()
	c := New(nil, nil)

	_, err := c.BeginSubmit(nil)
	assert.ErrorIs(t, err, ErrNoActiveTool)
}

func TestCoordinator_SubmitPending(t *testing.T) {
	t.Parallel()
	c := New(nil, nil)
	c.Upsert(descriptor("t1", "k1", map[string]any{"n": 1}), "pending")

	_, err := c.BeginSubmitPending("missing")
	require.ErrorIs(t, err, ErrUnknownPending)

	require.True(t, c.SetPendingPayload("run-1#t1", "{broken"))
	_, err = c.BeginSubmitPending("run-1#t1")
	require.Error(t, err)
	assert.Equal(t, PendingError, c.Pending()[0].Status)

	c.SetPendingPayload("run-1#t1", `{"n":2}`)
	ticket, err := c.BeginSubmitPending("run-1#t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(2)}, ticket.Params)

	out := c.FinishSubmit(ticket, &api.SubmitResponse{Accepted: true, Status: "ok", Detail: "done"}, nil)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "done", out.Detail)
	assert.Empty(t, c.Pending())
}

func TestCoordinator_SyncParams(t *testing.T) {
	t.Parallel()
	surface := &recordingSurface{}
	c := New(surface, nil)
	d := descriptor("t1", "k1", nil)
	c.Upsert(d, "pending")
	ticket := c.Activate(d)
	c.FinishLoad(*ticket, viewportHTML("<form/>"), nil)

	d.Params = map[string]any{"city": "Shanghai"}
	c.SyncParams(d)

	assert.Equal(t, "{\n  \"city\": \"Shanghai\"\n}", c.Pending()[0].PayloadText)
	require.Len(t, surface.inits, 2)
	assert.Equal(t, d.Params, surface.inits[1].Data.Params)
}

func TestCoordinator_Reset(t *testing.T) {
	t.Parallel()
	surface := &recordingSurface{}
	c := New(surface, nil)
	d := descriptor("t1", "k1", nil)
	c.Upsert(d, "pending")
	c.Activate(d)

	c.Reset()
	assert.Nil(t, c.Active())
	assert.Empty(t, c.Pending())
	assert.False(t, surface.locked)
	assert.Empty(t, surface.pending)
}

func TestPolicyByName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Policy(RejectPolicy{}), PolicyByName("reject"))
	assert.Equal(t, Policy(QueuePolicy{}), PolicyByName(" Queue "))
	assert.Equal(t, Policy(ReplacePolicy{}), PolicyByName("replace"))
	assert.Equal(t, Policy(ReplacePolicy{}), PolicyByName(""))
	assert.Equal(t, Policy(ReplacePolicy{}), PolicyByName("bogus"))
}
