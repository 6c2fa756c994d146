// Package session reduces the agent event stream into a timeline and runs
// the conversation: sending queries, replaying history, loading embeds and
// submitting frontend tools.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linlay/agent-webclient/pkg/actions"
	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/client"
	"github.com/linlay/agent-webclient/pkg/clock"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/plan"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/timeline"
	"github.com/linlay/agent-webclient/pkg/viewport"
)

var (
	ErrStreaming          = errors.New("streaming in progress, stop first")
	ErrFrontendToolActive = errors.New("frontend tool awaiting submission, submit it first")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrNoActiveTool       = frontendtool.ErrNoActiveTool
	ErrMentionInvalid     = errors.New("mention error")
)

// Stream is an open query response.
type Stream interface {
	Next() (client.Frame, error)
	Close() error
}

// Backend is the agent platform as seen by the engine.
type Backend interface {
	GetAgents(ctx context.Context) ([]api.Agent, error)
	GetChats(ctx context.Context) ([]api.Chat, error)
	GetChat(ctx context.Context, chatID string, includeRawMessages bool) (*api.ChatDetail, error)
	GetViewport(ctx context.Context, viewportKey string) (*api.Viewport, error)
	SubmitTool(ctx context.Context, req api.SubmitRequest) (*api.SubmitResponse, error)
	Query(ctx context.Context, req api.QueryRequest) (Stream, error)
}

type clientBackend struct {
	*client.Client
}

func (b clientBackend) Query(ctx context.Context, req api.QueryRequest) (Stream, error) {
	return b.Client.Query(ctx, req)
}

// FromClient adapts an HTTP client to a Backend.
func FromClient(c *client.Client) Backend {
	return clientBackend{Client: c}
}

type Opt func(*Engine)

func WithClock(c clock.Clock) Opt {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithFrames replaces the 16ms clock-driven frame requester.
func WithFrames(frames render.FrameRequester) Opt {
	return func(e *Engine) {
		e.frames = frames
	}
}

func WithSurface(surface render.Surface) Opt {
	return func(e *Engine) {
		e.surface = surface
	}
}

func WithToolSurface(surface frontendtool.Surface) Opt {
	return func(e *Engine) {
		e.toolSurface = surface
	}
}

func WithToolPolicy(policy frontendtool.Policy) Opt {
	return func(e *Engine) {
		e.toolPolicy = policy
	}
}

func WithActionHost(host actions.Host) Opt {
	return func(e *Engine) {
		e.actionHost = host
	}
}

func WithObserver(observer Observer) Opt {
	return func(e *Engine) {
		e.observer = observer
	}
}

// Engine owns one conversation. All state is guarded by mu; background work
// re-enters through do and checks the generation it was started in.
type Engine struct {
	mu sync.Mutex

	backend     Backend
	clock       clock.Clock
	frames      render.FrameRequester
	surface     render.Surface
	toolSurface frontendtool.Surface
	toolPolicy  frontendtool.Policy
	actionHost  actions.Host
	observer    Observer

	timers    *clock.Timers
	store     *timeline.Store
	plan      *plan.Tracker
	tools     *frontendtool.Coordinator
	viewports *viewport.Loader
	render    *render.Scheduler
	actions   *actions.Runtime

	st state

	loadSeq      uint64
	streamSeq    uint64
	cancelStream context.CancelFunc

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight inflight
}

func New(backend Backend, opts ...Opt) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		backend:  backend,
		clock:    clock.Real(),
		observer: NopObserver{},
		st:       newState(),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.inflight.cond.L = &e.inflight.mu
	for _, opt := range opts {
		opt(e)
	}
	if e.frames == nil {
		e.frames = render.NewClockFrames(e.clock, render.DefaultFrameInterval, nil)
	}
	if e.surface == nil {
		e.surface = nopSurface{}
	}
	if e.actionHost == nil {
		e.actionHost = nopHost{}
	}

	e.timers = clock.NewTimers(e.clock, e.do)
	e.store = timeline.NewStore()
	e.plan = plan.NewTracker(e.clock, e.timers, e.notifyPlan)
	e.tools = frontendtool.New(e.toolSurface, e.toolPolicy)
	e.viewports = viewport.NewLoader()
	e.render = render.NewScheduler(e.store, e.surface, lockedFrames{inner: e.frames, do: e.do})
	e.actions = actions.NewRuntime(e.actionHost)
	return e
}

// lockedFrames runs frame callbacks under the engine lock.
type lockedFrames struct {
	inner render.FrameRequester
	do    func(func())
}

func (l lockedFrames) RequestFrame(fn func()) {
	l.inner.RequestFrame(func() { l.do(fn) })
}

type nopSurface struct{}

func (nopSurface) ScrollMetrics() render.Metrics { return render.Metrics{} }
func (nopSurface) Apply(render.Frame)            {}
func (nopSurface) ScrollToBottom()               {}

type nopHost struct{}

func (nopHost) SetTheme(string)               {}
func (nopHost) LaunchFireworks(time.Duration) {}
func (nopHost) ShowModal(actions.Modal)       {}

func (e *Engine) do(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// async runs fn in a goroutine tracked by Wait and Close.
func (e *Engine) async(fn func(ctx context.Context)) {
	e.inflight.add()
	e.wg.Go(func() {
		defer e.inflight.done()
		fn(e.ctx)
	})
}

// Wait blocks until no background fetch is running. It may be called
// while new fetches are being started.
func (e *Engine) Wait() {
	e.inflight.wait()
}

// inflight counts running background work. Unlike a WaitGroup it can be
// waited on while work is still being added.
type inflight struct {
	mu   sync.Mutex
	cond sync.Cond
	n    int
}

func (f *inflight) add() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.n--
	if f.n == 0 {
		f.cond.Broadcast()
	}
	f.mu.Unlock()
}

func (f *inflight) wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.n > 0 {
		f.cond.Wait()
	}
}

// Close aborts the stream and background work and cancels every timer.
func (e *Engine) Close() {
	e.do(func() {
		if e.cancelStream != nil {
			e.cancelStream()
			e.cancelStream = nil
		}
		e.timers.CancelAll()
	})
	e.cancel()
	e.wg.Wait()
}

// Ingest applies one event.
func (e *Engine) Ingest(ev api.Event, source Source) {
	e.do(func() {
		e.apply(&ev, source)
	})
}

// Snapshot returns the conversation-level state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.snapshot()
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.status
}

func (e *Engine) Plan() plan.View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan.View()
}

// Nodes returns copies of the timeline nodes in display order.
func (e *Engine) Nodes() []*timeline.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	nodes := e.store.Nodes()
	out := make([]*timeline.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Events returns the most recent events, oldest first.
func (e *Engine) Events() []api.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]api.Event(nil), e.st.events...)
}

// DebugLines returns the debug sink, oldest first.
func (e *Engine) DebugLines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.st.debug...)
}

// ActiveTool returns a copy of the active frontend tool, or nil.
func (e *Engine) ActiveTool() *frontendtool.Active {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tools.Active()
}

func (e *Engine) PendingTools() []frontendtool.Pending {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tools.Pending()
}

// Flush applies queued render work immediately.
func (e *Engine) Flush() {
	e.do(e.render.Flush)
}

// ToggleNode flips the expansion of a thinking or tool node. A user toggle
// cancels a pending reasoning auto-collapse.
func (e *Engine) ToggleNode(id string) bool {
	toggled := false
	e.do(func() {
		node, ok := e.store.Node(id)
		if !ok || (node.Kind != timeline.KindThinking && node.Kind != timeline.KindTool) {
			return
		}
		node.Expanded = !node.Expanded
		if node.Kind == timeline.KindThinking {
			for key, nodeID := range e.st.reasoningTimers {
				if nodeID == id {
					e.cancelReasoningTimer(key)
				}
			}
		}
		e.render.Schedule(render.Request{NodeID: id})
		toggled = true
	})
	return toggled
}

// SetPlanExpanded expands or collapses the plan panel. A manual change pins
// the state until ClearPlanOverride.
func (e *Engine) SetPlanExpanded(expanded, manual bool) {
	e.do(func() {
		e.plan.SetExpanded(expanded, manual)
		e.notifyPlan()
	})
}

func (e *Engine) ClearPlanOverride() {
	e.do(func() {
		e.plan.ClearOverride()
		e.notifyPlan()
	})
}

// LockAgent routes messages without a mention to key. An empty key unlocks.
func (e *Engine) LockAgent(key string) {
	e.do(func() {
		e.st.lockedAgent = key
		if key == "" {
			e.setStatus("agent unlocked", false)
		} else {
			e.setStatus(fmt.Sprintf("agent locked: @%s", key), false)
		}
		e.notifySession()
	})
}

// resetConversation forgets everything about the current chat.
func (e *Engine) resetConversation() {
	e.timers.CancelAll()
	e.store.Reset()
	e.st.events = nil
	e.st.resetRun()
	e.st.reasoningTimers = make(map[string]string)
	e.plan.Reset()
	e.tools.Reset()
	e.viewports.Reset()
	e.render.Reset()
	e.render.Schedule(render.Request{Full: true})
	e.notifyPlan()
}

// resetRunTransient drops per-run bookkeeping before a new query. Nodes
// already on screen stay.
func (e *Engine) resetRunTransient() {
	e.cancelAllReasoningTimers()
	e.store.ResetRun()
	e.st.resetRun()
	e.tools.Reset()
}

func (e *Engine) setStatus(text string, isError bool) {
	e.st.status = Status{Text: text, Error: isError}
	if isError {
		slog.Debug("Status error", "status", text)
	}
	e.observer.StatusChanged(e.st.status)
}

func (e *Engine) debugf(format string, args ...any) {
	e.debugLine(fmt.Sprintf(format, args...))
}

func (e *Engine) debugLine(line string) {
	e.st.pushDebug(line)
	e.observer.DebugLogged(line)
}

func (e *Engine) notifyPlan() {
	e.observer.PlanChanged(e.plan.View())
}

func (e *Engine) notifySession() {
	e.observer.SessionChanged(e.st.snapshot())
}

func (e *Engine) eventTime(ev *api.Event) time.Time {
	if ev.Timestamp > 0 {
		return time.UnixMilli(ev.Timestamp)
	}
	return e.clock.Now()
}
