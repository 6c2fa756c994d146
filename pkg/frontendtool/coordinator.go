package frontendtool

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/linlay/agent-webclient/pkg/api"
)

var (
	ErrNoActiveTool   = errors.New("no frontend tool is awaiting submission")
	ErrUnknownPending = errors.New("pending tool not found")
	ErrMissingIDs     = errors.New("runId/toolId is missing, cannot submit")
)

// Decision is a Policy's answer to a second tool arriving while another one
// is still unresolved.
type Decision int

const (
	Replace Decision = iota
	Reject
	Queue
)

// Policy decides what happens when a different frontend tool activates
// while current is unresolved.
type Policy interface {
	Decide(current *Active, next Descriptor) Decision
}

// ReplacePolicy lets the newest tool take over.
type ReplacePolicy struct{}

func (ReplacePolicy) Decide(*Active, Descriptor) Decision { return Replace }

// RejectPolicy keeps the current tool and ignores the newcomer.
type RejectPolicy struct{}

func (RejectPolicy) Decide(*Active, Descriptor) Decision { return Reject }

// QueuePolicy activates newcomers one at a time, after the current tool is
// accepted.
type QueuePolicy struct{}

func (QueuePolicy) Decide(*Active, Descriptor) Decision { return Queue }

// PolicyByName maps the names accepted in the user configuration to a
// Policy. Unknown and empty names select ReplacePolicy.
func PolicyByName(name string) Policy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reject":
		return RejectPolicy{}
	case "queue":
		return QueuePolicy{}
	}
	return ReplacePolicy{}
}

// LoadTicket is issued when the active tool needs its HTML fetched.
type LoadTicket struct {
	Key     string
	ToolKey string
	gen     uint64
}

// SubmitTicket correlates a submit call with the tool it was made for.
type SubmitTicket struct {
	Key        string
	RunID      string
	ToolID     string
	Params     map[string]any
	fromActive bool
}

// Outcome is the result of a finished submit.
type Outcome struct {
	ToolID   string
	Accepted bool
	Status   string
	Detail   string
	Err      error
	// Next is set when accepting the tool promoted a queued one.
	Next *LoadTicket
}

// Coordinator holds pending tools and the single active frontend tool. It
// is not safe for concurrent use.
type Coordinator struct {
	surface Surface
	policy  Policy

	pending *orderedmap.OrderedMap[string, *Pending]
	active  *Active
	queue   []Descriptor
	gen     uint64
}

func New(surface Surface, policy Policy) *Coordinator {
	if surface == nil {
		surface = NopSurface{}
	}
	if policy == nil {
		policy = ReplacePolicy{}
	}
	return &Coordinator{
		surface: surface,
		policy:  policy,
		pending: orderedmap.New[string, *Pending](),
	}
}

// Active returns a copy of the active tool, or nil.
func (c *Coordinator) Active() *Active {
	if c.active == nil {
		return nil
	}
	return c.active.clone()
}

// HasActive reports whether a tool currently holds the composer.
func (c *Coordinator) HasActive() bool {
	return c.active != nil
}

// Pending returns the pending tools in arrival order.
func (c *Coordinator) Pending() []Pending {
	out := make([]Pending, 0, c.pending.Len())
	for pair := c.pending.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}

// Queued returns the number of tools waiting behind the active one.
func (c *Coordinator) Queued() int {
	return len(c.queue)
}

// Upsert registers or refreshes a pending tool card.
func (c *Coordinator) Upsert(d Descriptor, statusText string) {
	key := PendingKey(d.RunID, d.ToolID)
	if key == "" {
		return
	}
	c.pending.Set(key, &Pending{
		Key:         key,
		RunID:       d.RunID,
		ToolID:      d.ToolID,
		ToolName:    d.ToolName,
		ToolAPI:     d.ToolAPI,
		ToolKey:     d.ToolKey,
		ToolType:    NormalizeType(d.ToolType),
		Description: d.Description,
		PayloadText: ParamsText(d.Params),
		Status:      PendingWaiting,
		StatusText:  statusText,
	})
	c.showPending()
}

// SetPendingPayload replaces the editable params text of a pending card.
func (c *Coordinator) SetPendingPayload(key, text string) bool {
	p, ok := c.pending.Get(key)
	if !ok {
		return false
	}
	p.PayloadText = text
	c.showPending()
	return true
}

// Activate makes d the active tool. It returns a ticket when the tool's
// HTML must be (re)loaded; otherwise the init handshake is re-sent at once.
func (c *Coordinator) Activate(d Descriptor) *LoadTicket {
	toolType := NormalizeType(d.ToolType)
	if d.RunID == "" || d.ToolID == "" || !IsFrontendTool(toolType, d.ToolKey) {
		return nil
	}
	key := PendingKey(d.RunID, d.ToolID)

	prev := c.active
	same := prev != nil && prev.Key == key
	if prev != nil && !same {
		switch c.policy.Decide(prev.clone(), d) {
		case Reject:
			slog.Debug("Frontend tool rejected while another is active", "active", prev.Key, "rejected", key)
			return nil
		case Queue:
			c.enqueue(d)
			return nil
		default:
			slog.Debug("Frontend tool superseded", "previous", prev.Key, "next", key)
			prev.State = StateSuperseded
		}
	}

	// A fetch already running for the same tool key is reused.
	inflight := same && prev.ToolKey == d.ToolKey && prev.Loading
	reload := !same || prev.ToolKey != d.ToolKey || (prev.HTML == "" && !inflight)

	params := d.Params
	if params == nil {
		params = map[string]any{}
	}
	name := d.ToolName
	if name == "" {
		name = d.ToolKey
	}

	next := &Active{
		Key:         key,
		RunID:       d.RunID,
		ToolID:      d.ToolID,
		ToolKey:     d.ToolKey,
		ToolType:    toolType,
		ToolName:    name,
		Description: d.Description,
		Timeout:     d.Timeout,
		Params:      params,
		State:       StateActive,
		Loading:     reload || inflight,
	}
	if same {
		next.Submitting = prev.Submitting
		next.SubmitError = prev.SubmitError
		if !reload {
			next.HTML = prev.HTML
			next.LoadError = prev.LoadError
		}
	}
	c.active = next
	c.show()

	if reload {
		c.gen++
		return &LoadTicket{Key: key, ToolKey: d.ToolKey, gen: c.gen}
	}
	if !inflight {
		c.postInit()
	}
	return nil
}

func (c *Coordinator) enqueue(d Descriptor) {
	key := PendingKey(d.RunID, d.ToolID)
	for i, q := range c.queue {
		if PendingKey(q.RunID, q.ToolID) == key {
			c.queue[i] = d
			return
		}
	}
	slog.Debug("Frontend tool queued", "active", c.active.Key, "queued", key)
	c.queue = append(c.queue, d)
}

// FinishLoad applies a viewport fetch for the active tool. Stale tickets are
// ignored and reported as false.
func (c *Coordinator) FinishLoad(t LoadTicket, vp *api.Viewport, err error) bool {
	if c.active == nil || c.active.Key != t.Key || t.gen != c.gen {
		return false
	}
	c.active.Loading = false
	if err != nil {
		c.active.LoadError = fmt.Sprintf("frontend tool load failed: %v", err)
		c.show()
		return true
	}

	html := ""
	if vp != nil {
		html = vp.HTML
		if strings.TrimSpace(html) == "" {
			html = FallbackHTML(vp.Raw)
		}
	}
	if html == "" {
		html = FallbackHTML(nil)
	}
	c.active.HTML = html
	c.active.LoadError = ""
	c.show()
	c.postInit()
	return true
}

// SyncParams pushes freshly resolved params into the pending card and, for
// the active tool, re-sends the init handshake.
func (c *Coordinator) SyncParams(d Descriptor) {
	if d.Params == nil || !IsFrontendTool(d.ToolType, d.ToolKey) {
		return
	}
	key := PendingKey(d.RunID, d.ToolID)
	if key == "" {
		return
	}

	if p, ok := c.pending.Get(key); ok {
		p.PayloadText = ParamsText(d.Params)
		c.showPending()
	}
	for i, q := range c.queue {
		if PendingKey(q.RunID, q.ToolID) == key {
			c.queue[i].Params = d.Params
		}
	}
	if c.active != nil && c.active.Key == key {
		c.active.Params = d.Params
		c.postInit()
	}
}

// BeginSubmit starts submitting params for the active tool.
func (c *Coordinator) BeginSubmit(params map[string]any) (SubmitTicket, error) {
	if c.active == nil {
		return SubmitTicket{}, ErrNoActiveTool
	}
	if params == nil {
		params = map[string]any{}
	}
	key := c.active.Key
	if p, ok := c.pending.Get(key); ok {
		p.PayloadText = ParamsText(params)
		c.showPending()
	}
	c.active.Submitting = true
	c.active.SubmitError = ""
	c.active.State = StateActive
	c.show()

	return SubmitTicket{
		Key:        key,
		RunID:      c.active.RunID,
		ToolID:     c.active.ToolID,
		Params:     params,
		fromActive: true,
	}, nil
}

// BeginSubmitPending starts submitting the edited params of a pending card.
func (c *Coordinator) BeginSubmitPending(key string) (SubmitTicket, error) {
	p, ok := c.pending.Get(key)
	if !ok {
		return SubmitTicket{}, ErrUnknownPending
	}

	params := map[string]any{}
	if text := strings.TrimSpace(p.PayloadText); text != "" {
		if err := json.Unmarshal([]byte(text), &params); err != nil {
			p.Status = PendingError
			p.StatusText = err.Error()
			c.showPending()
			return SubmitTicket{}, err
		}
	}
	if p.RunID == "" || p.ToolID == "" {
		p.Status = PendingError
		p.StatusText = ErrMissingIDs.Error()
		c.showPending()
		return SubmitTicket{}, ErrMissingIDs
	}

	return SubmitTicket{Key: key, RunID: p.RunID, ToolID: p.ToolID, Params: params}, nil
}

// FinishSubmit applies the submit response. An accepted submit removes the
// pending card and releases the composer; anything else leaves the tool in
// place so the user can retry.
func (c *Coordinator) FinishSubmit(t SubmitTicket, resp *api.SubmitResponse, err error) Outcome {
	out := Outcome{ToolID: t.ToolID}
	p, hasPending := c.pending.Get(t.Key)
	isActive := c.active != nil && c.active.Key == t.Key
	if isActive {
		c.active.Submitting = false
	}

	if err != nil {
		out.Err = err
		if hasPending {
			p.Status = PendingError
			p.StatusText = err.Error()
		}
		if isActive && t.fromActive {
			c.active.SubmitError = fmt.Sprintf("submit failed: %v", err)
		}
		c.showPending()
		if isActive {
			c.show()
		}
		return out
	}

	if resp == nil {
		resp = &api.SubmitResponse{}
	}
	out.Accepted = resp.Accepted
	out.Status = resp.Status
	if out.Status == "" {
		out.Status = "unmatched"
		if out.Accepted {
			out.Status = "accepted"
		}
	}
	out.Detail = resp.Detail
	if out.Detail == "" {
		out.Detail = out.Status
	}

	if out.Accepted {
		c.pending.Delete(t.Key)
		c.showPending()
		if isActive {
			c.active.State = StateAccepted
			c.active = nil
			c.gen++
			out.Next = c.activateNext()
			if out.Next == nil && c.active == nil {
				c.show()
			}
		}
		return out
	}

	if hasPending {
		p.Status = PendingError
		p.StatusText = out.Detail
	}
	c.showPending()
	if isActive {
		c.active.State = StateRejected
		if t.fromActive {
			c.active.SubmitError = "submit unmatched: " + out.Detail
		}
		c.show()
	}
	return out
}

func (c *Coordinator) activateNext() *LoadTicket {
	for len(c.queue) > 0 {
		d := c.queue[0]
		c.queue = c.queue[1:]
		if t := c.Activate(d); t != nil || c.active != nil {
			return t
		}
	}
	return nil
}

// Clear drops the active tool and anything queued behind it and unlocks
// the composer. Pending cards stay.
func (c *Coordinator) Clear() {
	if c.active != nil {
		c.active.State = StateIdle
	}
	c.active = nil
	c.queue = nil
	c.gen++
	c.show()
}

// Reset forgets every pending and active tool.
func (c *Coordinator) Reset() {
	c.pending = orderedmap.New[string, *Pending]()
	c.Clear()
	c.showPending()
}

func (c *Coordinator) show() {
	if c.active == nil {
		c.surface.SetInputLocked(false)
		c.surface.ShowTool(nil)
		return
	}
	c.surface.SetInputLocked(true)
	c.surface.ShowTool(c.active.clone())
}

func (c *Coordinator) showPending() {
	c.surface.ShowPending(c.Pending())
}

func (c *Coordinator) postInit() {
	if c.active == nil || c.active.HTML == "" {
		return
	}
	a := c.active.clone()
	if a.Params == nil {
		a.Params = map[string]any{}
	}
	c.surface.PostInit(InitMessage{
		Type: "tool_init",
		Data: InitPayload{
			RunID:       a.RunID,
			ToolID:      a.ToolID,
			ToolKey:     a.ToolKey,
			ToolType:    a.ToolType,
			ToolTimeout: a.Timeout,
			Params:      a.Params,
		},
	})
}
