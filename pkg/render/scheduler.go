// Package render coalesces timeline changes into frames. Callers mark nodes
// dirty; at most one flush runs per frame, redrawing only what changed and
// keeping the view pinned to the bottom when the user was already there.
package render

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/linlay/agent-webclient/pkg/timeline"
)

// NearBottomThreshold is the largest distance from the bottom, in surface
// units, that still counts as "at the bottom".
const NearBottomThreshold = 56

// Metrics describes the scroll position of a surface.
type Metrics struct {
	ScrollTop    int
	ScrollHeight int
	ClientHeight int
}

// NearBottom reports whether the visible area reaches within
// NearBottomThreshold of the end of the content.
func (m Metrics) NearBottom() bool {
	return m.ScrollHeight-m.ScrollTop-m.ClientHeight <= NearBottomThreshold
}

// Frame is one batch of changes for a surface.
type Frame struct {
	// Order is the complete list of node ids in display order.
	Order []string
	// Updated holds copies of the nodes to redraw, in display order.
	Updated []*timeline.Node
	Created []string
	Removed []string
	Full    bool
	Empty   bool
}

// Surface paints frames.
type Surface interface {
	ScrollMetrics() Metrics
	Apply(Frame)
	ScrollToBottom()
}

// NodeSource provides the ordered node list. *timeline.Store satisfies it.
type NodeSource interface {
	Nodes() []*timeline.Node
}

// Request asks for a redraw. An empty NodeID means a full resync.
type Request struct {
	NodeID        string
	StickToBottom bool
	Full          bool
}

// NodeRequest is the common case: redraw one node and follow the bottom.
func NodeRequest(id string) Request {
	return Request{NodeID: id, StickToBottom: true}
}

// Scheduler is the render queue. It is not safe for concurrent use; the
// FrameRequester must run flush callbacks serialized with Schedule.
type Scheduler struct {
	source    NodeSource
	surface   Surface
	requester FrameRequester

	dirty         *orderedmap.OrderedMap[string, struct{}]
	fullSync      bool
	stickToBottom bool
	scheduled     bool
	seq           uint64

	slots *orderedmap.OrderedMap[string, struct{}]
}

func NewScheduler(source NodeSource, surface Surface, requester FrameRequester) *Scheduler {
	return &Scheduler{
		source:    source,
		surface:   surface,
		requester: requester,
		dirty:     orderedmap.New[string, struct{}](),
		slots:     orderedmap.New[string, struct{}](),
	}
}

// Schedule records a request and arms a flush unless one is already pending.
func (s *Scheduler) Schedule(req Request) {
	if req.Full || req.NodeID == "" {
		s.fullSync = true
	}
	if req.NodeID != "" {
		s.dirty.Set(req.NodeID, struct{}{})
	}
	if req.StickToBottom {
		s.stickToBottom = true
	}
	if s.scheduled {
		return
	}
	s.scheduled = true
	seq := s.seq
	s.requester.RequestFrame(func() {
		if seq != s.seq {
			return
		}
		s.Flush()
	})
}

// Pending reports whether a flush is armed.
func (s *Scheduler) Pending() bool {
	return s.scheduled
}

// Reset drops queued work, forgets realized slots and cancels an armed
// flush. The next flush redraws everything.
func (s *Scheduler) Reset() {
	s.seq++
	s.scheduled = false
	s.clearQueue()
	s.slots = orderedmap.New[string, struct{}]()
}

func (s *Scheduler) clearQueue() {
	s.dirty = orderedmap.New[string, struct{}]()
	s.fullSync = false
	s.stickToBottom = false
}

// Flush applies all queued work now.
func (s *Scheduler) Flush() {
	s.scheduled = false
	s.seq++

	nodes := s.source.Nodes()
	if len(nodes) == 0 {
		s.slots = orderedmap.New[string, struct{}]()
		s.clearQueue()
		s.surface.Apply(Frame{Empty: true, Full: true})
		return
	}

	nearBottom := s.surface.ScrollMetrics().NearBottom()

	order := make([]string, len(nodes))
	active := make(map[string]struct{}, len(nodes))
	for i, n := range nodes {
		order[i] = n.ID
		active[n.ID] = struct{}{}
	}

	var removed []string
	for pair := s.slots.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := active[pair.Key]; !ok {
			removed = append(removed, pair.Key)
		}
	}
	for _, id := range removed {
		s.slots.Delete(id)
	}

	var created []string
	for _, id := range order {
		if _, ok := s.slots.Get(id); !ok {
			s.slots.Set(id, struct{}{})
			created = append(created, id)
		}
	}

	targets := make(map[string]struct{})
	if s.fullSync {
		targets = active
	} else {
		for pair := s.dirty.Oldest(); pair != nil; pair = pair.Next() {
			targets[pair.Key] = struct{}{}
		}
		for _, id := range created {
			targets[id] = struct{}{}
		}
	}

	var updated []*timeline.Node
	for _, n := range nodes {
		if _, ok := targets[n.ID]; ok {
			updated = append(updated, n.Clone())
		}
	}

	s.surface.Apply(Frame{
		Order:   order,
		Updated: updated,
		Created: created,
		Removed: removed,
		Full:    s.fullSync,
	})

	if s.stickToBottom && nearBottom {
		s.surface.ScrollToBottom()
	}
	s.clearQueue()
}
