package render

import (
	"time"

	"github.com/linlay/agent-webclient/pkg/clock"
)

// DefaultFrameInterval is the redraw tick for the clock-driven requester.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameRequester runs fn once on the next redraw tick.
type FrameRequester interface {
	RequestFrame(fn func())
}

// ClockFrames fires frames on a clock after a fixed interval. Callbacks go
// through dispatch so they run serialized with the scheduler's owner.
type ClockFrames struct {
	clock    clock.Clock
	interval time.Duration
	dispatch func(func())
}

func NewClockFrames(c clock.Clock, interval time.Duration, dispatch func(func())) *ClockFrames {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &ClockFrames{clock: c, interval: interval, dispatch: dispatch}
}

func (c *ClockFrames) RequestFrame(fn func()) {
	c.clock.AfterFunc(c.interval, func() { c.dispatch(fn) })
}

// ManualFrames queues frame callbacks until Tick is called.
type ManualFrames struct {
	queue []func()
}

func (m *ManualFrames) RequestFrame(fn func()) {
	m.queue = append(m.queue, fn)
}

// Tick runs every queued callback and reports how many ran.
func (m *ManualFrames) Tick() int {
	queue := m.queue
	m.queue = nil
	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// Len returns the number of queued callbacks.
func (m *ManualFrames) Len() int {
	return len(m.queue)
}
