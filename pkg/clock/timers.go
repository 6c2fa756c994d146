package clock

import "time"

// Timers is a set of keyed, individually cancelable one-shot timers.
// Scheduling a key that is already pending cancels the previous timer first,
// so a key never fires twice for one schedule.
//
// Timers is not safe for concurrent use. The owner serializes calls and
// provides a dispatch function that runs fired callbacks inside that same
// serialization; an entry canceled before its callback is dispatched is
// skipped.
type Timers struct {
	clock    Clock
	dispatch func(func())
	entries  map[string]*timerEntry
	seq      uint64
}

type timerEntry struct {
	seq   uint64
	timer Timer
}

// NewTimers creates an empty timer set. A nil dispatch runs callbacks
// directly on the clock's goroutine.
func NewTimers(c Clock, dispatch func(func())) *Timers {
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	return &Timers{
		clock:    c,
		dispatch: dispatch,
		entries:  make(map[string]*timerEntry),
	}
}

// Schedule arms fn to run after delay under key.
func (t *Timers) Schedule(key string, delay time.Duration, fn func()) {
	t.Cancel(key)

	t.seq++
	seq := t.seq
	entry := &timerEntry{seq: seq}
	t.entries[key] = entry
	entry.timer = t.clock.AfterFunc(delay, func() {
		t.dispatch(func() {
			current, ok := t.entries[key]
			if !ok || current.seq != seq {
				return
			}
			delete(t.entries, key)
			fn()
		})
	})
}

// Cancel stops the timer for key. It reports whether a timer was pending.
func (t *Timers) Cancel(key string) bool {
	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	delete(t.entries, key)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return true
}

// CancelAll stops every pending timer.
func (t *Timers) CancelAll() {
	for key := range t.entries {
		t.Cancel(key)
	}
}

// Pending reports whether key has an armed timer.
func (t *Timers) Pending(key string) bool {
	_, ok := t.entries[key]
	return ok
}

// Len returns the number of armed timers.
func (t *Timers) Len() int {
	return len(t.entries)
}
