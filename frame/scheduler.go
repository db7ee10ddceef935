// Package frame runs per-frame callbacks in registration order.
//
// Every recurring piece of capture work (recording ticks, playback ticks,
// trigger proximity checks, hand availability checks) registers a Callback
// with one Scheduler. A callback removes itself by calling the destroy
// function it is handed; removal takes effect after the current tick.
package frame

import (
	"sync"
	"time"
)

// Callback is invoked once per frame. Calling destroy deregisters it; the
// current tick still completes for every other callback.
type Callback func(destroy func())

type entry struct {
	id      uint64
	fn      Callback
	removed bool
}

// Scheduler owns the ordered set of per-frame callbacks. Register, Cancel and
// Tick may be called from any goroutine; callbacks always run on the goroutine
// that calls Tick.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	nextID  uint64
	ticks   uint64
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Handle identifies a registered callback.
type Handle struct {
	s *Scheduler
	e *entry
}

// Register appends fn to the callback set. It first runs on the next Tick.
func (s *Scheduler) Register(fn Callback) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e := &entry{id: s.nextID, fn: fn}
	s.entries = append(s.entries, e)
	return Handle{s: s, e: e}
}

// Cancel deregisters the callback immediately: it will not be invoked again,
// even later in a tick that is already running.
func (h Handle) Cancel() {
	if h.s == nil {
		return
	}
	h.s.mu.Lock()
	h.e.removed = true
	h.s.mu.Unlock()
}

// Active reports whether the callback is still registered.
func (h Handle) Active() bool {
	if h.s == nil {
		return false
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return !h.e.removed
}

// Tick runs every registered callback once, in registration order. It
// iterates a snapshot so callbacks may register or destroy freely; removed
// entries are filtered out after the loop.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	snapshot := make([]*entry, len(s.entries))
	copy(snapshot, s.entries)
	s.ticks++
	s.mu.Unlock()

	for _, e := range snapshot {
		s.mu.Lock()
		skip := e.removed
		s.mu.Unlock()
		if skip {
			continue
		}
		e.fn(func() {
			s.mu.Lock()
			e.removed = true
			s.mu.Unlock()
		})
	}

	s.mu.Lock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.removed {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
	s.mu.Unlock()
}

// Len returns the number of live callbacks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.removed {
			n++
		}
	}
	return n
}

// Ticks returns how many frames have run.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Clock supplies the wall time callbacks measure against.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a ManualClock at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
