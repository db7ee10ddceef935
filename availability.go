package handcap

import (
	"sync"

	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/pose"
)

// Availability polls the tracked hands once per frame. Hand tracking is
// available while both hands expose at least one joint.
type Availability struct {
	hands  pose.Hands
	handle frame.Handle

	mu        sync.Mutex
	available bool
	changed   chan struct{}
}

// WatchHands registers an availability poll with s.
func WatchHands(s *frame.Scheduler, hands pose.Hands) *Availability {
	a := &Availability{hands: hands, changed: make(chan struct{})}
	a.handle = s.Register(func(func()) { a.poll() })
	return a
}

func (a *Availability) poll() {
	now := a.hands != nil && hasJoints(a.hands.Left()) && hasJoints(a.hands.Right())

	a.mu.Lock()
	defer a.mu.Unlock()
	if now == a.available {
		return
	}
	a.available = now
	close(a.changed)
	a.changed = make(chan struct{})
}

func hasJoints(h pose.HandSource) bool {
	return h != nil && len(h.JointNames()) > 0
}

// Snapshot returns the current availability and a channel that is closed on
// the next change.
func (a *Availability) Snapshot() (bool, <-chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available, a.changed
}

// Available reports the last polled availability.
func (a *Availability) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available
}

// Stop deregisters the poll.
func (a *Availability) Stop() {
	a.handle.Cancel()
}
