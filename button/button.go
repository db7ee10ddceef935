// Package button implements the proximity trigger that gates the start of a
// capture: a sphere that grows toward the hand as it approaches and shrinks
// away once touched.
package button

import (
	"math"
	"sync"
	"time"

	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/trip"
)

// State is the trigger lifecycle.
type State int

const (
	Idle State = iota
	Armed
	Pressed
	Resolved
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Pressed:
		return "pressed"
	case Resolved:
		return "resolved"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Config holds the trigger thresholds in metres and the shrink-out duration.
type Config struct {
	Start  float64
	Accept float64
	Shrink time.Duration
}

// DefaultConfig returns the thresholds used by the capture flow.
func DefaultConfig() Config {
	return Config{
		Start:  0.15,
		Accept: 0.05,
		Shrink: 200 * time.Millisecond,
	}
}

// Indicator renders the trigger. Scale is the product of the proximity factor
// and the shrink factor, both in [0,1].
type Indicator interface {
	SetScale(scale float64)
	SetVisible(visible bool)
}

// Ease is the cosine ease from 0 at s<=0 to 1 at s>=1.
func Ease(s float64) float64 {
	switch {
	case s <= 0:
		return 0
	case s >= 1:
		return 1
	}
	return (1 - math.Cos(math.Pi*s)) / 2
}

// Proximity maps a distance to the visual scale factor: 1 at or beyond the
// start threshold, 0 at or inside the accept threshold, cosine eased between.
func (c Config) Proximity(distance float64) float64 {
	if c.Start <= c.Accept {
		if distance <= c.Accept {
			return 0
		}
		return 1
	}
	return Ease((distance - c.Accept) / (c.Start - c.Accept))
}

// Trigger is one live button registered with a scheduler.
type Trigger struct {
	cfg       Config
	clock     frame.Clock
	position  pose.Locator
	monitored []pose.Locator
	indicator Indicator

	handle   frame.Handle
	pressed  chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	mu          sync.Mutex
	state       State
	cancelled   bool
	timePressed time.Time
	shrinkStart time.Time
	distance    float64
	scale       float64
	err         error
}

// New registers a trigger at position that watches the monitored points.
// The trigger is armed from the first tick on.
func New(s *frame.Scheduler, clock frame.Clock, position pose.Locator, monitored []pose.Locator, cfg Config, indicator Indicator) *Trigger {
	if clock == nil {
		clock = frame.SystemClock{}
	}
	t := &Trigger{
		cfg:       cfg,
		clock:     clock,
		position:  position,
		monitored: monitored,
		indicator: indicator,
		pressed:   make(chan struct{}),
		done:      make(chan struct{}),
		distance:  math.Inf(1),
		scale:     1,
	}
	if indicator != nil {
		indicator.SetVisible(true)
		indicator.SetScale(1)
	}
	t.handle = s.Register(t.tick)
	return t
}

// nearest returns the smallest distance from the trigger to any tracked
// monitored point, or +Inf when nothing is tracked.
func (t *Trigger) nearest() float64 {
	best := math.Inf(1)
	origin, ok := t.position.WorldPosition()
	if !ok {
		return best
	}
	for _, m := range t.monitored {
		p, ok := m.WorldPosition()
		if !ok {
			continue
		}
		if d := origin.Distance(p); d < best {
			best = d
		}
	}
	return best
}

func (t *Trigger) tick(destroy func()) {
	now := t.clock.Now()

	t.mu.Lock()
	var justPressed, finished bool
	switch t.state {
	case Idle, Armed:
		t.state = Armed
		t.distance = t.nearest()
		if t.cancelled {
			t.state = Cancelled
			t.shrinkStart = now
		} else if t.distance < t.cfg.Accept {
			t.state = Pressed
			t.timePressed = now
			t.shrinkStart = now
			justPressed = true
		} else {
			t.scale = t.cfg.Proximity(t.distance)
		}
	}

	if t.state == Pressed || t.state == Cancelled {
		shrink := 1 - Ease(progress(now.Sub(t.shrinkStart), t.cfg.Shrink))
		scale := t.scale * shrink
		if shrink <= 0 {
			scale = 0
			finished = true
			if t.state == Pressed {
				t.state = Resolved
			} else {
				t.err = trip.NewStumble(trip.Cancelled, "trigger cancelled before press", nil)
			}
		}
		t.applyScale(scale)
	} else {
		t.applyScale(t.scale)
	}
	t.mu.Unlock()

	if justPressed {
		close(t.pressed)
	}
	if finished {
		destroy()
		t.finish()
	}
}

func (t *Trigger) finish() {
	t.doneOnce.Do(func() {
		if t.indicator != nil {
			t.indicator.SetVisible(false)
		}
		close(t.done)
	})
}

func (t *Trigger) applyScale(scale float64) {
	if t.indicator != nil {
		t.indicator.SetScale(scale)
	}
}

func progress(elapsed, total time.Duration) float64 {
	if total <= 0 {
		return 1
	}
	return float64(elapsed) / float64(total)
}

// Pressed is closed exactly once, on the tick the nearest monitored point
// first comes closer than the accept threshold.
func (t *Trigger) Pressed() <-chan struct{} { return t.pressed }

// Done is closed when the shrink-out finishes or the trigger is aborted.
func (t *Trigger) Done() <-chan struct{} { return t.done }

// Err is nil after a press and ErrCancelled after Cancel or Abort. Only
// meaningful once Done is closed.
func (t *Trigger) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// State returns the current lifecycle state.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Distance returns the last sampled nearest distance.
func (t *Trigger) Distance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.distance
}

// TimePressed returns when the trigger was pressed, or the zero time.
func (t *Trigger) TimePressed() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timePressed
}

// Cancel forces the shrink-out path. An unpressed trigger then finishes with
// ErrCancelled; a trigger already pressed still resolves.
func (t *Trigger) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

// Abort deregisters the trigger immediately without animating.
func (t *Trigger) Abort() {
	t.handle.Cancel()
	t.mu.Lock()
	if t.state == Resolved || t.err != nil {
		t.mu.Unlock()
		return
	}
	t.state = Cancelled
	t.err = trip.NewStumble(trip.Cancelled, "trigger aborted", nil)
	t.mu.Unlock()
	t.finish()
}

// Position returns the trigger's world position.
func (t *Trigger) Position() (mat4.Vec3, bool) {
	return t.position.WorldPosition()
}
