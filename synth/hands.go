// Package synth fakes the headset runtime: tracked hands that move on their
// own, a head transform, immersive sessions, clicks and asset loading. The
// simulate command and the flow tests run the capture flow against it.
package synth

import (
	"math"
	"sync"
	"time"

	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/pose"
)

// Hand is a procedurally animated tracked hand. Joint positions are laid out
// along five fingers from the hand origin and curl slowly over time.
type Hand struct {
	side  float64 // -1 for left, +1 for right
	clock frame.Clock
	epoch time.Time

	mu      sync.Mutex
	origin  mat4.Vec3
	dropped map[string]bool
}

// NewHand creates a hand. left selects the mirrored layout.
func NewHand(left bool, clock frame.Clock) *Hand {
	if clock == nil {
		clock = frame.SystemClock{}
	}
	side := 1.0
	if left {
		side = -1
	}
	return &Hand{
		side:    side,
		clock:   clock,
		epoch:   clock.Now(),
		origin:  mat4.Vec3{X: 0.2 * side, Y: 1.2, Z: -0.3},
		dropped: map[string]bool{},
	}
}

// JointNames implements pose.HandSource.
func (h *Hand) JointNames() []string { return pose.XRJointNames }

// JointMatrix implements pose.HandSource.
func (h *Hand) JointMatrix(name string) (mat4.Matrix, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dropped[name] {
		return mat4.Matrix{}, false
	}
	off, ok := jointOffset(name, h.side, h.clock.Now().Sub(h.epoch).Seconds())
	if !ok {
		return mat4.Matrix{}, false
	}
	return mat4.Translation(h.origin.Add(off)), true
}

// Origin returns the wrist position.
func (h *Hand) Origin() mat4.Vec3 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.origin
}

// SetOrigin moves the wrist.
func (h *Hand) SetOrigin(v mat4.Vec3) {
	h.mu.Lock()
	h.origin = v
	h.mu.Unlock()
}

// Drop makes a joint untracked until Restore.
func (h *Hand) Drop(joint string) {
	h.mu.Lock()
	h.dropped[joint] = true
	h.mu.Unlock()
}

// Restore makes every joint tracked again.
func (h *Hand) Restore() {
	h.mu.Lock()
	h.dropped = map[string]bool{}
	h.mu.Unlock()
}

var fingers = []string{"thumb", "index-finger", "middle-finger", "ring-finger", "pinky-finger"}

var segments = map[string][]string{
	"thumb":         {"metacarpal", "phalanx-proximal", "phalanx-distal", "tip"},
	"index-finger":  {"metacarpal", "phalanx-proximal", "phalanx-intermediate", "phalanx-distal", "tip"},
	"middle-finger": {"metacarpal", "phalanx-proximal", "phalanx-intermediate", "phalanx-distal", "tip"},
	"ring-finger":   {"metacarpal", "phalanx-proximal", "phalanx-intermediate", "phalanx-distal", "tip"},
	"pinky-finger":  {"metacarpal", "phalanx-proximal", "phalanx-intermediate", "phalanx-distal", "tip"},
}

// jointOffset places a joint relative to the wrist at time t seconds.
func jointOffset(name string, side, t float64) (mat4.Vec3, bool) {
	if name == pose.Wrist {
		return mat4.Vec3{}, true
	}
	for fi, finger := range fingers {
		for si, seg := range segments[finger] {
			if name != finger+"-"+seg {
				continue
			}
			curl := 0.5 + 0.5*math.Sin(t*2+float64(fi))
			reach := 0.03 * float64(si+1)
			return mat4.Vec3{
				X: side * (float64(fi) - 2) * 0.02,
				Y: -reach * curl * 0.5,
				Z: -reach * (1 - 0.3*curl),
			}, true
		}
	}
	return mat4.Vec3{}, false
}

// TipOffset returns where the index fingertip currently sits relative to
// the wrist.
func (h *Hand) TipOffset() mat4.Vec3 {
	off, _ := jointOffset("index-finger-tip", h.side, h.clock.Now().Sub(h.epoch).Seconds())
	return off
}

// Hands is a pair of synthetic hands whose tracking can be switched off.
type Hands struct {
	left, right *Hand

	mu      sync.Mutex
	tracked bool
}

// NewHands creates a tracked pair.
func NewHands(clock frame.Clock) *Hands {
	return &Hands{left: NewHand(true, clock), right: NewHand(false, clock), tracked: true}
}

// Left implements pose.Hands.
func (h *Hands) Left() pose.HandSource {
	if !h.Tracked() {
		return nil
	}
	return h.left
}

// Right implements pose.Hands.
func (h *Hands) Right() pose.HandSource {
	if !h.Tracked() {
		return nil
	}
	return h.right
}

// LeftHand returns the left hand even while untracked.
func (h *Hands) LeftHand() *Hand { return h.left }

// RightHand returns the right hand even while untracked.
func (h *Hands) RightHand() *Hand { return h.right }

// SetTracked switches tracking for both hands.
func (h *Hands) SetTracked(tracked bool) {
	h.mu.Lock()
	h.tracked = tracked
	h.mu.Unlock()
}

// Tracked reports whether tracking is on.
func (h *Hands) Tracked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracked
}

// Head is a fixed standing head pose.
type Head struct {
	mu sync.Mutex
	m  mat4.Matrix
}

// NewHead places the head at standing eye height.
func NewHead() *Head {
	return &Head{m: mat4.Translation(mat4.Vec3{Y: 1.6})}
}

// Matrix implements pose.Transform.
func (h *Head) Matrix() mat4.Matrix {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.m
}

// Set replaces the head transform.
func (h *Head) Set(m mat4.Matrix) {
	h.mu.Lock()
	h.m = m
	h.mu.Unlock()
}

// Reach moves hand toward target every frame at speed metres per second,
// aiming the index fingertip at it.
func Reach(s *frame.Scheduler, clock frame.Clock, hand *Hand, target pose.Locator, speed float64) frame.Handle {
	if clock == nil {
		clock = frame.SystemClock{}
	}
	last := clock.Now()
	return s.Register(func(func()) {
		now := clock.Now()
		dt := now.Sub(last).Seconds()
		last = now

		goal, ok := target.WorldPosition()
		if !ok {
			return
		}
		want := goal.Sub(hand.TipOffset())
		cur := hand.Origin()
		delta := want.Sub(cur)
		dist := delta.Length()
		step := speed * dt
		if dist <= step || dist == 0 {
			hand.SetOrigin(want)
			return
		}
		hand.SetOrigin(cur.Add(delta.Scale(step / dist)))
	})
}
