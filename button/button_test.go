package button

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/trip"
)

type movingPoint struct {
	pos     mat4.Vec3
	tracked bool
}

func (m *movingPoint) WorldPosition() (mat4.Vec3, bool) { return m.pos, m.tracked }

type mockIndicator struct {
	scales  []float64
	visible bool
}

func (m *mockIndicator) SetScale(s float64) { m.scales = append(m.scales, s) }
func (m *mockIndicator) SetVisible(v bool) { m.visible = v }
func (m *mockIndicator) last() float64 { return m.scales[len(m.scales)-1] }

func setup() (*frame.Scheduler, *frame.ManualClock) {
	return frame.NewScheduler(), frame.NewManualClock(time.Unix(1_700_000_000, 0))
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestEase(t *testing.T) {
	assert.Equal(t, 0.0, Ease(-1))
	assert.Equal(t, 0.0, Ease(0))
	assert.InDelta(t, 0.5, Ease(0.5), 1e-12)
	assert.Equal(t, 1.0, Ease(1))
	assert.Equal(t, 1.0, Ease(3))
}

func TestConfig_Proximity(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.0, cfg.Proximity(1.0))
	assert.Equal(t, 1.0, cfg.Proximity(0.15))
	assert.InDelta(t, 0.5, cfg.Proximity(0.10), 1e-9)
	assert.Equal(t, 0.0, cfg.Proximity(0.05))
	assert.Equal(t, 0.0, cfg.Proximity(0.0))
}

func TestTrigger_PressedExactlyOnceAtAcceptThreshold(t *testing.T) {
	s, clock := setup()
	hand := &movingPoint{pos: mat4.Vec3{X: 1.0}, tracked: true}
	ind := &mockIndicator{}
	trig := New(s, clock, pose.Point{}, []pose.Locator{hand}, DefaultConfig(), ind)

	pressedAt := -1
	for i := 0; i <= 100; i++ {
		d := float64(100-i) / 100
		hand.pos = mat4.Vec3{X: d}
		frame.Step(s, clock, 1, 10*time.Millisecond)

		if d >= 0.05 {
			require.False(t, closed(trig.Pressed()), "pressed early at distance %v", d)
			continue
		}
		if pressedAt < 0 {
			require.True(t, closed(trig.Pressed()), "not pressed at distance %v", d)
			pressedAt = i
			assert.Equal(t, clock.Now(), trig.TimePressed())
		}
	}
	assert.Equal(t, 96, pressedAt)
}

func TestTrigger_ResolvesAfterShrink(t *testing.T) {
	s, clock := setup()
	hand := &movingPoint{pos: mat4.Vec3{Z: 0.01}, tracked: true}
	ind := &mockIndicator{}
	trig := New(s, clock, pose.Point{}, []pose.Locator{hand}, DefaultConfig(), ind)

	frame.Step(s, clock, 1, 10*time.Millisecond)
	require.True(t, closed(trig.Pressed()))
	assert.Equal(t, Pressed, trig.State())
	assert.False(t, closed(trig.Done()))

	frame.Step(s, clock, 1, 100*time.Millisecond)
	assert.False(t, closed(trig.Done()))
	assert.Less(t, ind.last(), 1.0)

	frame.Step(s, clock, 1, 100*time.Millisecond)
	require.True(t, closed(trig.Done()))
	assert.NoError(t, trig.Err())
	assert.Equal(t, Resolved, trig.State())
	assert.Equal(t, 0.0, ind.last())
	assert.False(t, ind.visible)
	assert.Equal(t, 0, s.Len())
}

func TestTrigger_ProximityScale(t *testing.T) {
	s, clock := setup()
	hand := &movingPoint{pos: mat4.Vec3{Y: 0.10}, tracked: true}
	ind := &mockIndicator{}
	trig := New(s, clock, pose.Point{}, []pose.Locator{hand}, DefaultConfig(), ind)

	frame.Step(s, clock, 1, 10*time.Millisecond)
	assert.Equal(t, Armed, trig.State())
	assert.InDelta(t, 0.5, ind.last(), 1e-9)
	assert.InDelta(t, 0.10, trig.Distance(), 1e-12)
}

func TestTrigger_NearestOfSeveralPoints(t *testing.T) {
	s, clock := setup()
	far := &movingPoint{pos: mat4.Vec3{X: 2}, tracked: true}
	lost := &movingPoint{tracked: false}
	near := &movingPoint{pos: mat4.Vec3{X: 0.3}, tracked: true}
	trig := New(s, clock, pose.Point{}, []pose.Locator{far, lost, near}, DefaultConfig(), nil)

	frame.Step(s, clock, 1, 10*time.Millisecond)
	assert.InDelta(t, 0.3, trig.Distance(), 1e-12)
}

func TestTrigger_UntrackedNeverPresses(t *testing.T) {
	s, clock := setup()
	hand := &movingPoint{tracked: false}
	trig := New(s, clock, pose.Point{}, []pose.Locator{hand}, DefaultConfig(), nil)

	frame.Step(s, clock, 10, 10*time.Millisecond)
	assert.False(t, closed(trig.Pressed()))
	assert.True(t, math.IsInf(trig.Distance(), 1))
}

func TestTrigger_CancelRejectsAfterShrink(t *testing.T) {
	s, clock := setup()
	hand := &movingPoint{pos: mat4.Vec3{X: 1}, tracked: true}
	trig := New(s, clock, pose.Point{}, []pose.Locator{hand}, DefaultConfig(), nil)

	frame.Step(s, clock, 1, 10*time.Millisecond)
	trig.Cancel()
	frame.Step(s, clock, 1, 10*time.Millisecond)
	assert.Equal(t, Cancelled, trig.State())
	assert.False(t, closed(trig.Done()))

	hand.pos = mat4.Vec3{}
	frame.Step(s, clock, 3, 100*time.Millisecond)
	require.True(t, closed(trig.Done()))
	assert.False(t, closed(trig.Pressed()), "a cancelled trigger never reports a press")
	assert.ErrorIs(t, trig.Err(), trip.ErrCancelled)
	assert.Equal(t, 0, s.Len())
}

func TestTrigger_AbortIsImmediate(t *testing.T) {
	s, clock := setup()
	ind := &mockIndicator{}
	trig := New(s, clock, pose.Point{}, nil, DefaultConfig(), ind)
	frame.Step(s, clock, 1, 10*time.Millisecond)

	trig.Abort()
	require.True(t, closed(trig.Done()))
	assert.ErrorIs(t, trig.Err(), trip.ErrCancelled)
	assert.False(t, ind.visible)
	assert.Equal(t, 0, s.Len())

	trig.Abort()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "armed", Armed.String())
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "unknown", State(42).String())
}
