package frame

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsInRegistrationOrder(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.Register(func(func()) { order = append(order, "a") })
	s.Register(func(func()) { order = append(order, "b") })
	s.Register(func(func()) { order = append(order, "c") })

	s.Tick()
	s.Tick()

	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, order)
	assert.Equal(t, uint64(2), s.Ticks())
}

func TestScheduler_DestroyIsDeferredAndFinal(t *testing.T) {
	s := NewScheduler()
	var a, b int
	s.Register(func(destroy func()) {
		a++
		destroy()
	})
	s.Register(func(func()) { b++ })

	s.Tick()
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b, "destroying one callback must not skip the next")
	assert.Equal(t, 1, s.Len())

	s.Tick()
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestScheduler_CancelTakesEffectWithinTick(t *testing.T) {
	s := NewScheduler()
	var victimRuns int
	var victim Handle
	s.Register(func(func()) { victim.Cancel() })
	victim = s.Register(func(func()) { victimRuns++ })

	s.Tick()
	assert.Equal(t, 0, victimRuns)
	assert.False(t, victim.Active())
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_RegisterDuringTickRunsNextFrame(t *testing.T) {
	s := NewScheduler()
	var late int
	s.Register(func(destroy func()) {
		s.Register(func(func()) { late++ })
		destroy()
	})

	s.Tick()
	assert.Equal(t, 0, late)
	s.Tick()
	assert.Equal(t, 1, late)
}

func TestHandle_ZeroValue(t *testing.T) {
	var h Handle
	h.Cancel()
	assert.False(t, h.Active())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	s := NewScheduler()

	var seen []time.Duration
	s.Register(func(func()) { seen = append(seen, c.Now().Sub(start)) })
	Step(s, c, 3, 200*time.Millisecond)

	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond, 600 * time.Millisecond}, seen)
}

func TestLoop_StopsWithCause(t *testing.T) {
	s := NewScheduler()
	var n atomic.Int32
	s.Register(func(func()) { n.Add(1) })

	stop := errors.New("session over")
	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan error, 1)
	go func() { done <- Loop(ctx, s, time.Millisecond) }()

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	cancel(stop)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, stop)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestInterval(t *testing.T) {
	assert.Equal(t, time.Second/90, Interval(90))
	assert.Equal(t, time.Second/72, Interval(0))
}
