package frame

import (
	"context"
	"time"
)

// Loop ticks s every interval until ctx is done, standing in for a
// headset's render loop.
func Loop(ctx context.Context, s *Scheduler, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Interval converts a frame rate into a tick interval.
func Interval(fps int) time.Duration {
	if fps <= 0 {
		fps = 72
	}
	return time.Second / time.Duration(fps)
}

// Step advances clock by dt and ticks s, n times.
func Step(s *Scheduler, clock *ManualClock, n int, dt time.Duration) {
	for i := 0; i < n; i++ {
		clock.Advance(dt)
		s.Tick()
	}
}
