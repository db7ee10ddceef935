// Package capture records timestamped pose snapshots off the frame scheduler
// and plays them back onto display skeletons.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teranos/handcap/codec"
	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/trip"
)

// Recorder captures one snapshot per frame for a fixed duration.
type Recorder struct {
	Scheduler *frame.Scheduler
	Clock     frame.Clock
	Hands     pose.Hands
	Head      pose.Transform

	// Strict re-validates every frame against the descriptor derived from
	// the first one. Without it a diverging frame still fails in Flatten.
	Strict bool

	Logger *slog.Logger
}

// Take is one in-flight recording.
type Take struct {
	handle frame.Handle
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	result *codec.Recording
	err    error
}

func newTake() *Take {
	return &Take{done: make(chan struct{})}
}

func (t *Take) finish(rec *codec.Recording, err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.result, t.err = rec, err
		t.mu.Unlock()
		close(t.done)
	})
}

// Done is closed once the take has a result.
func (t *Take) Done() <-chan struct{} { return t.done }

// Result returns the finished recording or the error that stopped it.
// It is only meaningful after Done is closed.
func (t *Take) Result() (*codec.Recording, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Cancel detaches the take from the scheduler right away. The partial buffer
// is dropped and the result becomes ErrCancelled.
func (t *Take) Cancel() {
	t.handle.Cancel()
	t.finish(nil, trip.NewStumble(trip.Cancelled, "recording cancelled", nil))
}

// Wait blocks until the take finishes or ctx is done. On ctx the take is
// cancelled and the context's cause is returned.
func (t *Take) Wait(ctx context.Context) (*codec.Recording, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		t.Cancel()
		return nil, context.Cause(ctx)
	}
}

// Record runs a take to completion. See Begin.
func (r *Recorder) Record(ctx context.Context, duration time.Duration) (*codec.Recording, error) {
	return r.Begin(duration).Wait(ctx)
}

// Begin registers the recording callback and returns immediately. Elapsed
// time is measured from this call, not from the first frame. The descriptor
// is derived from the first captured frame; each frame including the first
// appends one row. The frame on which elapsed time reaches duration is the
// last one captured.
func (r *Recorder) Begin(duration time.Duration) *Take {
	clock := r.Clock
	if clock == nil {
		clock = frame.SystemClock{}
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	take := newTake()
	start := clock.Now()
	rec := &codec.Recording{}
	var trackedLeft, trackedRight bool

	take.handle = r.Scheduler.Register(func(destroy func()) {
		now := clock.Now()
		var left, right pose.HandSource
		if r.Hands != nil {
			left, right = r.Hands.Left(), r.Hands.Right()
		}

		// A hand that was tracked on the first frame and has no joints now is
		// a tracking loss, not a descriptor mismatch.
		if !rec.Descriptor.IsZero() && ((trackedLeft && !tracked(left)) || (trackedRight && !tracked(right))) {
			destroy()
			logger.Warn("hand tracking lost while recording", "frames", len(rec.FlattenedData))
			take.finish(nil, trip.NewStumble(trip.HandTrackingLost, "hand tracking lost while recording", trip.Context{
				"frames": len(rec.FlattenedData),
			}))
			return
		}

		snap := pose.Snapshot(left, right, r.Head, now.UnixMilli())

		if rec.Descriptor.IsZero() {
			trackedLeft, trackedRight = tracked(left), tracked(right)
			d, err := codec.CreateDescriptor(snap)
			if err != nil {
				destroy()
				take.finish(nil, err)
				return
			}
			rec.Descriptor = d
			logger.Debug("recording descriptor frozen", "leaves", d.Leaves())
		} else if r.Strict && !codec.Validate(snap, rec.Descriptor) {
			destroy()
			take.finish(nil, trip.Schemaf("frame %d does not match the recording descriptor", len(rec.FlattenedData)))
			return
		}

		row, err := codec.Flatten(snap, rec.Descriptor)
		if err != nil {
			destroy()
			take.finish(nil, err)
			return
		}
		rec.FlattenedData = append(rec.FlattenedData, row)

		if now.Sub(start) >= duration {
			destroy()
			logger.Info("recording complete",
				"frames", len(rec.FlattenedData),
				"elapsed", now.Sub(start))
			take.finish(rec, nil)
		}
	})
	return take
}

func tracked(h pose.HandSource) bool {
	return h != nil && len(h.JointNames()) > 0
}
