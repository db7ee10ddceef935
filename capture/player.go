package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teranos/handcap/codec"
	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/interp"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

// Dummy is a display skeleton that can be shown and hidden.
type Dummy interface {
	pose.Skeleton
	SetVisible(bool)
}

// Player replays snapshots onto a pair of dummies in wall-clock time.
type Player struct {
	Scheduler *frame.Scheduler
	Clock     frame.Clock
	Logger    *slog.Logger
}

// Playback is one in-flight replay.
type Playback struct {
	handle frame.Handle
	done   chan struct{}
	once   sync.Once
	err    error
	cursor int
	mu     sync.Mutex
}

func (p *Playback) finish(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

// Done is closed when the last frame has been applied or playback failed.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Err returns why playback stopped, nil after a complete replay.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Cursor returns the index of the frame playback is currently blending from.
func (p *Playback) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Cancel detaches playback from the scheduler.
func (p *Playback) Cancel() {
	p.handle.Cancel()
	p.finish(trip.NewStumble(trip.Cancelled, "playback cancelled", nil))
}

// Wait blocks until playback finishes or ctx is done.
func (p *Playback) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		p.Cancel()
		return context.Cause(ctx)
	}
}

// Play replays frames and waits for completion. See Begin.
func (pl *Player) Play(ctx context.Context, frames []record.Value, left, right Dummy) error {
	pb, err := pl.Begin(frames, left, right)
	if err != nil {
		return err
	}
	return pb.Wait(ctx)
}

// PlayRecording unflattens rec and replays it.
func (pl *Player) PlayRecording(ctx context.Context, rec *codec.Recording, left, right Dummy) error {
	frames, err := rec.Frames()
	if err != nil {
		return err
	}
	return pl.Play(ctx, frames, left, right)
}

// Begin shows both dummies and registers the playback callback.
//
// On each tick the cursor advances while the next frame's offset from the
// first frame is at or before the elapsed wall time. The cursor never moves
// backwards. On the last frame the pose is applied as is, the dummies are
// hidden and playback completes; otherwise the pose is blended between the
// cursor frame and the next one.
func (pl *Player) Begin(frames []record.Value, left, right Dummy) (*Playback, error) {
	if len(frames) == 0 {
		return nil, trip.Schemaf("playback needs at least one frame")
	}
	offsets := make([]float64, len(frames))
	for i, f := range frames {
		ts, err := pose.TimeOf(f)
		if err != nil {
			return nil, err
		}
		offsets[i] = ts
	}
	base := offsets[0]
	for i := range offsets {
		offsets[i] -= base
	}

	clock := pl.Clock
	if clock == nil {
		clock = frame.SystemClock{}
	}
	logger := pl.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pb := &Playback{done: make(chan struct{})}
	start := clock.Now()
	setVisible(left, right, true)

	pb.handle = pl.Scheduler.Register(func(destroy func()) {
		elapsed := float64(clock.Now().Sub(start).Microseconds()) / 1000

		pb.mu.Lock()
		cursor := pb.cursor
		for cursor+1 < len(frames) && offsets[cursor+1] <= elapsed {
			cursor++
		}
		pb.cursor = cursor
		pb.mu.Unlock()

		var current record.Value
		last := cursor == len(frames)-1
		if last {
			current = frames[cursor]
		} else {
			t := (elapsed - offsets[cursor]) / (offsets[cursor+1] - offsets[cursor])
			blended, err := interp.Interpolate(frames[cursor], frames[cursor+1], t)
			if err != nil {
				destroy()
				setVisible(left, right, false)
				pb.finish(err)
				return
			}
			current = blended
		}

		if err := applyHands(current, left, right); err != nil {
			destroy()
			setVisible(left, right, false)
			pb.finish(err)
			return
		}

		if last {
			destroy()
			setVisible(left, right, false)
			logger.Debug("playback complete", "frames", len(frames))
			pb.finish(nil)
		}
	})
	return pb, nil
}

func applyHands(snapshot record.Value, left, right Dummy) error {
	if left != nil {
		if joints, ok := snapshot.Get(pose.LeftHandKey); ok {
			if err := pose.ApplySerializedJoints(left, joints); err != nil {
				return err
			}
		}
	}
	if right != nil {
		if joints, ok := snapshot.Get(pose.RightHandKey); ok {
			if err := pose.ApplySerializedJoints(right, joints); err != nil {
				return err
			}
		}
	}
	return nil
}

func setVisible(left, right Dummy, visible bool) {
	if left != nil {
		left.SetVisible(visible)
	}
	if right != nil {
		right.SetVisible(visible)
	}
}
