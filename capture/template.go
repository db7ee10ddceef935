package capture

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/record"
)

// Gesture id keys added to each template frame.
const (
	LeftGestureKey  = "left_gesture_id"
	RightGestureKey = "right_gesture_id"
)

// Template is a wrist-only recording segmented into numbered gestures,
// captured while a backing track plays.
type Template struct {
	MusicURL string         `json:"music_url"`
	Data     []record.Value `json:"data"`
}

// TemplateRecorder captures wrist snapshots every frame until stopped.
type TemplateRecorder struct {
	Scheduler *frame.Scheduler
	Clock     frame.Clock
	Hands     pose.Hands
	Head      pose.Transform
}

// TemplateTake is one in-flight template capture.
type TemplateTake struct {
	handle frame.Handle
	done   chan struct{}
	once   sync.Once

	mu         sync.Mutex
	leftMarks  int
	rightMarks int
	stopped    bool
	result     *Template
}

// MarkLeft starts a new left-hand gesture from the next frame on.
func (t *TemplateTake) MarkLeft() {
	t.mu.Lock()
	t.leftMarks++
	t.mu.Unlock()
}

// MarkRight starts a new right-hand gesture from the next frame on.
func (t *TemplateTake) MarkRight() {
	t.mu.Lock()
	t.rightMarks++
	t.mu.Unlock()
}

// Stop ends the capture after the next frame, such as when the track ends.
func (t *TemplateTake) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Done is closed once the template is complete.
func (t *TemplateTake) Done() <-chan struct{} { return t.done }

// Wait blocks for the template. On ctx the capture is detached and the
// frames collected so far are discarded.
func (t *TemplateTake) Wait(ctx context.Context) (*Template, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, nil
	case <-ctx.Done():
		t.handle.Cancel()
		return nil, context.Cause(ctx)
	}
}

// Begin registers the template callback. Marks made before the first frame
// are ignored.
func (r *TemplateRecorder) Begin(musicURL string) *TemplateTake {
	clock := r.Clock
	if clock == nil {
		clock = frame.SystemClock{}
	}
	take := &TemplateTake{done: make(chan struct{})}
	tpl := &Template{MusicURL: musicURL}
	first := true
	var leftID, rightID, leftSeen, rightSeen int

	take.handle = r.Scheduler.Register(func(destroy func()) {
		take.mu.Lock()
		if first {
			leftSeen, rightSeen = take.leftMarks, take.rightMarks
			first = false
		}
		leftID += take.leftMarks - leftSeen
		rightID += take.rightMarks - rightSeen
		leftSeen, rightSeen = take.leftMarks, take.rightMarks
		stopped := take.stopped
		take.mu.Unlock()

		var left, right pose.HandSource
		if r.Hands != nil {
			left, right = r.Hands.Left(), r.Hands.Right()
		}
		snap := pose.WristSnapshot(left, right, clock.Now().UnixMilli())
		snap.Set(pose.HeadKey, pose.SerializeTransform(r.Head))
		snap.Set(LeftGestureKey, record.Num(float64(leftID)))
		snap.Set(RightGestureKey, record.Num(float64(rightID)))
		tpl.Data = append(tpl.Data, snap)

		if stopped {
			destroy()
			take.once.Do(func() {
				take.mu.Lock()
				take.result = tpl
				take.mu.Unlock()
				close(take.done)
			})
		}
	})
	return take
}

// Echo records for duration and immediately replays the result onto the
// dummies, a quick self-check that capture and playback agree.
func Echo(ctx context.Context, rec *Recorder, pl *Player, duration time.Duration, left, right Dummy) error {
	recording, err := rec.Record(ctx, duration)
	if err != nil {
		return err
	}
	return pl.PlayRecording(ctx, recording, left, right)
}
