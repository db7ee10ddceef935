package console_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/handcap"
	"github.com/teranos/handcap/console"
	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/synth"
)

type okUploader struct {
	mu    sync.Mutex
	calls int
}

func (u *okUploader) Post(ctx context.Context, url string, payload []byte, onProgress func(float64)) error {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	onProgress(1)
	return nil
}

func TestStage_DrivesCaptureFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := frame.NewScheduler()
	clock := frame.NewManualClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	head := synth.NewHead()
	hands := synth.NewHands(clock)
	cfg := handcap.DefaultDirectorConfig()
	cfg.Duration = 200 * time.Millisecond
	synth.Reach(sched, clock, hands.RightHand(), pose.Offset{Base: head, Delta: cfg.TriggerOffset}, 2.0)

	surface := console.NewSurface()
	uploader := &okUploader{}
	app := &handcap.App{
		Scheduler: sched,
		Clock:     clock,
		Devices:   synth.NewDevices(),
		Hands:     hands,
		Head:      head,
		Uploader:  uploader,
		Assets:    &synth.Preloader{},
		Display:   surface,
		Clicks:    surface,
	}
	d := handcap.NewDirector(app, cfg)
	defer d.Close()

	film, err := console.NewFilm(t.TempDir(), surface, console.DefaultCameraConfig())
	require.NoError(t, err)
	d.OnTransition(func(tr handcap.Transition) {
		surface.OnTransition(tr)
		film.OnTransition(tr)
	})

	stage := console.NewStage(t, surface).Start()

	done := make(chan error, 1)
	go func() {
		_, err := d.Cycle(ctx)
		done <- err
	}()

	stage.WaitForMode("awaiting_user_consent").
		WaitForText(handcap.TextClickToStart)

	// Frames only advance once the user is in.
	go func() {
		for ctx.Err() == nil {
			frame.Step(sched, clock, 1, 10*time.Millisecond)
			time.Sleep(50 * time.Microsecond)
		}
	}()

	stage.Click().
		WaitForMode("done").
		WaitForText(handcap.TextDone).
		WaitForCondition("success").
		AssertMode("done")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("cycle did not finish")
	}

	result := stage.Stop()
	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, 1, result.Clicks)
	assert.NotEmpty(t, result.Snapshots)
	assert.Equal(t, "initial", result.Snapshots[0].Reason)
	assert.Equal(t, 1, uploader.calls)

	stats := stage.SyncStats()
	assert.Positive(t, stats["processed"])
	assert.Zero(t, stats["out_of_order"])

	assert.Len(t, film.Shots(), len(d.Transitions()))
	assert.NoError(t, film.Err())
}

func TestStage_TimeoutIsReported(t *testing.T) {
	surface := console.NewSurface()
	cfg := console.DefaultStageConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.ReportErrors = false

	stage := console.NewStageWithConfig(t, surface, cfg).Start()
	stage.WaitForMode("recording")
	assert.True(t, stage.HasFailed())

	trips := stage.Trips()
	require.Len(t, trips, 1)
	assert.Equal(t, "TIMEOUT", trips[0].Type)

	result := stage.Stop()
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "mode=recording")
}

func TestStage_KeysAndAssertions(t *testing.T) {
	surface := console.NewSurface()
	cfg := console.DefaultStageConfig()
	cfg.ReportErrors = false
	stage := console.NewStageWithConfig(t, surface, cfg).Start()

	surface.SetStatus(handcap.TextUploadError, handcap.Attention)
	stage.WaitForCondition("attention").
		AssertViewContains(handcap.TextUploadError).
		PressKey("enter")

	require.NoError(t, surface.Click(context.Background()))
	assert.False(t, stage.HasFailed())

	stage.AssertViewContains("not on screen")
	assert.True(t, stage.HasFailed())

	result := stage.Stop()
	assert.Equal(t, 1, result.Clicks)
}
