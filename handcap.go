// Package handcap runs the hand motion capture flow.
//
// A Director walks one capture cycle through asset loading, user consent,
// immersive session acquisition, hand tracking, the capture trigger, the
// recording itself and the upload. Session loss, hand tracking loss, a
// declined session request and a failed upload loop back to an earlier state;
// anything else stops the flow on an error screen.
//
// Basic usage:
//
//	app := &handcap.App{
//		Scheduler: frame.NewScheduler(),
//		Devices:   devices,
//		Hands:     hands,
//		Head:      head,
//		Uploader:  upload.NewClient(nil),
//		Display:   surface,
//		Clicks:    surface,
//	}
//	go frame.Loop(ctx, app.Scheduler, frame.Interval(72))
//
//	director := handcap.NewDirector(app, handcap.DefaultDirectorConfig())
//	if err := director.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package handcap

import (
	"context"
	"log/slog"

	"github.com/teranos/handcap/frame"
	"github.com/teranos/handcap/pose"
)

// Session is a live immersive session.
type Session interface {
	// Ended is closed when the session ends for any reason.
	Ended() <-chan struct{}
	// End ends the session. Ending twice is not an error.
	End() error
}

// DeviceSessions requests immersive sessions from the headset runtime. A
// refusal by the user must be reported as an error matching
// trip.ErrUserDeclined.
type DeviceSessions interface {
	RequestSession(ctx context.Context) (Session, error)
}

// Uploader posts an encoded recording. onProgress receives the fraction of
// the payload sent so far.
type Uploader interface {
	Post(ctx context.Context, url string, payload []byte, onProgress func(float64)) error
}

// Preloader loads one asset ahead of the first cycle.
type Preloader interface {
	Preload(ctx context.Context, asset string) error
}

// Tone colours the status surface.
type Tone int

const (
	Neutral   Tone = iota // loading
	Prompt                // waiting for the user
	Attention             // errors
	Success               // upload done
	Restart               // waiting for a restart click
)

func (t Tone) String() string {
	switch t {
	case Neutral:
		return "neutral"
	case Prompt:
		return "prompt"
	case Attention:
		return "attention"
	case Success:
		return "success"
	case Restart:
		return "restart"
	default:
		return "unknown"
	}
}

// Display holds the full-screen status text and the in-headset HUD line.
type Display interface {
	SetStatus(text string, tone Tone)
	SetHUD(text string)
}

// Clicks blocks until the user clicks anywhere.
type Clicks interface {
	Click(ctx context.Context) error
}

// App is the application context shared by every component of a capture
// session.
type App struct {
	Scheduler *frame.Scheduler
	Clock     frame.Clock
	Devices   DeviceSessions
	Hands     pose.Hands
	Head      pose.Transform
	Uploader  Uploader
	Assets    Preloader
	Display   Display
	Clicks    Clicks
	Logger    *slog.Logger
}

func (a *App) clock() frame.Clock {
	if a.Clock == nil {
		return frame.SystemClock{}
	}
	return a.Clock
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// State is a Director state.
type State int

const (
	Loading State = iota
	AwaitingUserConsent
	AwaitingDeviceSession
	AwaitingHandTracking
	AwaitingCaptureTrigger
	Recording
	UploadAttempt
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case AwaitingUserConsent:
		return "awaiting_user_consent"
	case AwaitingDeviceSession:
		return "awaiting_device_session"
	case AwaitingHandTracking:
		return "awaiting_hand_tracking"
	case AwaitingCaptureTrigger:
		return "awaiting_capture_trigger"
	case Recording:
		return "recording"
	case UploadAttempt:
		return "upload_attempt"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
