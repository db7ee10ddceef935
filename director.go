package handcap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/handcap/button"
	"github.com/teranos/handcap/capture"
	"github.com/teranos/handcap/codec"
	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/trip"
)

// Status and HUD texts shown along the flow.
const (
	TextLoading         = "LOADING..."
	TextClickToStart    = "CLICK ANYWHERE TO START"
	TextAllowXR         = "PLEASE ALLOW XR ACCESS"
	TextWaitingHands    = "WAITING FOR HAND TRACKING"
	TextSessionLost     = "XR SESSION LOST, CLICK TO RETRY"
	TextTrackingLost    = "HAND TRACKING LOST, ENABLE HAND TRACKING AGAIN TO RETRY"
	TextPressSphere     = "PRESS SPHERE TO START CAPTURE"
	TextCapturing       = "CAPTURING..."
	TextUploadError     = "UPLOAD ERROR, CLICK ANYWHERE TO RETRY."
	TextDone            = "DONE! THANKS FOR YOUR CONTRIBUTION."
	TextClickToRestart  = "CLICK ANYWHERE TO RESTART"
	textUploadingFormat = "UPLOADING DATA... %d%%"
)

// UploadingText formats the upload progress status.
func UploadingText(fraction float64) string {
	pct := int(math.Round(fraction * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf(textUploadingFormat, pct)
}

// DirectorConfig tunes a capture cycle.
type DirectorConfig struct {
	UploadURL     string
	Duration      time.Duration // Recording length
	Trigger       button.Config
	TriggerOffset mat4.Vec3 // Button position relative to the head
	Strict        bool      // Validate every recorded frame
	Assets        []string  // Preloaded once per process
	Cycles        int       // Run stops after this many completed cycles, 0 means never
	Policy        *trip.Policy
}

// DefaultDirectorConfig returns the settings of the deployed capture app.
func DefaultDirectorConfig() DirectorConfig {
	return DirectorConfig{
		UploadURL:     "/upload",
		Duration:      30 * time.Second,
		Trigger:       button.DefaultConfig(),
		TriggerOffset: mat4.Vec3{X: 0.05, Y: -0.1, Z: -0.5},
		Assets:        []string{"archivo-black-v10-latin-regular.woff"},
		Policy:        trip.DefaultPolicy(),
	}
}

// Transition records one state change, in the spirit of a stage action log.
type Transition struct {
	Timestamp time.Time
	Cycle     string
	From      State
	To        State
	Reason    string
}

// Director drives the capture flow for one App.
//
// All flow methods must be called from a single goroutine. State,
// Transitions and Trips may be read concurrently.
type Director struct {
	app    *App
	cfg    DirectorConfig
	logger *slog.Logger
	trips  *trip.Handler

	recorder *capture.Recorder
	watcher  *Availability

	assetsLoaded bool
	session      Session

	mu           sync.Mutex
	state        State
	cycle        string
	transitions  []Transition
	onTransition func(Transition)
}

// NewDirector prepares a Director. The hand availability poll is registered
// with the app's scheduler right away.
func NewDirector(app *App, cfg DirectorConfig) *Director {
	if cfg.Policy == nil {
		cfg.Policy = trip.DefaultPolicy()
	}
	d := &Director{
		app:    app,
		cfg:    cfg,
		logger: app.logger().With("component", "director"),
		trips:  trip.NewHandler("flow", cfg.Policy),
		state:  Loading,
	}
	d.recorder = &capture.Recorder{
		Scheduler: app.Scheduler,
		Clock:     app.clock(),
		Hands:     app.Hands,
		Head:      app.Head,
		Strict:    cfg.Strict,
		Logger:    d.logger,
	}
	d.watcher = WatchHands(app.Scheduler, app.Hands)
	return d
}

// OnTransition installs a hook called after every state change.
func (d *Director) OnTransition(fn func(Transition)) {
	d.mu.Lock()
	d.onTransition = fn
	d.mu.Unlock()
}

// State returns the current state.
func (d *Director) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Transitions returns a copy of every state change so far.
func (d *Director) Transitions() []Transition {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Transition, len(d.transitions))
	copy(out, d.transitions)
	return out
}

// Trips returns the trip handler that collected every failure.
func (d *Director) Trips() *trip.Handler {
	return d.trips
}

// Availability returns the hand availability poll.
func (d *Director) Availability() *Availability {
	return d.watcher
}

// Close deregisters the availability poll and ends a session left open.
func (d *Director) Close() error {
	d.watcher.Stop()
	return d.endSession()
}

func (d *Director) to(next State, reason string) {
	d.mu.Lock()
	tr := Transition{
		Timestamp: d.app.clock().Now(),
		Cycle:     d.cycle,
		From:      d.state,
		To:        next,
		Reason:    reason,
	}
	d.state = next
	d.transitions = append(d.transitions, tr)
	hook := d.onTransition
	d.mu.Unlock()

	d.logger.Info("transition",
		"state_from", tr.From.String(),
		"state_to", tr.To.String(),
		"cycle", tr.Cycle,
		"reason", reason)
	if hook != nil {
		hook(tr)
	}
}

func (d *Director) status(text string, tone Tone) {
	if d.app.Display != nil {
		d.app.Display.SetStatus(text, tone)
	}
}

func (d *Director) hud(text string) {
	if d.app.Display != nil {
		d.app.Display.SetHUD(text)
	}
}

func (d *Director) click(ctx context.Context) error {
	if d.app.Clicks == nil {
		return nil
	}
	return d.app.Clicks.Click(ctx)
}

// stumble records a recoverable trip. The returned error is non-nil when the
// retry policy escalated it to a fall.
func (d *Director) stumble(t *trip.Trip) error {
	t = t.Clone()
	if t.Context == nil {
		t.Context = trip.Context{}
	}
	t.Context["state"] = d.State().String()
	t.Context["cycle"] = d.cycle
	recorded := d.trips.Record(t)
	d.logger.Warn("recoverable trip",
		"trip_type", recorded.Type,
		"attempt", recorded.Attempt,
		"error", recorded.Message)
	if recorded.IsFall() {
		return recorded
	}
	return nil
}

// Cycle runs one capture from loading to Done and returns the uploaded
// recording. Assets are loaded on the first cycle only.
func (d *Director) Cycle(ctx context.Context) (*codec.Recording, error) {
	d.mu.Lock()
	d.cycle = uuid.NewString()
	d.mu.Unlock()

	if !d.assetsLoaded {
		d.to(Loading, "start")
		d.status(TextLoading, Neutral)
		for _, asset := range d.cfg.Assets {
			if d.app.Assets == nil {
				break
			}
			if err := d.app.Assets.Preload(ctx, asset); err != nil {
				return nil, d.fail(fmt.Errorf("preload %s: %w", asset, err))
			}
		}
		d.assetsLoaded = true
	}

	rec, err := d.capture(ctx)
	if err != nil {
		return nil, d.fail(err)
	}
	if err := d.endSession(); err != nil {
		d.logger.Warn("ending session failed", "error", err)
	}

	if err := d.upload(ctx, rec); err != nil {
		return nil, d.fail(err)
	}

	d.to(Done, "uploaded")
	d.status(TextDone, Success)
	return rec, nil
}

// Run cycles until ctx ends, a fatal error occurs or cfg.Cycles cycles
// completed. Between cycles it waits for a restart click.
func (d *Director) Run(ctx context.Context) error {
	defer d.Close()
	for completed := 0; ; {
		if _, err := d.Cycle(ctx); err != nil {
			return err
		}
		completed++
		if d.cfg.Cycles > 0 && completed >= d.cfg.Cycles {
			return nil
		}
		d.status(TextClickToRestart, Restart)
		if err := d.click(ctx); err != nil {
			return err
		}
	}
}

// fail moves to Failed and shows err, except when the caller's context
// simply ended.
func (d *Director) fail(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = d.endSession()
		return err
	}
	t := trip.As(err)
	if t.Attempt == 0 {
		d.trips.Record(t)
	}
	_ = d.endSession()
	d.to(Failed, t.Type)
	d.status(strings.ToUpper(t.Message), Attention)
	d.logger.Error("capture failed", "trip_type", t.Type, "error", err)
	return err
}

func (d *Director) endSession() error {
	if d.session == nil {
		return nil
	}
	s := d.session
	d.session = nil
	return s.End()
}

// capture runs consent, session acquisition and capture attempts until a
// recording is produced or a fatal error occurs.
func (d *Director) capture(ctx context.Context) (*codec.Recording, error) {
	d.to(AwaitingUserConsent, "assets ready")
	d.status(TextClickToStart, Prompt)
	if err := d.click(ctx); err != nil {
		return nil, err
	}

	for {
		sess, err := d.acquire(ctx)
		if err != nil {
			return nil, err
		}
		d.session = sess
		d.trips.Reset(trip.UserDeclined)
		d.hud(TextWaitingHands)

		for {
			rec, err := d.attempt(ctx, sess)
			if err == nil {
				d.trips.Reset(trip.SessionLost)
				d.trips.Reset(trip.HandTrackingLost)
				return rec, nil
			}
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}

			switch {
			case errors.Is(err, trip.ErrHandTrackingLost):
				if fatal := d.stumble(trip.As(err)); fatal != nil {
					return nil, fatal
				}
				d.hud(TextTrackingLost)
				continue

			case errors.Is(err, trip.ErrSessionLost):
				if fatal := d.stumble(trip.As(err)); fatal != nil {
					return nil, fatal
				}
				_ = d.endSession()
				d.to(AwaitingUserConsent, "session lost")
				d.status(TextSessionLost, Attention)
				if err := d.click(ctx); err != nil {
					return nil, err
				}
			default:
				return nil, err
			}
			break
		}
	}
}

// acquire requests a session, re-prompting after every decline.
func (d *Director) acquire(ctx context.Context) (Session, error) {
	for {
		d.to(AwaitingDeviceSession, "consent")
		sess, err := d.app.Devices.RequestSession(ctx)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, trip.ErrUserDeclined) {
			return nil, err
		}
		if fatal := d.stumble(trip.As(err)); fatal != nil {
			return nil, fatal
		}
		d.to(AwaitingUserConsent, "declined")
		d.status(TextAllowXR, Attention)
		if err := d.click(ctx); err != nil {
			return nil, err
		}
	}
}

// attempt waits for hands, the trigger press and a full recording inside
// one session. Losing the session or the hands cancels whatever is in
// flight and returns the matching trip.
func (d *Director) attempt(parent context.Context, sess Session) (*codec.Recording, error) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	go func() {
		select {
		case <-sess.Ended():
			cancel(trip.NewStumble(trip.SessionLost, "immersive session ended", nil))
		case <-ctx.Done():
		}
	}()

	d.to(AwaitingHandTracking, "session ready")
	if err := d.waitForHands(ctx); err != nil {
		return nil, err
	}

	go d.watchTrackingLoss(ctx, cancel)

	d.to(AwaitingCaptureTrigger, "hands tracked")
	d.hud(TextPressSphere)
	if err := d.waitForPress(ctx); err != nil {
		return nil, err
	}

	d.to(Recording, "trigger pressed")
	d.hud(TextCapturing)
	return d.recorder.Begin(d.cfg.Duration).Wait(ctx)
}

func (d *Director) waitForHands(ctx context.Context) error {
	for {
		available, changed := d.watcher.Snapshot()
		if available {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

func (d *Director) watchTrackingLoss(ctx context.Context, cancel context.CancelCauseFunc) {
	for {
		available, changed := d.watcher.Snapshot()
		if !available {
			cancel(trip.NewStumble(trip.HandTrackingLost, "hand tracking lost", nil))
			return
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Director) waitForPress(ctx context.Context) error {
	var indicator button.Indicator
	if ind, ok := d.app.Display.(button.Indicator); ok {
		indicator = ind
	}
	position := pose.Offset{Base: d.app.Head, Delta: d.cfg.TriggerOffset}
	trig := button.New(d.app.Scheduler, d.app.clock(), position, d.monitored(), d.cfg.Trigger, indicator)

	select {
	case <-trig.Pressed():
		return nil
	case <-ctx.Done():
		trig.Abort()
		return context.Cause(ctx)
	}
}

// monitored returns every fingertip of both hands.
func (d *Director) monitored() []pose.Locator {
	var out []pose.Locator
	sides := []func() pose.HandSource{d.app.Hands.Left, d.app.Hands.Right}
	for _, side := range sides {
		for _, name := range pose.XRJointNames {
			if strings.HasSuffix(name, "-tip") {
				out = append(out, pose.JointLocator{Hand: side, Joint: name})
			}
		}
	}
	return out
}

// upload posts the recording until it succeeds. Every retry waits for a
// click and restarts the progress display at 0%.
func (d *Director) upload(ctx context.Context, rec *codec.Recording) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return trip.NewFall(trip.UploadFailed, "encode recording", nil).WithCause(err)
	}
	d.to(UploadAttempt, "recorded")
	d.hud("")

	for {
		d.status(UploadingText(0), Prompt)
		err := d.app.Uploader.Post(ctx, d.cfg.UploadURL, payload, func(f float64) {
			d.status(UploadingText(f), Prompt)
		})
		if err == nil {
			d.trips.Reset(trip.UploadFailed)
			d.logger.Info("recording uploaded", "bytes", len(payload), "frames", rec.Len())
			return nil
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		t := trip.NewStumble(trip.UploadFailed, "upload failed", nil).WithCause(err)
		if fatal := d.stumble(t); fatal != nil {
			return fatal
		}
		d.status(TextUploadError, Attention)
		if err := d.click(ctx); err != nil {
			return err
		}
		attempt := d.trips.Attempts(trip.UploadFailed)
		if wait := d.trips.Backoff(trip.UploadFailed, attempt); wait > 0 {
			d.logger.Info("upload backoff", "attempt", attempt, "wait", wait)
			if err := d.sleep(ctx, wait); err != nil {
				return err
			}
		}
		d.to(UploadAttempt, "retry")
	}
}

// sleep waits until the app clock has advanced by dur, checking once per
// frame.
func (d *Director) sleep(ctx context.Context, dur time.Duration) error {
	clock := d.app.clock()
	deadline := clock.Now().Add(dur)
	elapsed := make(chan struct{})
	var once sync.Once
	h := d.app.Scheduler.Register(func(destroy func()) {
		if clock.Now().Before(deadline) {
			return
		}
		destroy()
		once.Do(func() { close(elapsed) })
	})
	select {
	case <-elapsed:
		return nil
	case <-ctx.Done():
		h.Cancel()
		return context.Cause(ctx)
	}
}
