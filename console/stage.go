package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teranos/handcap/trip"
)

// StageConfig configures a Stage.
type StageConfig struct {
	// Timeout bounds every wait.
	Timeout time.Duration
	// Poll is the interval between condition checks.
	Poll time.Duration
	// CaptureViews records a snapshot after every action.
	CaptureViews bool
	// ReportErrors forwards falls to t.Error. Disable it when staging a
	// failure on purpose.
	ReportErrors bool
}

// DefaultStageConfig waits up to ten seconds and captures every view.
func DefaultStageConfig() StageConfig {
	return StageConfig{
		Timeout:      10 * time.Second,
		Poll:         5 * time.Millisecond,
		CaptureViews: true,
		ReportErrors: true,
	}
}

// Stage runs a Surface in a headless bubbletea program and drives it the
// way a user at the terminal would.
//
// Example usage:
//
//	result := console.NewStage(t, surface).
//		Start().
//		WaitForText(handcap.TextClickToStart).
//		Click().
//		WaitForMode("awaiting_capture_trigger").
//		Stop()
//
//	require.True(t, result.Success, result.ErrorMessage)
type Stage struct {
	t       testing.TB
	surface *Surface
	program *tea.Program
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	actions   []StageAction
	snapshots []StageSnapshot
	trips     *trip.Handler
	lastTrip  *trip.Trip
	failed    bool

	updates     chan modelUpdate
	latestMu    sync.RWMutex
	latest      Model
	seq         int64
	lastSeq     int64
	sent        int64
	dropped     int64
	outOfOrder  int64
	config      StageConfig
	started     bool
	startedTime time.Time
}

type modelUpdate struct {
	model    Model
	sequence int64
}

// StageAction is one step performed on the stage.
type StageAction struct {
	Timestamp time.Time
	Type      string // "click", "key", "wait", "assertion"
	Details   string
}

// StageSnapshot is the model seen after an action.
type StageSnapshot struct {
	Timestamp time.Time
	Reason    string
	View      string
	Mode      string
	Status    string
}

// StageResult summarises a staged run.
type StageResult struct {
	Actions      []StageAction
	Snapshots    []StageSnapshot
	Clicks       int
	Success      bool
	Duration     time.Duration
	ErrorMessage string
	Error        error
}

// NewStage returns a stage for surface with the default configuration.
func NewStage(t testing.TB, surface *Surface) *Stage {
	return NewStageWithConfig(t, surface, DefaultStageConfig())
}

// NewStageWithConfig returns a stage for surface.
func NewStageWithConfig(t testing.TB, surface *Surface, config StageConfig) *Stage {
	if config.Poll <= 0 {
		config.Poll = 5 * time.Millisecond
	}
	return &Stage{
		t:       t,
		surface: surface,
		trips:   trip.NewHandler("stage", nil),
		updates: make(chan modelUpdate, 64),
		latest:  surface.Model(),
		done:    make(chan struct{}),
		config:  config,
	}
}

// stageModel keeps the stage in sync with every update the program makes.
type stageModel struct {
	Model
	stage *Stage
}

func (w stageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := w.Model.Update(msg)
	m := next.(Model)

	seq := atomic.AddInt64(&w.stage.seq, 1)
	select {
	case w.stage.updates <- modelUpdate{model: m, sequence: seq}:
		atomic.AddInt64(&w.stage.sent, 1)
	default:
		atomic.AddInt64(&w.stage.dropped, 1)
	}
	return stageModel{Model: m, stage: w.stage}, cmd
}

func (s *Stage) sync() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case u := <-s.updates:
			if u.sequence <= atomic.LoadInt64(&s.lastSeq) {
				atomic.AddInt64(&s.outOfOrder, 1)
				continue
			}
			atomic.StoreInt64(&s.lastSeq, u.sequence)
			s.latestMu.Lock()
			s.latest = u.model
			s.latestMu.Unlock()
		}
	}
}

// Start launches the headless program and attaches the surface to it.
func (s *Stage) Start() *Stage {
	if s.started {
		return s
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.sync()

	s.program = tea.NewProgram(
		stageModel{Model: s.surface.Model(), stage: s},
		tea.WithContext(s.ctx),
		tea.WithoutRenderer(),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)
	go func() {
		defer close(s.done)
		if _, err := s.program.Run(); err != nil && s.ctx.Err() == nil {
			s.fall("PROGRAM_EXIT", fmt.Sprintf("program stopped: %v", err))
		}
	}()
	s.surface.Attach(s.program)

	// The first message only lands once the event loop runs.
	s.program.Send(tea.WindowSizeMsg{Width: 80, Height: 24})
	s.started = true
	s.startedTime = time.Now()
	s.waitFor("program ready", func(Model) bool { return atomic.LoadInt64(&s.lastSeq) > 0 })
	s.snapshot("initial")
	return s
}

// Stop detaches the surface, stops the program and returns the result.
func (s *Stage) Stop() *StageResult {
	if !s.started {
		return &StageResult{ErrorMessage: "stage was never started"}
	}
	s.surface.Attach(nil)
	s.program.Quit()
	select {
	case <-s.done:
	case <-time.After(s.config.Timeout):
	}
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	res := &StageResult{
		Actions:   append([]StageAction(nil), s.actions...),
		Snapshots: append([]StageSnapshot(nil), s.snapshots...),
		Clicks:    s.Latest().Clicks,
		Success:   !s.failed,
		Duration:  time.Since(s.startedTime),
	}
	if s.lastTrip != nil {
		res.Error = s.lastTrip
		res.ErrorMessage = s.lastTrip.Error()
	}
	return res
}

// Latest returns the most recent model the program produced.
func (s *Stage) Latest() Model {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

// Click sends a left mouse press.
func (s *Stage) Click() *Stage {
	s.send("click", "left", tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	return s
}

// PressKey sends a single key, e.g. "enter" or " ".
func (s *Stage) PressKey(key string) *Stage {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case " ", "space":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	s.send("key", key, msg)
	return s
}

func (s *Stage) send(kind, details string, msg tea.Msg) {
	if !s.started {
		s.fall("NOT_STARTED", kind+" before Start")
		return
	}
	before := atomic.LoadInt64(&s.lastSeq)
	s.program.Send(msg)
	s.record(kind, details)
	s.waitFor(kind+" processed", func(Model) bool { return atomic.LoadInt64(&s.lastSeq) > before })
	s.snapshot(kind)
}

// WaitForMode waits until the director reaches the named state.
func (s *Stage) WaitForMode(mode string) *Stage {
	if s.waitFor("mode="+mode, func(m Model) bool { return m.CurrentMode() == mode }) {
		s.record("wait", "mode="+mode)
	}
	return s
}

// WaitForText waits until text appears in the view.
func (s *Stage) WaitForText(text string) *Stage {
	if s.waitFor("text="+text, func(m Model) bool { return strings.Contains(m.View(), text) }) {
		s.record("wait", "text="+text)
	}
	return s
}

// WaitForCondition waits until Model.CheckCondition reports true.
func (s *Stage) WaitForCondition(condition string) *Stage {
	if s.waitFor(condition, func(m Model) bool { return m.CheckCondition(condition) }) {
		s.record("wait", condition)
	}
	return s
}

// AssertViewContains checks the current view.
func (s *Stage) AssertViewContains(text string) *Stage {
	if view := s.Latest().View(); !strings.Contains(view, text) {
		s.fall("ASSERTION", fmt.Sprintf("view does not contain %q", text))
		return s
	}
	s.record("assertion", "contains="+text)
	return s
}

// AssertMode checks the current state.
func (s *Stage) AssertMode(mode string) *Stage {
	if got := s.Latest().CurrentMode(); got != mode {
		s.fall("ASSERTION", fmt.Sprintf("expected mode %s, got %s", mode, got))
		return s
	}
	s.record("assertion", "mode="+mode)
	return s
}

// HasFailed reports whether any wait or assertion failed.
func (s *Stage) HasFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Trips returns every fall recorded so far.
func (s *Stage) Trips() []*trip.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips.GetTrips()
}

// SyncStats returns the update counters of the program sync.
func (s *Stage) SyncStats() map[string]int64 {
	return map[string]int64{
		"sequence":     atomic.LoadInt64(&s.seq),
		"processed":    atomic.LoadInt64(&s.lastSeq),
		"sent":         atomic.LoadInt64(&s.sent),
		"dropped":      atomic.LoadInt64(&s.dropped),
		"out_of_order": atomic.LoadInt64(&s.outOfOrder),
	}
}

func (s *Stage) waitFor(what string, cond func(Model) bool) bool {
	timeout := time.NewTimer(s.config.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(s.config.Poll)
	defer ticker.Stop()

	for {
		if cond(s.Latest()) {
			return true
		}
		select {
		case <-timeout.C:
			m := s.Latest()
			s.fall("TIMEOUT", fmt.Sprintf("timeout waiting for %s (mode %s, status %q)", what, m.CurrentMode(), m.Status))
			return false
		case <-ticker.C:
		}
	}
}

func (s *Stage) record(kind, details string) {
	s.mu.Lock()
	s.actions = append(s.actions, StageAction{Timestamp: time.Now(), Type: kind, Details: details})
	s.mu.Unlock()
}

func (s *Stage) snapshot(reason string) {
	if !s.config.CaptureViews {
		return
	}
	m := s.Latest()
	s.mu.Lock()
	s.snapshots = append(s.snapshots, StageSnapshot{
		Timestamp: time.Now(),
		Reason:    reason,
		View:      m.View(),
		Mode:      m.CurrentMode(),
		Status:    m.Status,
	})
	s.mu.Unlock()
}

func (s *Stage) fall(kind, message string) {
	t := trip.NewFall(kind, message, trip.Context{"mode": s.Latest().CurrentMode()})

	s.mu.Lock()
	s.trips.Record(t)
	s.lastTrip = t
	s.failed = true
	s.mu.Unlock()

	if s.t != nil {
		s.t.Helper()
		if s.config.ReportErrors {
			s.t.Error(t)
		} else {
			s.t.Log(t.DetailedString())
		}
	}
}
