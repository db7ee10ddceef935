package synth

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/handcap"
	"github.com/teranos/handcap/trip"
)

// Session is a synthetic immersive session.
type Session struct {
	id    int
	ended chan struct{}
	once  sync.Once
}

// Ended implements handcap.Session.
func (s *Session) Ended() <-chan struct{} { return s.ended }

// End implements handcap.Session.
func (s *Session) End() error {
	s.once.Do(func() { close(s.ended) })
	return nil
}

// ID numbers sessions from 1 in request order.
func (s *Session) ID() int { return s.id }

// Devices hands out sessions. The first Declines requests are refused as if
// the user said no.
type Devices struct {
	Declines int
	Delay    time.Duration

	mu       sync.Mutex
	requests int
	sessions []*Session
	granted  chan *Session
}

// NewDevices returns a provider that grants every request.
func NewDevices() *Devices {
	return &Devices{granted: make(chan *Session, 16)}
}

// RequestSession implements handcap.DeviceSessions.
func (d *Devices) RequestSession(ctx context.Context) (handcap.Session, error) {
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
	d.mu.Lock()
	d.requests++
	if d.requests <= d.Declines {
		d.mu.Unlock()
		return nil, trip.NewStumble(trip.UserDeclined, "user declined the immersive session", nil)
	}
	s := &Session{id: len(d.sessions) + 1, ended: make(chan struct{})}
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()

	select {
	case d.granted <- s:
	default:
	}
	return s, nil
}

// Granted delivers each session as it is handed out.
func (d *Devices) Granted() <-chan *Session { return d.granted }

// Requests returns how many sessions were requested.
func (d *Devices) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}

// Current returns the most recent session, or nil.
func (d *Devices) Current() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// Clicker delivers clicks. Auto clickers click after Delay on every wait;
// manual ones wait for Press.
type Clicker struct {
	Auto  bool
	Delay time.Duration

	presses chan struct{}
	mu      sync.Mutex
	waits   int
	waiting chan struct{}
}

// NewClicker returns a manual clicker.
func NewClicker() *Clicker {
	return &Clicker{presses: make(chan struct{}, 16), waiting: make(chan struct{})}
}

// NewAutoClicker returns a clicker that clicks by itself after delay.
func NewAutoClicker(delay time.Duration) *Clicker {
	c := NewClicker()
	c.Auto = true
	c.Delay = delay
	return c
}

// Click implements handcap.Clicks.
func (c *Clicker) Click(ctx context.Context) error {
	c.mu.Lock()
	c.waits++
	close(c.waiting)
	c.waiting = make(chan struct{})
	c.mu.Unlock()

	if c.Auto {
		select {
		case <-time.After(c.Delay):
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
	select {
	case <-c.presses:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Press queues one click.
func (c *Clicker) Press() {
	c.presses <- struct{}{}
}

// Waits returns how many times the flow waited for a click, and a channel
// closed on the next wait.
func (c *Clicker) Waits() (int, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waits, c.waiting
}

// Preloader records asset loads.
type Preloader struct {
	Delay time.Duration
	Fail  error

	mu     sync.Mutex
	loaded []string
}

// Preload implements handcap.Preloader.
func (p *Preloader) Preload(ctx context.Context, asset string) error {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
	if p.Fail != nil {
		return p.Fail
	}
	p.mu.Lock()
	p.loaded = append(p.loaded, asset)
	p.mu.Unlock()
	return nil
}

// Loaded returns the assets loaded so far.
func (p *Preloader) Loaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loaded...)
}
