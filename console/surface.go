package console

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teranos/handcap"
)

// Sender delivers messages to a running program.
type Sender interface {
	Send(msg tea.Msg)
}

// Surface is the director-facing side of the console. It mirrors every
// update into its own Model so the current view is available with or
// without an attached program.
type Surface struct {
	clicks chan struct{}

	mu      sync.Mutex
	mirror  Model
	program Sender
}

// NewSurface returns a detached surface.
func NewSurface() *Surface {
	clicks := make(chan struct{}, 1)
	return &Surface{
		clicks: clicks,
		mirror: NewModel(nil),
	}
}

// Model returns a fresh program model wired to this surface's clicks and
// showing the current mirror state.
func (s *Surface) Model() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.mirror
	m.clicks = s.clicks
	m.Clicks = 0
	return m
}

// Attach routes further updates to p. Attaching nil detaches.
func (s *Surface) Attach(p Sender) {
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()
}

// View renders the mirror.
func (s *Surface) View() string {
	return s.Snapshot().View()
}

// Snapshot returns a copy of the mirror.
func (s *Surface) Snapshot() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror
}

func (s *Surface) send(msg tea.Msg) {
	s.mu.Lock()
	next, _ := s.mirror.Update(msg)
	s.mirror = next.(Model)
	p := s.program
	s.mu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

// SetStatus implements handcap.Display.
func (s *Surface) SetStatus(text string, tone handcap.Tone) {
	s.send(StatusMsg{Text: text, Tone: tone})
}

// SetHUD implements handcap.Display.
func (s *Surface) SetHUD(text string) {
	s.send(HUDMsg{Text: text})
}

// SetScale implements button.Indicator.
func (s *Surface) SetScale(scale float64) {
	s.send(ScaleMsg{Scale: scale})
}

// SetVisible implements button.Indicator.
func (s *Surface) SetVisible(visible bool) {
	s.send(VisibleMsg{Visible: visible})
}

// OnTransition forwards director transitions. Install it with
// Director.OnTransition.
func (s *Surface) OnTransition(tr handcap.Transition) {
	s.send(StateMsg{State: tr.To, Reason: tr.Reason})
}

// Click implements handcap.Clicks. Clicks made while nobody waits are kept,
// at most one.
func (s *Surface) Click(ctx context.Context) error {
	select {
	case <-s.clicks:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Press queues a click as if the user clicked.
func (s *Surface) Press() {
	select {
	case s.clicks <- struct{}{}:
	default:
	}
}

// Run shows the surface in the terminal until ctx is done or the user quits.
// Quitting returns context.Canceled so callers can stop the flow.
func Run(ctx context.Context, s *Surface, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	}, opts...)
	p := tea.NewProgram(s.Model(), opts...)
	s.Attach(p)
	defer s.Attach(nil)

	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if m, ok := final.(Model); ok && m.Quitting {
		return context.Canceled
	}
	return nil
}
