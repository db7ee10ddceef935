// Package console renders the capture flow in a terminal.
//
// The Model is a bubbletea model holding the status surface, the HUD line and
// the trigger meter. A Surface bridges a handcap.Director to a running
// program: it implements handcap.Display, handcap.Clicks and
// button.Indicator, so the director drives the terminal the same way it
// would drive a headset overlay.
//
// Basic usage:
//
//	surface := console.NewSurface()
//	app.Display = surface
//	app.Clicks = surface
//	director.OnTransition(surface.OnTransition)
//
//	go director.Run(ctx)
//	if err := console.Run(ctx, surface); err != nil {
//		log.Fatal(err)
//	}
//
// For headless driving in tests, see Stage.
package console

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teranos/handcap"
)

// StatusMsg replaces the full-screen status text.
type StatusMsg struct {
	Text string
	Tone handcap.Tone
}

// HUDMsg replaces the in-headset HUD line.
type HUDMsg struct {
	Text string
}

// ScaleMsg sets the trigger meter.
type ScaleMsg struct {
	Scale float64
}

// VisibleMsg shows or hides the trigger meter.
type VisibleMsg struct {
	Visible bool
}

// StateMsg reports a director transition.
type StateMsg struct {
	State  handcap.State
	Reason string
}

const meterWidth = 20

// Model is the terminal rendition of the capture surface.
type Model struct {
	Status   string
	Tone     handcap.Tone
	HUD      string
	Scale    float64
	Visible  bool
	State    handcap.State
	Reason   string
	Clicks   int
	Quitting bool

	width  int
	clicks chan<- struct{}
}

// NewModel returns a model that forwards clicks to clicks. A nil channel
// counts clicks without forwarding them.
func NewModel(clicks chan<- struct{}) Model {
	return Model{
		Status: handcap.TextLoading,
		Tone:   handcap.Neutral,
		State:  handcap.Loading,
		clicks: clicks,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StatusMsg:
		m.Status = msg.Text
		m.Tone = msg.Tone
	case HUDMsg:
		m.HUD = msg.Text
	case ScaleMsg:
		m.Scale = clamp01(msg.Scale)
	case VisibleMsg:
		m.Visible = msg.Visible
	case StateMsg:
		m.State = msg.State
		m.Reason = msg.Reason
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.Quitting = true
			return m, tea.Quit
		}
		m.click()
	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			m.click()
		}
	}
	return m, nil
}

func (m *Model) click() {
	m.Clicks++
	if m.clicks == nil {
		return
	}
	select {
	case m.clicks <- struct{}{}:
	default:
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F5F5F5")).Background(lipgloss.Color("#3C3C3C")).Padding(0, 1)
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	hudStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9FD3FF"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	meterOn    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0E0E0"))
	meterOff   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// ToneColor is the banner background for each tone.
func ToneColor(t handcap.Tone) lipgloss.Color {
	switch t {
	case handcap.Prompt:
		return lipgloss.Color("#2F6FDF")
	case handcap.Attention:
		return lipgloss.Color("#C0392B")
	case handcap.Success:
		return lipgloss.Color("#2E8B57")
	case handcap.Restart:
		return lipgloss.Color("#B8860B")
	default:
		return lipgloss.Color("#555555")
	}
}

func bannerStyle(t handcap.Tone) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(ToneColor(t)).
		Padding(1, 4)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.Quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("HANDCAP"))
	b.WriteString(" ")
	b.WriteString(stateStyle.Render(m.State.String()))
	b.WriteString("\n\n")

	banner := bannerStyle(m.Tone)
	if m.width > 0 {
		banner = banner.Width(m.width)
	}
	b.WriteString(banner.Render(m.Status))
	b.WriteString("\n\n")

	if m.HUD != "" {
		b.WriteString(hudStyle.Render("HUD " + m.HUD))
		b.WriteString("\n")
	}
	if m.Visible {
		b.WriteString(m.meter())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("click or press any key to continue, q to quit"))
	return b.String()
}

func (m Model) meter() string {
	filled := int(math.Round(m.Scale * meterWidth))
	return fmt.Sprintf("trigger %s%s %3.0f%%",
		meterOn.Render(strings.Repeat("█", filled)),
		meterOff.Render(strings.Repeat("░", meterWidth-filled)),
		m.Scale*100)
}

// CurrentMode returns the director state shown by the model.
func (m Model) CurrentMode() string {
	return m.State.String()
}

// CheckCondition answers the conditions a Stage can wait for.
func (m Model) CheckCondition(condition string) bool {
	switch condition {
	case "trigger_visible":
		return m.Visible
	case "trigger_hidden":
		return !m.Visible
	case "hud":
		return m.HUD != ""
	case "attention":
		return m.Tone == handcap.Attention
	case "success":
		return m.Tone == handcap.Success
	default:
		return false
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
