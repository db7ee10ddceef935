package console

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/handcap"
)

func TestModel_AppliesSurfaceMessages(t *testing.T) {
	m := NewModel(nil)
	assert.Equal(t, handcap.TextLoading, m.Status)
	assert.Equal(t, "loading", m.CurrentMode())

	steps := []tea.Msg{
		StateMsg{State: handcap.AwaitingCaptureTrigger, Reason: "hands tracked"},
		StatusMsg{Text: "PRESS", Tone: handcap.Prompt},
		HUDMsg{Text: handcap.TextPressSphere},
		VisibleMsg{Visible: true},
		ScaleMsg{Scale: 1.7},
	}
	for _, msg := range steps {
		next, cmd := m.Update(msg)
		assert.Nil(t, cmd)
		m = next.(Model)
	}

	assert.Equal(t, "awaiting_capture_trigger", m.CurrentMode())
	assert.Equal(t, "hands tracked", m.Reason)
	assert.Equal(t, 1.0, m.Scale)
	assert.True(t, m.CheckCondition("trigger_visible"))
	assert.True(t, m.CheckCondition("hud"))
	assert.False(t, m.CheckCondition("attention"))
	assert.False(t, m.CheckCondition("unknown"))

	view := StripANSI(m.View())
	assert.Contains(t, view, "PRESS")
	assert.Contains(t, view, "HUD "+handcap.TextPressSphere)
	assert.Contains(t, view, strings.Repeat("█", meterWidth))
	assert.Contains(t, view, "100%")

	next, _ := m.Update(ScaleMsg{Scale: -3})
	assert.Equal(t, 0.0, next.(Model).Scale)
}

func TestModel_ClicksAndQuit(t *testing.T) {
	clicks := make(chan struct{}, 1)
	m := NewModel(clicks)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	assert.Nil(t, cmd)
	m = next.(Model)
	next, _ = m.Update(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	m = next.(Model)
	next, _ = m.Update(tea.MouseMsg{Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
	m = next.(Model)

	assert.Equal(t, 2, m.Clicks)
	assert.Len(t, clicks, 1, "clicks beyond the buffer are dropped")

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.True(t, m.Quitting)
	assert.Empty(t, m.View())
}

func TestSurface_MirrorsAndClicks(t *testing.T) {
	s := NewSurface()
	s.SetStatus(handcap.TextUploadError, handcap.Attention)
	s.SetHUD("")
	s.OnTransition(handcap.Transition{To: handcap.UploadAttempt, Reason: "retry"})

	snap := s.Snapshot()
	assert.Equal(t, handcap.TextUploadError, snap.Status)
	assert.Equal(t, handcap.Attention, snap.Tone)
	assert.Equal(t, handcap.UploadAttempt, snap.State)
	assert.Contains(t, StripANSI(s.View()), handcap.TextUploadError)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Click(ctx), context.DeadlineExceeded)

	s.Press()
	s.Press()
	require.NoError(t, s.Click(context.Background()))

	// The program model starts from the mirror.
	m := s.Model()
	assert.Equal(t, handcap.TextUploadError, m.Status)
}

func TestCamera_RendersGrid(t *testing.T) {
	cam := NewCamera(CameraConfig{Width: 10, Height: 3})
	cam.Render("\x1b[1mhello\x1b[0m world\nsecond\nthird\nclipped")

	assert.Equal(t, "hello worl\nsecond\nthird", cam.Text())

	img := cam.Image()
	assert.Equal(t, 10*cellWidth, img.Bounds().Dx())
	assert.Equal(t, 3*cellHeight, img.Bounds().Dy())

	var buf bytes.Buffer
	require.NoError(t, cam.Capture(&buf))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0.0, Diff(img, decoded))

	blank := NewCamera(CameraConfig{Width: 10, Height: 3}).Image()
	assert.Greater(t, Diff(img, blank), 0.0)
	assert.Equal(t, 1.0, Diff(img, NewCamera(CameraConfig{Width: 4, Height: 3}).Image()))
}

func TestCamera_HighlightPaintsRow(t *testing.T) {
	cam := NewCamera(CameraConfig{Width: 8, Height: 2})
	cam.Render("plain\nDONE")
	cam.Highlight("DONE", ToneRGBA(handcap.Success))

	img := cam.Image()
	assert.Equal(t, ToneRGBA(handcap.Success), img.RGBAAt(7*cellWidth+1, cellHeight+1))
	assert.Equal(t, DefaultCameraConfig().Background, img.RGBAAt(7*cellWidth+1, 1))
}

func TestFilm_ShootsTransitions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "film")
	s := NewSurface()
	film, err := NewFilm(dir, s, DefaultCameraConfig())
	require.NoError(t, err)

	tr := handcap.Transition{To: handcap.AwaitingUserConsent}
	s.OnTransition(tr)
	s.SetStatus(handcap.TextClickToStart, handcap.Prompt)
	film.OnTransition(tr)

	shots := film.Shots()
	require.Len(t, shots, 1)
	assert.Equal(t, "frame_000_awaiting_user_consent.png", filepath.Base(shots[0]))
	require.NoError(t, film.Err())

	f, err := os.Open(shots[0])
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 80*cellWidth, img.Bounds().Dx())
}
