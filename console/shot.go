package console

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/teranos/handcap"
)

// CameraConfig sets the size and colours of rendered shots. Zero colours
// mean white on black.
type CameraConfig struct {
	Width      int // columns
	Height     int // rows
	Background color.RGBA
	Foreground color.RGBA
}

// DefaultCameraConfig is an 80x24 white-on-black terminal.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Width:      80,
		Height:     24,
		Background: color.RGBA{0, 0, 0, 255},
		Foreground: color.RGBA{255, 255, 255, 255},
	}
}

const (
	cellWidth  = 8
	cellHeight = 16
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// StripANSI removes terminal escape sequences.
func StripANSI(text string) string {
	return ansiPattern.ReplaceAllString(text, "")
}

// Camera renders terminal text into PNG images with a fixed cell grid.
type Camera struct {
	config CameraConfig
	face   font.Face
	cells  [][]rune
	band   []color.RGBA // per-row background
}

// NewCamera returns a camera with an empty buffer.
func NewCamera(config CameraConfig) *Camera {
	if config.Width <= 0 {
		config.Width = 80
	}
	if config.Height <= 0 {
		config.Height = 24
	}
	if config.Background == (color.RGBA{}) {
		config.Background = color.RGBA{0, 0, 0, 255}
	}
	if config.Foreground == (color.RGBA{}) {
		config.Foreground = color.RGBA{255, 255, 255, 255}
	}
	c := &Camera{
		config: config,
		face:   basicfont.Face7x13,
		cells:  make([][]rune, config.Height),
		band:   make([]color.RGBA, config.Height),
	}
	for i := range c.cells {
		c.cells[i] = make([]rune, config.Width)
	}
	c.clear()
	return c
}

func (c *Camera) clear() {
	for i := range c.cells {
		for j := range c.cells[i] {
			c.cells[i][j] = ' '
		}
		c.band[i] = c.config.Background
	}
}

// Render loads terminal output into the buffer, clipping it to the grid.
func (c *Camera) Render(output string) {
	c.clear()
	for row, line := range strings.Split(StripANSI(output), "\n") {
		if row >= c.config.Height {
			break
		}
		col := 0
		for _, r := range line {
			if col >= c.config.Width {
				break
			}
			c.cells[row][col] = r
			col++
		}
	}
}

// Highlight paints the rows containing text with bg.
func (c *Camera) Highlight(text string, bg color.RGBA) {
	if text == "" {
		return
	}
	for row, cells := range c.cells {
		if strings.Contains(string(cells), text) {
			c.band[row] = bg
		}
	}
}

// Text returns the buffer as plain lines with trailing blanks trimmed.
func (c *Camera) Text() string {
	lines := make([]string, len(c.cells))
	for i, cells := range c.cells {
		lines[i] = strings.TrimRight(string(cells), " ")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// Image rasterises the buffer.
func (c *Camera) Image() *image.RGBA {
	width := c.config.Width * cellWidth
	height := c.config.Height * cellHeight
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for row, bg := range c.band {
		rect := image.Rect(0, row*cellHeight, width, (row+1)*cellHeight)
		draw.Draw(img, rect, image.NewUniform(bg), image.Point{}, draw.Src)
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c.config.Foreground),
		Face: c.face,
	}
	for row, cells := range c.cells {
		for col, r := range cells {
			if r == ' ' || r == 0 {
				continue
			}
			drawer.Dot = fixed.Point26_6{
				X: fixed.I(col * cellWidth),
				// Baseline sits a few pixels above the cell bottom.
				Y: fixed.I((row+1)*cellHeight - 3),
			}
			drawer.DrawString(string(r))
		}
	}
	return img
}

// Capture encodes the buffer as PNG.
func (c *Camera) Capture(w io.Writer) error {
	return png.Encode(w, c.Image())
}

// CaptureFile writes the buffer to a PNG file.
func (c *Camera) CaptureFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create shot: %w", err)
	}
	if err := c.Capture(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode shot: %w", err)
	}
	return f.Close()
}

// ToneRGBA converts a tone's banner colour.
func ToneRGBA(t handcap.Tone) color.RGBA {
	return hexRGBA(ToneColor(t))
}

func hexRGBA(c lipgloss.Color) color.RGBA {
	var r, g, b uint8
	if _, err := fmt.Sscanf(string(c), "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{85, 85, 85, 255}
	}
	return color.RGBA{r, g, b, 255}
}

// Film captures a shot of a surface at every director transition.
type Film struct {
	dir     string
	surface *Surface
	camera  *Camera

	mu    sync.Mutex
	count int
	shots []string
	err   error
}

// NewFilm writes shots of surface into dir, creating it when missing.
func NewFilm(dir string, surface *Surface, config CameraConfig) (*Film, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create film dir: %w", err)
	}
	return &Film{dir: dir, surface: surface, camera: NewCamera(config)}, nil
}

// Shoot captures the surface as it is now.
func (f *Film) Shoot(label string) (string, error) {
	m := f.surface.Snapshot()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.camera.Render(m.View())
	f.camera.Highlight(m.Status, ToneRGBA(m.Tone))

	name := fmt.Sprintf("frame_%03d_%s.png", f.count, label)
	path := filepath.Join(f.dir, name)
	if err := f.camera.CaptureFile(path); err != nil {
		f.err = err
		return "", err
	}
	f.count++
	f.shots = append(f.shots, path)
	return path, nil
}

// OnTransition shoots the state just entered. Install it after
// Surface.OnTransition so the shot shows the new state.
func (f *Film) OnTransition(tr handcap.Transition) {
	_, _ = f.Shoot(tr.To.String())
}

// Shots returns the files written so far.
func (f *Film) Shots() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.shots...)
}

// Err returns the last capture error.
func (f *Film) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Diff returns the fraction of pixels that differ between a and b. Images of
// different sizes differ entirely.
func Diff(a, b image.Image) float64 {
	ba, bb := a.Bounds(), b.Bounds()
	if ba.Size() != bb.Size() {
		return 1
	}
	total := ba.Dx() * ba.Dy()
	if total == 0 {
		return 0
	}
	different := 0
	for y := 0; y < ba.Dy(); y++ {
		for x := 0; x < ba.Dx(); x++ {
			r1, g1, b1, a1 := a.At(ba.Min.X+x, ba.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				different++
			}
		}
	}
	return float64(different) / float64(total)
}
