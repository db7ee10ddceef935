// Package dataset reads the recordings a collector stored and turns them back
// into frames for analysis.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/teranos/handcap/codec"
	"github.com/teranos/handcap/interp"
	"github.com/teranos/handcap/pose"
	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

// DefaultFrequency is the resampling rate in Hz.
const DefaultFrequency = 90

// List returns the *.json files directly inside dir, sorted by name.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	out := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Load reads one stored recording.
func Load(path string) (*codec.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	rec, err := codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// Info summarizes a stored recording.
type Info struct {
	Path       string
	Frames     int
	Leaves     int
	DurationMs float64
	IP         string
	Received   time.Time // Zero when the file was not stamped by a collector
}

// Inspect loads path and summarizes it.
func Inspect(path string) (Info, error) {
	rec, err := Load(path)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Path:   path,
		Frames: rec.Len(),
		Leaves: rec.Descriptor.Leaves(),
		IP:     rec.IP,
	}
	if times, ok := rec.Column(pose.TimeKey); ok && len(times) > 1 {
		info.DurationMs = times[len(times)-1] - times[0]
	}
	if rec.TimeReceivedNs > 0 {
		info.Received = time.Unix(0, rec.TimeReceivedNs).UTC()
	}
	return info, nil
}

// Unflatten rebuilds every frame. Rows longer than the descriptor are
// truncated; shorter rows cannot fill every leaf and fail.
func Unflatten(rec *codec.Recording) ([]record.Value, error) {
	n := rec.Descriptor.Leaves()
	out := make([]record.Value, 0, rec.Len())
	for i, row := range rec.FlattenedData {
		if len(row) > n {
			row = row[:n]
		}
		f, err := codec.Unflatten(row, rec.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// ErrNoTime is returned when a recording has no time column.
var ErrNoTime = errors.New("recording has no time column")

// Resample returns a copy of rec sampled every 1000/hz milliseconds from its
// first timestamp up to, but excluding, its last one. Every column is
// linearly interpolated against the time column.
func Resample(rec *codec.Recording, hz float64) (*codec.Recording, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("resample frequency must be positive, got %g", hz)
	}
	times, ok := rec.Column(pose.TimeKey)
	if !ok {
		return nil, ErrNoTime
	}
	if len(times) < 2 {
		return nil, trip.Schemaf("resampling needs at least 2 frames, got %d", len(times))
	}
	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			return nil, trip.Schemaf("time column decreasing at frame %d (%g after %g)", i, times[i], times[i-1])
		}
	}
	if times[len(times)-1] == times[0] {
		return nil, trip.Schemaf("time column does not advance (%g throughout)", times[0])
	}

	n := rec.Descriptor.Leaves()
	for i, row := range rec.FlattenedData {
		if len(row) < n {
			return nil, trip.Schemaf("row %d has %d values, descriptor has %d leaves", i, len(row), n)
		}
	}

	step := 1000 / hz
	out := &codec.Recording{
		Descriptor:     rec.Descriptor.Clone(),
		IP:             rec.IP,
		TimeReceivedNs: rec.TimeReceivedNs,
	}
	first, last := times[0], times[len(times)-1]
	seg := 0
	for k := 0; ; k++ {
		t := first + float64(k)*step
		if t >= last {
			break
		}
		// Zero-width segments from frames sharing a timestamp are skipped.
		for seg+1 < len(times)-1 && times[seg+1] <= t {
			seg++
		}
		a, b := rec.FlattenedData[seg], rec.FlattenedData[seg+1]
		frac := (t - times[seg]) / (times[seg+1] - times[seg])
		row := make([]float64, n)
		for c := 0; c < n; c++ {
			row[c] = interp.Lerp(a[c], b[c], frac)
		}
		out.FlattenedData = append(out.FlattenedData, row)
	}
	return out, nil
}
