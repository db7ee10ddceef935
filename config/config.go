package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/handcap"
	"github.com/teranos/handcap/button"
	"github.com/teranos/handcap/mat4"
	"github.com/teranos/handcap/trip"
)

//go:embed sample_config.toml
var sampleConfig string

// Capture contains the recording settings.
type Capture struct {
	DurationSeconds float64 `toml:"duration_seconds"`
	FrameRate       int     `toml:"frame_rate"`
	StrictFrames    bool    `toml:"strict_frames"`
	UploadURL       string  `toml:"upload_url"` // Resolved against collector.url when relative
}

// Trigger contains the capture button geometry.
type Trigger struct {
	StartDistance  float64   `toml:"start_distance"`
	AcceptDistance float64   `toml:"accept_distance"`
	ShrinkMillis   int       `toml:"shrink_ms"`
	Offset         []float64 `toml:"offset"` // Relative to the head, metres
}

// Retry limits consecutive recoveries. Zero means unlimited.
type Retry struct {
	MaxDeclines         int `toml:"max_declines"`
	MaxSessionRetries   int `toml:"max_session_retries"`
	MaxTrackingRetries  int `toml:"max_tracking_retries"`
	MaxUploadRetries    int `toml:"max_upload_retries"`
	UploadBackoffMillis int `toml:"upload_backoff_ms"`
}

// Collector contains the upload server settings.
type Collector struct {
	Bind         string `toml:"bind"`
	URL          string `toml:"url"`
	DataDir      string `toml:"data_dir"`
	MaxUploadMiB int    `toml:"max_upload_mib"`
}

// Dataset contains analysis defaults.
type Dataset struct {
	ResampleHz float64 `toml:"resample_hz"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Assets lists what is preloaded before the first capture.
type Assets struct {
	Preload []string `toml:"preload"`
}

// Config encapsulates all configuration values for handcap.
//
// Configuration sections by subsystem:
//   - Capture: recording length, frame rate and upload target
//   - Trigger: capture button distances and placement
//   - Retry: per-failure retry limits
//   - Collector: upload server bind address and storage
//   - Dataset: analysis defaults
//   - Logging: log format and level
//   - Assets: preloaded assets
type Config struct {
	Capture   Capture   `toml:"capture"`
	Trigger   Trigger   `toml:"trigger"`
	Retry     Retry     `toml:"retry"`
	Collector Collector `toml:"collector"`
	Dataset   Dataset   `toml:"dataset"`
	Logging   Logging   `toml:"logging"`
	Assets    Assets    `toml:"assets"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/handcap/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("handcap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Duration returns the recording length.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.Capture.DurationSeconds * float64(time.Second))
}

// UploadURL returns the upload target with collector.url applied.
func (c *Config) UploadURL() string {
	u := c.Capture.UploadURL
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return strings.TrimRight(c.Collector.URL, "/") + "/" + strings.TrimLeft(u, "/")
}

// MaxUploadBytes returns the collector body limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Collector.MaxUploadMiB) << 20
}

// ButtonConfig returns the trigger geometry.
func (c *Config) ButtonConfig() button.Config {
	return button.Config{
		Start:  c.Trigger.StartDistance,
		Accept: c.Trigger.AcceptDistance,
		Shrink: time.Duration(c.Trigger.ShrinkMillis) * time.Millisecond,
	}
}

// Policy builds the retry policy from the [retry] section.
func (c *Config) Policy() *trip.Policy {
	p := trip.DefaultPolicy()
	backoff := time.Duration(c.Retry.UploadBackoffMillis) * time.Millisecond
	p.RetryPolicy[trip.UserDeclined] = trip.RetryConfig{MaxRetries: c.Retry.MaxDeclines}
	p.RetryPolicy[trip.SessionLost] = trip.RetryConfig{MaxRetries: c.Retry.MaxSessionRetries}
	p.RetryPolicy[trip.HandTrackingLost] = trip.RetryConfig{MaxRetries: c.Retry.MaxTrackingRetries}
	p.RetryPolicy[trip.UploadFailed] = trip.RetryConfig{MaxRetries: c.Retry.MaxUploadRetries, Backoff: backoff, Exponential: true}
	return p
}

// DirectorConfig assembles the capture flow settings.
func (c *Config) DirectorConfig() handcap.DirectorConfig {
	d := handcap.DefaultDirectorConfig()
	d.UploadURL = c.UploadURL()
	d.Duration = c.Duration()
	d.Trigger = c.ButtonConfig()
	d.TriggerOffset = mat4.Vec3{X: c.Trigger.Offset[0], Y: c.Trigger.Offset[1], Z: c.Trigger.Offset[2]}
	d.Strict = c.Capture.StrictFrames
	d.Assets = append([]string(nil), c.Assets.Preload...)
	d.Policy = c.Policy()
	return d
}
