package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateTrigger(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateCollector(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCapture() error {
	if c.Capture.DurationSeconds <= 0 {
		return errors.New("capture.duration_seconds must be positive")
	}
	if c.Capture.FrameRate <= 0 {
		return errors.New("capture.frame_rate must be positive")
	}
	return nil
}

func (c *Config) validateTrigger() error {
	t := c.Trigger
	if t.AcceptDistance <= 0 {
		return errors.New("trigger.accept_distance must be positive")
	}
	if t.AcceptDistance >= t.StartDistance {
		return fmt.Errorf("trigger.accept_distance (%g) must be less than trigger.start_distance (%g)", t.AcceptDistance, t.StartDistance)
	}
	if t.ShrinkMillis < 0 {
		return errors.New("trigger.shrink_ms must be >= 0")
	}
	if len(t.Offset) != 3 {
		return fmt.Errorf("trigger.offset must have 3 components, got %d", len(t.Offset))
	}
	return nil
}

func (c *Config) validateRetry() error {
	r := c.Retry
	if r.MaxDeclines < 0 || r.MaxSessionRetries < 0 || r.MaxTrackingRetries < 0 || r.MaxUploadRetries < 0 {
		return errors.New("retry limits must be >= 0")
	}
	if r.UploadBackoffMillis < 0 {
		return errors.New("retry.upload_backoff_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateCollector() error {
	if c.Collector.MaxUploadMiB <= 0 {
		return errors.New("collector.max_upload_mib must be positive")
	}
	if c.Collector.DataDir == "" {
		return errors.New("collector.data_dir must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
