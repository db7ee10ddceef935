package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Collector.DataDir, err = expandPath(c.Collector.DataDir); err != nil {
		return fmt.Errorf("collector.data_dir: %w", err)
	}
	c.Collector.Bind = strings.TrimSpace(c.Collector.Bind)
	if c.Collector.Bind == "" {
		c.Collector.Bind = defaultCollectorBind
	}
	c.Collector.URL = strings.TrimRight(strings.TrimSpace(c.Collector.URL), "/")
	if c.Collector.URL == "" {
		c.Collector.URL = defaultCollectorURL
	}
	c.Capture.UploadURL = strings.TrimSpace(c.Capture.UploadURL)
	if c.Capture.UploadURL == "" {
		c.Capture.UploadURL = defaultUploadPath
	}
	if c.Dataset.ResampleHz == 0 {
		c.Dataset.ResampleHz = defaultResampleHz
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
