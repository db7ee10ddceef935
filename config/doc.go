// Package config loads, normalizes, and validates handcap configuration.
//
// It supplies defaults matching the deployed capture app, expands user paths
// (including tilde shortcuts) and reads TOML files. Commands obtain capture,
// trigger, retry, collector and logging settings through this package so
// downstream code receives sanitized paths and clear validation errors.
package config
