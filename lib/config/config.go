// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Bollard shim.
//
// Configuration is loaded from a single file specified by:
//   - BOLLARD_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// Every field has a default, so running without a config file is
// valid.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the shim.
type Config struct {
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Task configures lifecycle behavior.
	Task TaskConfig `yaml:"task"`

	// Cache configures the compiled-artifact cache.
	Cache CacheConfig `yaml:"cache"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`
}

// TaskConfig configures lifecycle behavior.
type TaskConfig struct {
	// GracePeriod is how long a cancelled task's executors get to
	// shut down cooperatively before they are force-aborted.
	// SIGKILL bypasses it. Default: 10s.
	GracePeriod Duration `yaml:"grace_period"`
}

// CacheConfig configures the compiled-artifact cache.
type CacheConfig struct {
	// Directory enables the persisted precompiled-module cache when
	// non-empty. The in-memory cache is always active; the directory
	// only saves compilation cost across shim restarts. Default:
	// empty (disabled).
	Directory string `yaml:"directory"`
}

// Duration wraps time.Duration with YAML unmarshalling from strings
// like "10s" or "2m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Task: TaskConfig{
			GracePeriod: Duration(10 * time.Second),
		},
	}
}

// Load reads the config file at path, or falls back to the
// BOLLARD_CONFIG environment variable when path is empty, or to
// Default() when neither is set. The loaded config is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BOLLARD_CONFIG")
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks field values. Called by Load; exported so embedders
// constructing a Config directly can check it too.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	if c.Task.GracePeriod < 0 {
		return fmt.Errorf("task.grace_period must not be negative")
	}
	return nil
}
