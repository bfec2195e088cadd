// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bollard.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOLLARD_CONFIG", "")
	config, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if config.Logging.Level != "info" {
		t.Errorf("default logging.level = %q, want info", config.Logging.Level)
	}
	if time.Duration(config.Task.GracePeriod) != 10*time.Second {
		t.Errorf("default grace period = %v, want 10s", time.Duration(config.Task.GracePeriod))
	}
	if config.Cache.Directory != "" {
		t.Errorf("default cache.directory = %q, want empty", config.Cache.Directory)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
task:
  grace_period: 2m30s
cache:
  directory: /var/cache/bollard
`)
	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Logging.Level != "debug" || config.Logging.Format != "json" {
		t.Errorf("logging = %+v, want debug/json", config.Logging)
	}
	if time.Duration(config.Task.GracePeriod) != 2*time.Minute+30*time.Second {
		t.Errorf("grace period = %v, want 2m30s", time.Duration(config.Task.GracePeriod))
	}
	if config.Cache.Directory != "/var/cache/bollard" {
		t.Errorf("cache.directory = %q", config.Cache.Directory)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: warn\n")
	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("logging.level = %q, want warn", config.Logging.Level)
	}
	if config.Logging.Format != "text" {
		t.Errorf("logging.format = %q, want default text", config.Logging.Format)
	}
	if time.Duration(config.Task.GracePeriod) != 10*time.Second {
		t.Errorf("grace period = %v, want default 10s", time.Duration(config.Task.GracePeriod))
	}
}

func TestLoadEnvVariable(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")
	t.Setenv("BOLLARD_CONFIG", path)
	config, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Logging.Level != "error" {
		t.Errorf("logging.level = %q, want error", config.Logging.Level)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad_level", "logging:\n  level: verbose\n", "logging.level"},
		{"bad_format", "logging:\n  format: xml\n", "logging.format"},
		{"bad_duration", "task:\n  grace_period: soon\n", "parsing duration"},
		{"not_yaml", "{{{{", "parsing config"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeConfig(t, test.content)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load = nil error, want error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, test.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load of a missing explicit path = nil error")
	}
}
