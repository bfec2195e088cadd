// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDescriptor = `{
	// The billing demo application.
	"name": "billing",
	"component": {
		"path": "billing.wasm",
		"media_type": "application/wasm+zstd",
	},
	"triggers": [
		{"type": "http", "id": "api", "address": "127.0.0.1:8080", "routes": [
			{"path": "/invoices", "export": "handle-invoice"},
		]},
		{"type": "redis", "id": "orders", "address": "redis://127.0.0.1:6379", "channel": "orders"},
		{"type": "cron", "id": "nightly", "schedule": "0 3 * * *"},
	],
	"variables": {
		"db_url": {"required": true},
		"region": {"default": "eu-west-1"},
	},
}`

func TestParseSample(t *testing.T) {
	application, err := Parse([]byte(sampleDescriptor))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if application.Name != "billing" {
		t.Errorf("Name = %q, want billing", application.Name)
	}
	if application.Component.MediaType != "application/wasm+zstd" {
		t.Errorf("MediaType = %q", application.Component.MediaType)
	}
	if len(application.Triggers) != 3 {
		t.Fatalf("len(Triggers) = %d, want 3", len(application.Triggers))
	}
	if got := application.Triggers[2].ExportFor(); got != "nightly" {
		t.Errorf("cron ExportFor() = %q, want the trigger id", got)
	}
	if got := application.Triggers[0].Routes[0].Export; got != "handle-invoice" {
		t.Errorf("route export = %q", got)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		wantIssue  string
	}{
		{
			"missing_name",
			`{"component": {"path": "a.wasm"}, "triggers": [{"type": "command", "id": "run"}]}`,
			"name is required",
		},
		{
			"missing_component",
			`{"name": "x", "triggers": [{"type": "command", "id": "run"}]}`,
			"component.path is required",
		},
		{
			"absolute_component",
			`{"name": "x", "component": {"path": "/a.wasm"}, "triggers": [{"type": "command", "id": "run"}]}`,
			"must be relative",
		},
		{
			"no_triggers",
			`{"name": "x", "component": {"path": "a.wasm"}}`,
			"at least one trigger",
		},
		{
			"trigger_without_id",
			`{"name": "x", "component": {"path": "a.wasm"}, "triggers": [{"type": "http"}]}`,
			"id is required",
		},
		{
			"duplicate_trigger_id",
			`{"name": "x", "component": {"path": "a.wasm"}, "triggers": [
				{"type": "http", "id": "t"}, {"type": "cron", "id": "t"}]}`,
			"duplicate id",
		},
		{
			"not_json",
			`{"name": `,
			"parsing descriptor",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.descriptor))
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Parse error = %v, want *ValidationError", err)
			}
			if !strings.Contains(err.Error(), test.wantIssue) {
				t.Errorf("error = %q, want it to contain %q", err, test.wantIssue)
			}
		})
	}
}

func TestValidateCollectsAllIssues(t *testing.T) {
	_, err := Parse([]byte(`{"triggers": [{"type": "http"}]}`))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if len(validationErr.Issues) < 3 {
		t.Errorf("Issues = %v, want name, component, and trigger id all reported", validationErr.Issues)
	}
}

func TestLoadFromBundle(t *testing.T) {
	bundle := t.TempDir()
	writeDescriptor(t, filepath.Join(bundle, DescriptorName))

	application, err := Load(bundle)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if application.Name != "billing" {
		t.Errorf("Name = %q", application.Name)
	}
}

func TestLoadFromRootfs(t *testing.T) {
	bundle := t.TempDir()
	if err := os.MkdirAll(filepath.Join(bundle, "rootfs"), 0755); err != nil {
		t.Fatal(err)
	}
	writeDescriptor(t, filepath.Join(bundle, "rootfs", DescriptorName))

	if _, err := Load(bundle); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadMissingDescriptor(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("Load = nil error for a bundle without a descriptor")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want it to wrap os.ErrNotExist", err)
	}
}

func writeDescriptor(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(sampleDescriptor), 0600); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}
}

func TestResolveVariables(t *testing.T) {
	declarations := map[string]Variable{
		"db_url": {Required: true},
		"region": {Default: "eu-west-1"},
		"debug":  {},
	}
	lookup := func(key string) (string, bool) {
		if key == "BOLLARD_VARIABLE_DB_URL" {
			return "postgres://db", true
		}
		return "", false
	}

	resolved, err := ResolveVariables(declarations, lookup)
	if err != nil {
		t.Fatalf("ResolveVariables: %v", err)
	}
	want := map[string]string{"db_url": "postgres://db", "region": "eu-west-1", "debug": ""}
	for name, value := range want {
		if resolved[name] != value {
			t.Errorf("resolved[%q] = %q, want %q", name, resolved[name], value)
		}
	}
}

func TestResolveVariablesMissingRequired(t *testing.T) {
	declarations := map[string]Variable{
		"db_url": {Required: true},
		"token":  {Required: true},
	}
	lookup := func(string) (string, bool) { return "", false }

	_, err := ResolveVariables(declarations, lookup)
	if err == nil {
		t.Fatal("ResolveVariables = nil error with required variables unset")
	}
	// Both missing variables are reported, in sorted order.
	if !strings.Contains(err.Error(), "db_url, token") {
		t.Errorf("error = %q, want both missing variables listed", err)
	}
}

func TestResolveVariablesBadName(t *testing.T) {
	_, err := ResolveVariables(map[string]Variable{"not-a-name": {}}, func(string) (string, bool) { return "", false })
	if err == nil {
		t.Fatal("ResolveVariables accepted an invalid variable name")
	}
}
