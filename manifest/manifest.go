// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest loads and validates Bollard application
// descriptors.
//
// A descriptor is authored as a JSONC file (JSON extended with //
// line comments, /* block comments */, and trailing commas) named
// app.jsonc at the root of the task bundle. It declares the packaged
// component, the set of triggers that drive it, and the application's
// variables.
//
// The typical flow:
//
//  1. Load: bundle directory → Application
//  2. Validate: structural checks (run automatically by Load)
//  3. trigger.ParseConfigs: typed per-kind trigger configuration
//  4. ResolveVariables: defaults + environment → variable map
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// DescriptorName is the descriptor's file name inside a bundle.
const DescriptorName = "app.jsonc"

// Application is the parsed application descriptor.
type Application struct {
	// Name identifies the application. Used in logs and cache
	// diagnostics, not for addressing.
	Name string `json:"name"`

	// Component describes the packaged component artifact.
	Component Component `json:"component"`

	// Triggers declares the event sources that drive the component.
	// A task runs one executor per entry.
	Triggers []Trigger `json:"triggers"`

	// Variables declares the application's configuration variables.
	// Resolved values are passed to every invocation's environment.
	Variables map[string]Variable `json:"variables"`
}

// Component describes the packaged component artifact.
type Component struct {
	// Path locates the component file, relative to the descriptor.
	Path string `json:"path"`

	// MediaType declares how the component bytes are stored. The
	// base type is application/wasm; a +gzip, +zstd, or +lz4 suffix
	// declares layer compression. Empty means raw.
	MediaType string `json:"media_type"`
}

// Trigger is one declared trigger. Type selects the kind; the
// remaining fields are kind-specific and validated by
// trigger.ParseConfigs.
type Trigger struct {
	// Type is the trigger kind: http, redis, cron, or command.
	Type string `json:"type"`

	// ID names this trigger within the application. Required and
	// unique; failure attribution in the task's final outcome uses
	// it.
	ID string `json:"id"`

	// Export names the component export the trigger invokes.
	// Defaults to the trigger ID.
	Export string `json:"export"`

	// Address is the listen address (http) or broker URL (redis).
	Address string `json:"address"`

	// Routes maps URL paths to exports (http only).
	Routes []Route `json:"routes"`

	// Channel is the subscription channel (redis only).
	Channel string `json:"channel"`

	// Schedule is a 5-field cron expression (cron only).
	Schedule string `json:"schedule"`

	// Args are extra invocation arguments (command and cron).
	Args []string `json:"args"`
}

// Route maps one URL path to a component export.
type Route struct {
	Path   string `json:"path"`
	Export string `json:"export"`
}

// Variable declares one application variable.
type Variable struct {
	// Default is the value used when the environment provides none.
	Default string `json:"default"`

	// Required rejects task creation when neither a default nor an
	// environment value exists.
	Required bool `json:"required"`
}

// ValidationError reports structural problems in a descriptor. It
// collects every issue found rather than stopping at the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid manifest: %s", strings.Join(e.Issues, "; "))
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals and validates the result.
func Parse(data []byte) (*Application, error) {
	stripped := jsonc.ToJSON(data)

	var application Application
	if err := json.Unmarshal(stripped, &application); err != nil {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("parsing descriptor: %v", err)}}
	}

	if err := application.Validate(); err != nil {
		return nil, err
	}
	return &application, nil
}

// Load reads the descriptor from a bundle directory and parses it.
// The descriptor is looked up at <bundle>/app.jsonc, then at
// <bundle>/rootfs/app.jsonc (the layout produced when the bundle
// carries an unpacked OCI rootfs).
func Load(bundlePath string) (*Application, error) {
	candidates := []string{
		filepath.Join(bundlePath, DescriptorName),
		filepath.Join(bundlePath, "rootfs", DescriptorName),
	}

	var firstErr error
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		application, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return application, nil
	}
	return nil, fmt.Errorf("no %s in bundle %s: %w", DescriptorName, bundlePath, firstErr)
}

// Validate performs structural checks and returns a *ValidationError
// listing every problem, or nil when the descriptor is well-formed.
// Kind-specific trigger fields are checked later, by
// trigger.ParseConfigs, which knows the closed set of kinds.
func (a *Application) Validate() error {
	var issues []string

	if a.Name == "" {
		issues = append(issues, "name is required")
	}
	if a.Component.Path == "" {
		issues = append(issues, "component.path is required")
	}
	if filepath.IsAbs(a.Component.Path) {
		issues = append(issues, "component.path must be relative to the bundle")
	}
	if len(a.Triggers) == 0 {
		issues = append(issues, "at least one trigger is required")
	}

	seen := make(map[string]bool, len(a.Triggers))
	for i, trigger := range a.Triggers {
		if trigger.Type == "" {
			issues = append(issues, fmt.Sprintf("triggers[%d]: type is required", i))
		}
		if trigger.ID == "" {
			issues = append(issues, fmt.Sprintf("triggers[%d]: id is required", i))
			continue
		}
		if seen[trigger.ID] {
			issues = append(issues, fmt.Sprintf("triggers[%d]: duplicate id %q", i, trigger.ID))
		}
		seen[trigger.ID] = true
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ExportFor returns the export a trigger invokes: the explicit Export
// field, or the trigger ID when unset.
func (t *Trigger) ExportFor() string {
	if t.Export != "" {
		return t.Export
	}
	return t.ID
}
