// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact resolves a task bundle into everything the engine
// and triggers need: the parsed descriptor, typed trigger
// configurations, the decompressed component bytes, their content
// hash, and the resolved variable map.
//
// Resolution is a pure read of the bundle: nothing is cached, nothing
// is written, and the returned [Artifact] is immutable from the
// caller's point of view.
package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bollard-runtime/bollard/manifest"
	"github.com/bollard-runtime/bollard/trigger"
)

// ErrNotFound reports that a bundle's declared component file does
// not exist.
var ErrNotFound = errors.New("component not found")

// Artifact is a fully resolved task bundle. Immutable after Resolve.
type Artifact struct {
	// Name is the application name from the descriptor.
	Name string

	// Manifest is the parsed descriptor.
	Manifest *manifest.Application

	// Triggers holds the typed trigger configurations in
	// declaration order. Executor construction, result collection,
	// and failure attribution all follow this order.
	Triggers []trigger.Config

	// Source is the decompressed component bytes.
	Source []byte

	// Hash is the content hash of Source.
	Hash Hash

	// Variables is the resolved variable map: descriptor defaults
	// overridden by the environment.
	Variables map[string]string
}

// Resolver turns bundle paths into Artifacts.
type Resolver struct {
	// Lookup resolves variable overrides. Defaults to
	// os.LookupEnv.
	Lookup func(string) (string, bool)

	// Logger receives resolution diagnostics. Required.
	Logger *slog.Logger
}

// Resolve loads and validates the bundle's descriptor, parses its
// trigger configurations, reads and decompresses the component file,
// and resolves the application's variables.
//
// Distinct failures keep distinct identities: a missing component
// file wraps [ErrNotFound], an unknown trigger kind wraps
// [trigger.ErrUnsupported], and a malformed descriptor carries a
// *manifest.ValidationError.
func (r *Resolver) Resolve(bundlePath string) (*Artifact, error) {
	application, err := manifest.Load(bundlePath)
	if err != nil {
		return nil, err
	}

	configs, err := trigger.ParseConfigs(application)
	if err != nil {
		return nil, err
	}

	source, err := r.readComponent(bundlePath, application.Component)
	if err != nil {
		return nil, err
	}

	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	variables, err := manifest.ResolveVariables(application.Variables, lookup)
	if err != nil {
		return nil, fmt.Errorf("application %q: %w", application.Name, err)
	}

	artifact := &Artifact{
		Name:      application.Name,
		Manifest:  application,
		Triggers:  configs,
		Source:    source,
		Hash:      HashComponent(source),
		Variables: variables,
	}
	r.Logger.Info("bundle resolved",
		"application", artifact.Name,
		"hash", artifact.Hash.String(),
		"component_bytes", len(artifact.Source),
		"triggers", len(artifact.Triggers))
	return artifact, nil
}

// readComponent loads the component file named by the descriptor.
// Mirrors the descriptor lookup: the path is tried relative to the
// bundle root, then relative to rootfs/.
func (r *Resolver) readComponent(bundlePath string, component manifest.Component) ([]byte, error) {
	candidates := []string{
		filepath.Join(bundlePath, component.Path),
		filepath.Join(bundlePath, "rootfs", component.Path),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading component %s: %w", path, err)
		}
		decompressed, err := decompressLayer(data, component.MediaType)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", path, err)
		}
		return decompressed, nil
	}
	return nil, fmt.Errorf("component %s in bundle %s: %w", component.Path, bundlePath, ErrNotFound)
}
