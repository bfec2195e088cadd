// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/bollard-runtime/bollard/trigger"
)

// WazeroConfig configures the wazero-backed engine.
type WazeroConfig struct {
	// Logger receives engine diagnostics. Required.
	Logger *slog.Logger

	// CacheDirectory, when non-empty, enables wazero's own
	// compilation cache there, persisting compiled machine code
	// across shim restarts.
	CacheDirectory string
}

// wazeroEngine is the production Engine. It compiles with wazero's
// ahead-of-time compiler and runs components as WASI command modules:
// one fresh instance per invocation, export name as argv[0], payload
// on stdin, result on stdout.
//
// wazero manages compiled-code persistence itself through its
// compilation cache, so this engine does not implement [Precompiler];
// the factory's generic disk layer stays inert and CacheDirectory
// here serves the same purpose.
type wazeroEngine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	logger  *slog.Logger
}

// NewWazero builds the production engine.
func NewWazero(ctx context.Context, cfg WazeroConfig) (Engine, error) {
	runtimeConfig := wazero.NewRuntimeConfig()

	var cache wazero.CompilationCache
	if cfg.CacheDirectory != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDirectory)
		if err != nil {
			return nil, fmt.Errorf("opening compilation cache %s: %w", cfg.CacheDirectory, err)
		}
		runtimeConfig = runtimeConfig.WithCompilationCache(cache)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("instantiating WASI host module: %w", err)
	}

	return &wazeroEngine{runtime: runtime, cache: cache, logger: cfg.Logger}, nil
}

func (e *wazeroEngine) Name() string { return "wazero" }

func (e *wazeroEngine) Compile(ctx context.Context, source []byte) (CompiledModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, source)
	if err != nil {
		return nil, err
	}
	return &wazeroModule{engine: e, compiled: compiled}, nil
}

func (e *wazeroEngine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cacheErr := e.cache.Close(ctx); cacheErr != nil && err == nil {
			err = cacheErr
		}
	}
	return err
}

// wazeroModule is one compiled component.
type wazeroModule struct {
	engine   *wazeroEngine
	compiled wazero.CompiledModule
}

// Invoke instantiates the module fresh and runs it to completion.
// The anonymous module name lets concurrent invocations of the same
// compiled module coexist in the runtime's namespace.
func (m *wazeroModule) Invoke(ctx context.Context, call trigger.Invocation) (trigger.InvokeResult, error) {
	var stdout, stderr bytes.Buffer

	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithArgs(append([]string{call.Export}, call.Args...)...).
		WithStdin(bytes.NewReader(call.Payload)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	// Deterministic environment order: invocation results must not
	// depend on Go map iteration.
	names := make([]string, 0, len(call.Env))
	for name := range call.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		moduleConfig = moduleConfig.WithEnv(name, call.Env[name])
	}

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, moduleConfig)
	if instance != nil {
		defer instance.Close(ctx)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) {
			return trigger.InvokeResult{}, fmt.Errorf("invoking %q: %w", call.Export, err)
		}
		// WASI commands report success by exiting 0; that surfaces
		// here as an ExitError, not as nil.
		if code := exitErr.ExitCode(); code != 0 {
			return trigger.InvokeResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()},
				fmt.Errorf("invoking %q: exit status %d", call.Export, code)
		}
	}

	return trigger.InvokeResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

func (m *wazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
