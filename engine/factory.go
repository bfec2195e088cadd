// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bollard-runtime/bollard/artifact"
)

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// Engine performs compilation. Required.
	Engine Engine

	// Logger receives cache diagnostics. Required.
	Logger *slog.Logger

	// CacheDirectory, when non-empty, enables the precompiled disk
	// layer for engines implementing [Precompiler]. Best-effort:
	// disk failures degrade to in-memory behavior, never to task
	// failure.
	CacheDirectory string
}

// Factory hands out compiled modules, compiling each distinct
// component at most once per process.
//
// The cache is append-only: an entry, once published, is immutable
// and lives until Close. Compilation failures are not cached, so a
// transient failure (context cancellation, disk pressure in the
// engine) does not poison the hash.
type Factory struct {
	engine Engine
	logger *slog.Logger
	disk   *diskCache

	mu      sync.Mutex
	modules map[artifact.Hash]CompiledModule
	closed  bool
}

// NewFactory builds a Factory. When cfg.CacheDirectory is set and the
// engine implements [Precompiler], the disk layer is opened (created
// if absent); a directory that cannot be opened disables the layer
// with a warning rather than failing construction.
func NewFactory(cfg FactoryConfig) *Factory {
	factory := &Factory{
		engine:  cfg.Engine,
		logger:  cfg.Logger,
		modules: make(map[artifact.Hash]CompiledModule),
	}

	if cfg.CacheDirectory != "" {
		if _, ok := cfg.Engine.(Precompiler); ok {
			disk, err := openDiskCache(cfg.CacheDirectory, cfg.Logger)
			if err != nil {
				cfg.Logger.Warn("precompiled cache disabled",
					"directory", cfg.CacheDirectory, "error", err)
			} else {
				factory.disk = disk
			}
		}
	}
	return factory
}

// ModuleFor returns the compiled module for art, compiling on first
// use. Concurrent callers with the same hash are serialized; exactly
// one compiles, the rest observe the published entry.
func (f *Factory) ModuleFor(ctx context.Context, art *artifact.Artifact) (CompiledModule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, &CompileError{Hash: art.Hash, Err: context.Canceled}
	}
	if module, ok := f.modules[art.Hash]; ok {
		f.logger.Debug("compilation cache hit", "hash", art.Hash.String())
		return module, nil
	}

	module, err := f.compileLocked(ctx, art)
	if err != nil {
		return nil, err
	}
	f.modules[art.Hash] = module
	return module, nil
}

// compileLocked produces the module for a cache miss: the disk layer
// first when available, the engine otherwise. Called with f.mu held.
func (f *Factory) compileLocked(ctx context.Context, art *artifact.Artifact) (CompiledModule, error) {
	precompiler, _ := f.engine.(Precompiler)

	if f.disk != nil && precompiler != nil {
		if precompiled, ok := f.disk.load(art.Hash, f.engine.Name()); ok {
			module, err := precompiler.LoadPrecompiled(ctx, precompiled)
			if err == nil {
				f.logger.Info("loaded precompiled component",
					"hash", art.Hash.String(), "application", art.Name)
				return module, nil
			}
			// A stale or corrupt entry is a miss, not a failure.
			f.logger.Warn("precompiled entry rejected, recompiling",
				"hash", art.Hash.String(), "error", err)
		}
	}

	module, err := f.engine.Compile(ctx, art.Source)
	if err != nil {
		return nil, &CompileError{Hash: art.Hash, Err: err}
	}
	f.logger.Info("compiled component",
		"hash", art.Hash.String(), "application", art.Name, "bytes", len(art.Source))

	if f.disk != nil && precompiler != nil {
		if precompiled, err := precompiler.Precompile(ctx, art.Source); err != nil {
			f.logger.Warn("precompilation failed", "hash", art.Hash.String(), "error", err)
		} else if err := f.disk.store(art.Hash, f.engine.Name(), precompiled); err != nil {
			f.logger.Warn("storing precompiled entry failed",
				"hash", art.Hash.String(), "error", err)
		}
	}
	return module, nil
}

// Close releases every cached module and the engine. The factory
// rejects further ModuleFor calls.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	var firstErr error
	for hash, module := range f.modules {
		if err := module.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.modules, hash)
	}
	if err := f.engine.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
