// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine compiles component bytes into invokable modules and
// caches the results.
//
// The [Engine] interface abstracts the WebAssembly runtime;
// [NewWazero] is the production implementation. [Factory] sits in
// front of an Engine with a process-wide, append-only cache keyed by
// content hash, so every task running the same component shares one
// compiled module. An optional disk layer persists precompiled
// modules across shim restarts for engines that support
// serialization.
package engine

import (
	"context"
	"fmt"

	"github.com/bollard-runtime/bollard/artifact"
	"github.com/bollard-runtime/bollard/trigger"
)

// Engine compiles component bytes into modules.
type Engine interface {
	// Name identifies the engine implementation. Precompiled disk
	// cache entries are scoped by it: bytes serialized by one
	// engine are never fed to another.
	Name() string

	// Compile validates and compiles source. The returned module is
	// safe for concurrent invocation.
	Compile(ctx context.Context, source []byte) (CompiledModule, error)

	// Close releases the engine and everything compiled by it.
	Close(ctx context.Context) error
}

// CompiledModule is a compiled component, shared by every executor of
// a task. Invoke runs one export in a fresh instance; concurrent
// invocations are independent.
type CompiledModule interface {
	trigger.Invoker

	// Close releases the module. The Factory owns module lifetime;
	// executors never call this.
	Close(ctx context.Context) error
}

// Precompiler is an optional Engine capability: serializing compiled
// modules to bytes and loading them back. Engines that implement it
// participate in the factory's disk cache.
type Precompiler interface {
	Precompile(ctx context.Context, source []byte) ([]byte, error)
	LoadPrecompiled(ctx context.Context, precompiled []byte) (CompiledModule, error)
}

// CompileError reports a component that the engine rejected.
type CompileError struct {
	// Hash identifies the component.
	Hash artifact.Hash

	// Err is the engine's rejection.
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling component %s: %v", e.Hash, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
