// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/bollard-runtime/bollard/trigger"
)

// precompiledMagic prefixes Fake's serialized bodies so
// LoadPrecompiled can tell genuine entries from corruption.
var precompiledMagic = []byte("bollard-fake-precompiled\x00")

// Fake is an in-memory Engine for tests. It counts calls, returns
// scripted invocation results, and implements [Precompiler] so
// factory disk-cache behavior is testable without a real runtime.
type Fake struct {
	mu              sync.Mutex
	compileCalls    int
	precompileCalls int
	loadCalls       int

	// CompileErr, when set, fails every Compile.
	CompileErr error

	// InvokeResult and InvokeErr script the modules' Invoke.
	InvokeResult trigger.InvokeResult
	InvokeErr    error
}

// NewFake returns a Fake with zeroed counters.
func NewFake() *Fake { return &Fake{} }

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Compile(_ context.Context, source []byte) (CompiledModule, error) {
	f.mu.Lock()
	f.compileCalls++
	f.mu.Unlock()
	if f.CompileErr != nil {
		return nil, f.CompileErr
	}
	return &fakeModule{engine: f, source: append([]byte(nil), source...)}, nil
}

func (f *Fake) Precompile(_ context.Context, source []byte) ([]byte, error) {
	f.mu.Lock()
	f.precompileCalls++
	f.mu.Unlock()
	return append(append([]byte(nil), precompiledMagic...), source...), nil
}

func (f *Fake) LoadPrecompiled(_ context.Context, precompiled []byte) (CompiledModule, error) {
	f.mu.Lock()
	f.loadCalls++
	f.mu.Unlock()
	source, ok := bytes.CutPrefix(precompiled, precompiledMagic)
	if !ok {
		return nil, errors.New("precompiled bytes lack the expected header")
	}
	return &fakeModule{engine: f, source: append([]byte(nil), source...)}, nil
}

func (f *Fake) Close(context.Context) error { return nil }

// CompileCalls reports how many times Compile ran.
func (f *Fake) CompileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compileCalls
}

// PrecompileCalls reports how many times Precompile ran.
func (f *Fake) PrecompileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.precompileCalls
}

// LoadCalls reports how many times LoadPrecompiled ran.
func (f *Fake) LoadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadCalls
}

type fakeModule struct {
	engine *Fake
	source []byte
}

func (m *fakeModule) Invoke(_ context.Context, _ trigger.Invocation) (trigger.InvokeResult, error) {
	return m.engine.InvokeResult, m.engine.InvokeErr
}

func (m *fakeModule) Close(context.Context) error { return nil }
