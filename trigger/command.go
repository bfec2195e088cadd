// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"fmt"
	"sync"
)

// commandExecutor invokes the trigger's export exactly once when the
// task starts and completes when the invocation returns. A task whose
// only trigger is a command behaves like a batch process: run to
// completion, exit with the invocation's outcome.
type commandExecutor struct {
	id     string
	export string
	config *CommandConfig
	deps   Deps

	closeOnce sync.Once
}

func newCommandExecutor(config Config, deps Deps) (Executor, error) {
	if config.Command == nil {
		return nil, fmt.Errorf("trigger %q: command config missing", config.ID)
	}
	return &commandExecutor{
		id:     config.ID,
		export: config.Export,
		config: config.Command,
		deps:   deps,
	}, nil
}

func (e *commandExecutor) Name() string { return e.id }

// Start has no external resources to acquire.
func (e *commandExecutor) Start(ctx context.Context) error { return nil }

func (e *commandExecutor) Run(ctx context.Context) error {
	result, err := e.deps.Invoker.Invoke(ctx, Invocation{
		Export: e.export,
		Args:   e.config.Args,
		Env:    invocationEnv(e.deps.Variables, nil),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("trigger %q: %w", e.id, err)
	}
	if len(result.Stderr) > 0 {
		e.deps.Logger.Warn("command wrote to stderr", "trigger", e.id, "bytes", len(result.Stderr))
	}
	return nil
}

// Close has nothing to release: the in-flight invocation, if any, is
// aborted through its context.
func (e *commandExecutor) Close() error {
	e.closeOnce.Do(func() {})
	return nil
}
