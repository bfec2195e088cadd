// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bollard-runtime/bollard/lib/cron"
)

// cronExecutor invokes the trigger's export on a cron schedule. A
// failed scheduled invocation is an internal executor failure: a
// scheduled command that breaks should surface in the task outcome,
// not silently skip to the next occurrence.
type cronExecutor struct {
	id     string
	config *CronConfig
	export string
	deps   Deps

	schedule cron.Schedule

	closeOnce sync.Once
	closed    chan struct{}
}

func newCronExecutor(config Config, deps Deps) (Executor, error) {
	if config.Cron == nil {
		return nil, fmt.Errorf("trigger %q: cron config missing", config.ID)
	}
	return &cronExecutor{
		id:     config.ID,
		config: config.Cron,
		export: config.Export,
		deps:   deps,
		closed: make(chan struct{}),
	}, nil
}

func (e *cronExecutor) Name() string { return e.id }

// Start validates the schedule expression. A malformed expression is
// a startup error that aborts the whole task start.
func (e *cronExecutor) Start(ctx context.Context) error {
	schedule, err := cron.Parse(e.config.Schedule)
	if err != nil {
		return fmt.Errorf("trigger %q: %w", e.id, err)
	}
	e.schedule = schedule
	e.deps.Logger.Info("cron trigger scheduled", "trigger", e.id, "schedule", e.config.Schedule)
	return nil
}

func (e *cronExecutor) Run(ctx context.Context) error {
	for {
		now := e.deps.Clock.Now()
		next, err := e.schedule.Next(now)
		if err != nil {
			return fmt.Errorf("trigger %q: %w", e.id, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.closed:
			return ctx.Err()
		case <-e.deps.Clock.After(next.Sub(now)):
		}

		if _, err := e.deps.Invoker.Invoke(ctx, Invocation{
			Export: e.export,
			Args:   e.config.Args,
			Env: invocationEnv(e.deps.Variables, map[string]string{
				"CRON_FIRE_TIME": next.UTC().Format(time.RFC3339),
			}),
		}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("trigger %q: scheduled invocation: %w", e.id, err)
		}
	}
}

// Close unblocks Run's schedule wait. The in-flight invocation, if
// any, is aborted through its context by the supervisor's cancel.
// Idempotent.
func (e *cronExecutor) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}
