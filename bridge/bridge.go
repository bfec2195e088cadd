// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the task lifecycle controller: it carries a task
// through Created, Running, Stopping, Stopped, and Deleted, supervises
// the task's trigger executors, and aggregates their terminal results
// into one exit outcome.
//
// A Bridge holds at most one task at a time, matching the
// one-shim-per-container model. All lifecycle entry points are
// serialized by a single mutex held only long enough to validate the
// transition and kick work off; executors run on their own
// goroutines, and Wait suspends on a broadcast channel rather than
// inside the lock.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bollard-runtime/bollard/artifact"
	"github.com/bollard-runtime/bollard/engine"
	"github.com/bollard-runtime/bollard/lib/clock"
	"github.com/bollard-runtime/bollard/trigger"
)

// Config configures a Bridge.
type Config struct {
	// Logger receives lifecycle events. Required.
	Logger *slog.Logger

	// Clock drives grace periods and timestamps. Required; tests
	// inject a fake.
	Clock clock.Clock

	// GracePeriod bounds graceful shutdown for catchable signals.
	GracePeriod time.Duration

	// Resolver turns bundle paths into artifacts. Required.
	Resolver *artifact.Resolver

	// Factory hands out compiled modules. Required.
	Factory *engine.Factory

	// Constructors overrides the executor constructor table. Nil
	// means trigger.Constructors().
	Constructors map[trigger.Kind]trigger.Constructor
}

// Bridge is the lifecycle controller.
type Bridge struct {
	config       Config
	constructors map[trigger.Kind]trigger.Constructor

	mu   sync.Mutex
	task *task
}

// task is the bridge's single task. Mutated only by the lifecycle
// controller, under the bridge mutex.
type task struct {
	id        string
	state     State
	artifact  *artifact.Artifact
	module    engine.CompiledModule
	super     *supervisor
	startedAt time.Time

	termination Termination

	// done is closed exactly once, when exit is published. Waiters
	// block on it; after it closes, exit is immutable.
	done chan struct{}
	exit Exit
}

// New builds a Bridge.
func New(config Config) *Bridge {
	constructors := config.Constructors
	if constructors == nil {
		constructors = trigger.Constructors()
	}
	return &Bridge{config: config, constructors: constructors}
}

// Create resolves the bundle, compiles (or fetches from cache) its
// component, and registers the task in state Created. Valid only when
// the bridge holds no task. Resolution and compilation failures leave
// no task behind.
func (b *Bridge) Create(ctx context.Context, taskID, bundlePath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.task != nil {
		return &InvalidStateError{Current: b.task.state, Attempted: "create"}
	}

	resolved, err := b.config.Resolver.Resolve(bundlePath)
	if err != nil {
		return fmt.Errorf("creating task %q: %w", taskID, err)
	}
	module, err := b.config.Factory.ModuleFor(ctx, resolved)
	if err != nil {
		return fmt.Errorf("creating task %q: %w", taskID, err)
	}

	b.task = &task{
		id:       taskID,
		state:    StateCreated,
		artifact: resolved,
		module:   module,
		done:     make(chan struct{}),
	}
	b.config.Logger.Info("task created",
		"task", taskID, "application", resolved.Name, "hash", resolved.Hash.String())
	return nil
}

// Start launches one executor per configured trigger. On success the
// task is Running. If any executor fails to start, everything already
// started is rolled back, the task moves directly to Stopped with an
// executor-failure outcome, and the *PartialStartError is returned.
func (b *Bridge) Start(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.state != StateCreated {
		return &InvalidStateError{Current: t.state, Attempted: "start"}
	}

	deps := trigger.Deps{
		Invoker:   t.module,
		Variables: t.artifact.Variables,
		Logger:    b.config.Logger,
		Clock:     b.config.Clock,
	}
	super, err := startSupervisor(ctx, t.artifact.Triggers, b.constructors, deps,
		b.config.Logger, b.config.Clock)
	if err != nil {
		// Partial startup is never left running: the supervisor
		// rolled everything back, the task ends Stopped.
		var partial *PartialStartError
		if errors.As(err, &partial) {
			b.publishLocked(t, Outcome{
				Kind:    OutcomeExecutorFailed,
				Trigger: partial.Trigger,
				Err:     partial.Err,
			})
		}
		return fmt.Errorf("starting task %q: %w", taskID, err)
	}

	t.super = super
	t.state = StateRunning
	t.startedAt = b.config.Clock.Now()
	super.run(ctx)

	go b.finalize(t)

	b.config.Logger.Info("task started",
		"task", taskID, "triggers", len(t.artifact.Triggers), "started_at", t.startedAt)
	return nil
}

// finalize waits for every executor to terminate, then publishes the
// aggregated outcome and moves the task to Stopped.
func (b *Bridge) finalize(t *task) {
	<-t.super.wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked(t, ResolveOutcome(t.super.collected(), t.termination))
}

// publishLocked records the final outcome, closes the broadcast
// channel, and moves the task to Stopped. Called with b.mu held, at
// most once per task.
func (b *Bridge) publishLocked(t *task, outcome Outcome) {
	t.state = StateStopped
	t.exit = Exit{
		Outcome: outcome,
		Code:    outcome.ExitCode(),
		At:      b.config.Clock.Now(),
	}
	close(t.done)
	b.config.Logger.Info("task stopped",
		"task", t.id, "outcome", outcome.String(), "exit_code", t.exit.Code)
}

// Kill delivers a signal: the supervisor begins graceful shutdown
// bounded by the signal's grace period, and the task moves to
// Stopping. Valid from Running or Stopping; a stronger follow-up
// signal while Stopping shortens the remaining grace (SIGKILL forces
// immediately). The published outcome carries the most recent signal.
func (b *Bridge) Kill(ctx context.Context, taskID string, signal unix.Signal) error {
	b.mu.Lock()
	t, err := b.taskLocked(taskID)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if t.state != StateRunning && t.state != StateStopping {
		b.mu.Unlock()
		return &InvalidStateError{Current: t.state, Attempted: "kill"}
	}

	t.termination.Signalled = true
	t.termination.Signal = signal
	t.termination.CancelRequested = true
	t.state = StateStopping
	super := t.super
	grace := graceFor(signal, b.config.GracePeriod)
	b.mu.Unlock()

	b.config.Logger.Info("task signalled",
		"task", taskID, "signal", unix.SignalName(signal), "grace", grace)
	super.cancel(grace)
	return nil
}

// Shutdown stops a running task without a signal, as on shim exit.
// The outcome is Cancelled unless an executor failure takes priority.
// A bridge with no running task is left alone.
func (b *Bridge) Shutdown(ctx context.Context) {
	b.mu.Lock()
	t := b.task
	if t == nil || (t.state != StateRunning && t.state != StateStopping) {
		b.mu.Unlock()
		return
	}
	t.termination.CancelRequested = true
	t.state = StateStopping
	super := t.super
	b.mu.Unlock()

	b.config.Logger.Info("task shutdown requested", "task", t.id)
	super.cancel(b.config.GracePeriod)
}

// Wait blocks until the task's final outcome is published, or ctx is
// cancelled. Valid once the task has started (Running or later);
// every waiter, before or after completion, observes the identical
// Exit. Waiting does not affect the task.
func (b *Bridge) Wait(ctx context.Context, taskID string) (Exit, error) {
	b.mu.Lock()
	t, err := b.taskLocked(taskID)
	if err != nil {
		b.mu.Unlock()
		return Exit{}, err
	}
	if t.state == StateCreated {
		b.mu.Unlock()
		return Exit{}, &InvalidStateError{Current: t.state, Attempted: "wait"}
	}
	done := t.done
	b.mu.Unlock()

	select {
	case <-done:
		return t.exit, nil
	case <-ctx.Done():
		return Exit{}, ctx.Err()
	}
}

// Delete releases the task's resources. Valid only from Stopped;
// afterwards the bridge is empty and a new task may be created. The
// compiled module stays in the factory cache for future tasks.
func (b *Bridge) Delete(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.state != StateStopped {
		return fmt.Errorf("deleting task %q in state %s: %w", taskID, t.state, ErrTaskNotStopped)
	}

	t.state = StateDeleted
	t.super = nil
	b.task = nil
	b.config.Logger.Info("task deleted", "task", taskID)
	return nil
}

// taskLocked returns the bridge's task if it matches taskID. Called
// with b.mu held.
func (b *Bridge) taskLocked(taskID string) (*task, error) {
	if b.task == nil || b.task.id != taskID {
		return nil, fmt.Errorf("task %q: %w", taskID, ErrNoSuchTask)
	}
	return b.task, nil
}
