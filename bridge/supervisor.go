// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bollard-runtime/bollard/lib/clock"
	"github.com/bollard-runtime/bollard/trigger"
)

// PartialStartError reports a trigger that failed during task start.
// Every executor started before it has been rolled back; nothing is
// left running.
type PartialStartError struct {
	// Trigger names the trigger that failed to start.
	Trigger string

	// Err is the startup failure.
	Err error
}

func (e *PartialStartError) Error() string {
	return fmt.Sprintf("trigger %q failed to start: %v", e.Trigger, e.Err)
}

func (e *PartialStartError) Unwrap() error { return e.Err }

// supervisor owns a task's executors: it constructs and starts them,
// runs them concurrently, collects their terminal results in
// registration order, and drives graceful-then-forced cancellation.
// A task has at most one live supervisor.
type supervisor struct {
	logger *slog.Logger
	clk    clock.Clock

	names     []string
	executors []trigger.Executor
	cancelRun context.CancelFunc

	mu            sync.Mutex
	cancelling    bool
	forceTimer    *clock.Timer
	forceDeadline time.Time

	// results is valid once done is closed; ordered by
	// registration.
	results []Result
	done    chan struct{}
}

// startSupervisor constructs one executor per config and starts them
// sequentially. If any construction or Start fails, every executor
// already started is closed in reverse order and the error is a
// *PartialStartError; no supervisor exists afterwards.
//
// On success the executors are serving but their Run loops are not
// yet launched; the caller follows up with run.
func startSupervisor(
	ctx context.Context,
	configs []trigger.Config,
	constructors map[trigger.Kind]trigger.Constructor,
	deps trigger.Deps,
	logger *slog.Logger,
	clk clock.Clock,
) (*supervisor, error) {
	s := &supervisor{
		logger: logger,
		clk:    clk,
		done:   make(chan struct{}),
	}

	rollback := func() {
		for i := len(s.executors) - 1; i >= 0; i-- {
			if err := s.executors[i].Close(); err != nil {
				logger.Warn("rollback close failed", "trigger", s.names[i], "error", err)
			}
		}
	}

	for _, config := range configs {
		construct, ok := constructors[config.Kind]
		if !ok {
			rollback()
			return nil, &PartialStartError{Trigger: config.ID,
				Err: fmt.Errorf("%w: %q", trigger.ErrUnsupported, config.Kind)}
		}
		executor, err := construct(config, deps)
		if err != nil {
			rollback()
			return nil, &PartialStartError{Trigger: config.ID, Err: err}
		}
		if err := executor.Start(ctx); err != nil {
			_ = executor.Close()
			rollback()
			return nil, &PartialStartError{Trigger: config.ID, Err: err}
		}
		s.executors = append(s.executors, executor)
		s.names = append(s.names, config.ID)
	}
	return s, nil
}

// run launches every executor's Run loop plus the collector. The run
// context is detached from the caller's: the task outlives the Start
// call that launched it, and stops only through cancel.
func (s *supervisor) run(parent context.Context) {
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(parent))
	s.cancelRun = cancelRun

	results := make([]Result, len(s.executors))
	var wg sync.WaitGroup
	for i, executor := range s.executors {
		wg.Add(1)
		go func(index int, executor trigger.Executor) {
			defer wg.Done()
			result := Result{Index: index, Trigger: s.names[index], Err: executor.Run(runCtx)}
			results[index] = result
			if result.failed() {
				s.logger.Error("trigger failed", "trigger", result.Trigger, "error", result.Err)
			}
		}(i, executor)
	}

	go func() {
		wg.Wait()
		// Run loops are down; release whatever resources remain.
		for i := len(s.executors) - 1; i >= 0; i-- {
			if err := s.executors[i].Close(); err != nil {
				s.logger.Warn("close failed", "trigger", s.names[i], "error", err)
			}
		}
		cancelRun()

		s.mu.Lock()
		if s.forceTimer != nil {
			s.forceTimer.Stop()
		}
		s.results = results
		s.mu.Unlock()
		close(s.done)
	}()
}

// cancel requests shutdown: the run context is cancelled for
// cooperative drain, and a forced abort fires after grace unless
// every executor terminates first. Idempotent; a repeat call with a
// shorter remaining grace moves the forced abort earlier, never
// later. grace zero forces immediately.
func (s *supervisor) cancel(grace time.Duration) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}

	force := false
	switch {
	case !s.cancelling:
		s.cancelling = true
		s.cancelRun()
		if grace <= 0 {
			force = true
		} else {
			s.forceDeadline = s.clk.Now().Add(grace)
			s.forceTimer = s.clk.AfterFunc(grace, s.forceAbort)
		}

	case s.forceTimer != nil:
		deadline := s.clk.Now().Add(grace)
		if deadline.Before(s.forceDeadline) {
			if grace <= 0 {
				s.forceTimer.Stop()
				force = true
			} else if s.forceTimer.Reset(grace) {
				s.forceDeadline = deadline
			}
		}
	}
	s.mu.Unlock()

	if force {
		s.forceAbort()
	}
}

// forceAbort releases every executor's resources so wedged Run loops
// unblock. Safe to run more than once; Close is idempotent.
func (s *supervisor) forceAbort() {
	s.logger.Warn("grace period elapsed, forcing executor shutdown")
	for i := len(s.executors) - 1; i >= 0; i-- {
		if err := s.executors[i].Close(); err != nil {
			s.logger.Warn("forced close failed", "trigger", s.names[i], "error", err)
		}
	}
}

// wait returns the ordered results once every executor has
// terminated.
func (s *supervisor) wait() <-chan struct{} { return s.done }

func (s *supervisor) collected() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}
