// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// OutcomeKind classifies how a task ended.
type OutcomeKind int

const (
	// OutcomeSuccess: every executor completed normally.
	OutcomeSuccess OutcomeKind = iota + 1

	// OutcomeExecutorFailed: at least one executor failed
	// internally; the outcome attributes the first failure in
	// registration order.
	OutcomeExecutorFailed

	// OutcomeSignalled: termination was driven by an externally
	// delivered signal.
	OutcomeSignalled

	// OutcomeCancelled: cancellation was requested without a
	// signal.
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeExecutorFailed:
		return "executor-failed"
	case OutcomeSignalled:
		return "signalled"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is a task's final, aggregated exit status.
type Outcome struct {
	Kind OutcomeKind

	// Trigger names the failing trigger for OutcomeExecutorFailed.
	Trigger string

	// Err is the failing trigger's error for OutcomeExecutorFailed.
	Err error

	// Signal is the delivered signal for OutcomeSignalled.
	Signal unix.Signal
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeExecutorFailed:
		return fmt.Sprintf("executor-failed(%s: %v)", o.Trigger, o.Err)
	case OutcomeSignalled:
		return fmt.Sprintf("signalled(%s)", unix.SignalName(o.Signal))
	default:
		return o.Kind.String()
	}
}

// ExitCode maps an outcome to a process exit code: 0 for success,
// 128+signal for signalled termination (the shell convention), 1
// otherwise.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case OutcomeSuccess:
		return 0
	case OutcomeSignalled:
		return 128 + int(o.Signal)
	default:
		return 1
	}
}

// Exit is the published end of a task: outcome, exit code, and the
// time the outcome was resolved.
type Exit struct {
	Outcome Outcome
	Code    int
	At      time.Time
}

// Result is one executor's terminal report, in registration order. A
// nil Err or a bare context cancellation is a normal completion.
type Result struct {
	Index   int
	Trigger string
	Err     error
}

// failed reports whether the result is an internal failure rather
// than normal completion or cooperative shutdown.
func (r Result) failed() bool {
	return r.Err != nil && !errors.Is(r.Err, context.Canceled)
}

// Termination records why the executors were told to stop, if they
// were.
type Termination struct {
	// Signalled is set when a signal was delivered through Kill.
	Signalled bool

	// Signal is the delivered signal; for escalating deliveries,
	// the most recent one.
	Signal unix.Signal

	// CancelRequested is set when cancellation was requested by any
	// path, signal or not.
	CancelRequested bool
}

// ResolveOutcome combines the per-executor results and the
// termination cause into one outcome. Pure: the same inputs always
// produce the same outcome, independent of wall-clock races.
//
// Priority: the first internal failure in registration order, then a
// delivered signal, then a bare cancellation, then success.
func ResolveOutcome(results []Result, termination Termination) Outcome {
	for _, result := range results {
		if result.failed() {
			return Outcome{Kind: OutcomeExecutorFailed, Trigger: result.Trigger, Err: result.Err}
		}
	}
	if termination.Signalled {
		return Outcome{Kind: OutcomeSignalled, Signal: termination.Signal}
	}
	if termination.CancelRequested {
		return Outcome{Kind: OutcomeCancelled}
	}
	return Outcome{Kind: OutcomeSuccess}
}
