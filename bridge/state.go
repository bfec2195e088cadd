// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
)

// State is a task's lifecycle position. States advance monotonically
// through Created, Running, Stopping, Stopped, Deleted; no state is
// ever revisited.
type State int

const (
	// StateCreated: the artifact is resolved and compiled, nothing
	// runs yet.
	StateCreated State = iota + 1

	// StateRunning: every executor started; events are served.
	StateRunning

	// StateStopping: cancellation is underway, the final outcome is
	// not yet published.
	StateStopping

	// StateStopped: every executor terminated and the outcome is
	// published.
	StateStopped

	// StateDeleted: resources are released. Terminal.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InvalidStateError rejects a lifecycle operation issued from a state
// it is not valid in. The operation has no side effect.
type InvalidStateError struct {
	// Current is the task's state at the time of the call.
	Current State

	// Attempted names the rejected operation.
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a task in state %s", e.Attempted, e.Current)
}

// ErrTaskNotStopped rejects Delete on a task that has not reached
// Stopped.
var ErrTaskNotStopped = errors.New("task is not stopped")

// ErrNoSuchTask reports an operation against a task ID the bridge
// does not hold.
var ErrNoSuchTask = errors.New("no such task")
