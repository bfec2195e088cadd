// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bollard-runtime/bollard/lib/clock"
	"github.com/bollard-runtime/bollard/lib/testutil"
)

func newCronForTest(t *testing.T, schedule string, invoker Invoker, fake *clock.FakeClock) Executor {
	t.Helper()
	deps := testDeps(invoker)
	deps.Clock = fake
	executor, err := newCronExecutor(Config{
		Kind:   KindCron,
		ID:     "nightly",
		Export: "prune",
		Cron:   &CronConfig{Schedule: schedule, Args: []string{"--all"}},
	}, deps)
	if err != nil {
		t.Fatalf("newCronExecutor: %v", err)
	}
	return executor
}

func TestCronStartRejectsBadSchedule(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	executor := newCronForTest(t, "not a schedule", &fakeInvoker{}, fake)

	err := executor.Start(context.Background())
	if err == nil {
		t.Fatal("Start = nil error for a malformed schedule")
	}
	if !strings.Contains(err.Error(), "nightly") {
		t.Errorf("error = %q, want it to name the trigger", err)
	}
}

func TestCronFiresOnSchedule(t *testing.T) {
	start := time.Date(2026, time.March, 1, 12, 0, 30, 0, time.UTC)
	fake := clock.Fake(start)
	invoker := &fakeInvoker{notify: make(chan Invocation, 1)}
	executor := newCronForTest(t, "* * * * *", invoker, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := executor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- executor.Run(ctx) }()

	// The executor waits for the next minute boundary (12:01:00).
	fake.WaitForTimers(1)
	fake.Advance(30 * time.Second)

	call := testutil.RequireReceive(t, invoker.notify, 5*time.Second, "first scheduled invocation")
	if call.Export != "prune" {
		t.Errorf("export = %q", call.Export)
	}
	if call.Env["CRON_FIRE_TIME"] != "2026-03-01T12:01:00Z" {
		t.Errorf("CRON_FIRE_TIME = %q", call.Env["CRON_FIRE_TIME"])
	}

	// Next occurrence: 12:02:00.
	fake.WaitForTimers(1)
	fake.Advance(time.Minute)
	testutil.RequireReceive(t, invoker.notify, 5*time.Second, "second scheduled invocation")

	cancel()
	err := testutil.RequireReceive(t, runDone, 5*time.Second, "run returning after cancel")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestCronInvocationFailureIsTerminal(t *testing.T) {
	fake := clock.Fake(time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	invocationErr := errors.New("trap")
	invoker := &fakeInvoker{err: invocationErr}
	executor := newCronForTest(t, "* * * * *", invoker, fake)

	ctx := context.Background()
	if err := executor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- executor.Run(ctx) }()

	fake.WaitForTimers(1)
	fake.Advance(time.Minute)

	err := testutil.RequireReceive(t, runDone, 5*time.Second, "run returning after failed invocation")
	if !errors.Is(err, invocationErr) {
		t.Errorf("Run error = %v, want the invocation error", err)
	}
}

func TestCronCloseUnblocksRun(t *testing.T) {
	fake := clock.Fake(time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	executor := newCronForTest(t, "* * * * *", &fakeInvoker{}, fake)

	ctx, cancel := context.WithCancel(context.Background())
	if err := executor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- executor.Run(ctx) }()

	fake.WaitForTimers(1)
	cancel()
	if err := executor.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	testutil.RequireReceive(t, runDone, 5*time.Second, "run returning after close")
}
