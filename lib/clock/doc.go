// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the shim's timing-sensitive paths:
// grace-period enforcement during task cancellation, cron trigger
// scheduling, and exit timestamps. Production code injects Real();
// tests inject Fake() and drive it with Advance so that escalation and
// grace-period behavior is verified without wall-clock sleeps.
package clock
