// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"time"

	"golang.org/x/sys/unix"
)

// graceFor maps a delivered signal to the grace the supervisor grants
// before forcing shutdown. SIGKILL is uncatchable by convention, so
// it carries no grace; every other signal gets the configured period.
func graceFor(signal unix.Signal, configured time.Duration) time.Duration {
	if signal == unix.SIGKILL {
		return 0
	}
	return configured
}
