// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that wait on timers take a Clock instead of calling the
// time package directly. Production wiring passes Real(); tests pass a
// FakeClock and move time forward with Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	monitor := connection.NewMonitor(connection.Config{Clock: fake})
//	// ... start the goroutine under test ...
//	fake.WaitForTimers(1)
//	fake.Advance(30 * time.Second)
//
// WaitForTimers closes the race between a goroutine registering its
// timer and the test advancing past it.
//
// Deadline wraps a single absolute expiry for flows that race many
// successive waits against one overall time budget.
package clock
