// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source used by every timer-driven component.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer has a
	// nil C.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTimer returns a stoppable one-shot timer that delivers on C.
	NewTimer(d time.Duration) *Timer

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. The channel has capacity 1, so
// a slow reader loses ticks rather than queueing them.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop halts the ticker. C is not closed.
func (ticker *Ticker) Stop() { ticker.stop() }

// Reset restarts the tick cycle with a new period.
func (ticker *Ticker) Reset(d time.Duration) { ticker.reset(d) }

// Timer is a single scheduled event.
type Timer struct {
	// C receives the fire time. Nil for AfterFunc timers.
	C <-chan time.Time

	stop  func() bool
	reset func(time.Duration) bool
}

// Stop cancels the timer and reports whether it was still pending.
func (timer *Timer) Stop() bool { return timer.stop() }

// Reset reschedules the timer d from now and reports whether it was
// pending before the call.
func (timer *Timer) Reset(d time.Duration) bool { return timer.reset(d) }
