// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Deadline is an absolute expiry shared by a sequence of waits. One
// timer backs the whole deadline, so racing N successive waits against
// it costs a single registration.
type Deadline struct {
	clock   Clock
	expires time.Time
	timer   *Timer
}

// NewDeadline starts a deadline that expires timeout from now.
func NewDeadline(source Clock, timeout time.Duration) *Deadline {
	return &Deadline{
		clock:   source,
		expires: source.Now().Add(timeout),
		timer:   source.NewTimer(timeout),
	}
}

// Done receives once when the deadline expires.
func (deadline *Deadline) Done() <-chan time.Time { return deadline.timer.C }

// Expired reports whether the deadline has passed.
func (deadline *Deadline) Expired() bool {
	return !deadline.clock.Now().Before(deadline.expires)
}

// Stop releases the underlying timer.
func (deadline *Deadline) Stop() { deadline.timer.Stop() }
