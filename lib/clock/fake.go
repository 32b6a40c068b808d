// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance is called.
// It is safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance itself.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	changed *sync.Cond
}

// fakeTimer is one registered After, NewTimer, AfterFunc, or ticker.
type fakeTimer struct {
	when time.Time
	// period is non-zero for tickers, which are rescheduled after
	// firing instead of removed.
	period   time.Duration
	channel  chan time.Time
	callback func()
	// scheduled is true while the timer sits in FakeClock.pending.
	scheduled bool
}

// Fake returns a FakeClock reading initial until advanced.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// Now returns the fake time.
func (fake *FakeClock) Now() time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.now
}

// After returns a channel that receives once the clock has advanced
// by d.
func (fake *FakeClock) After(d time.Duration) <-chan time.Time {
	return fake.NewTimer(d).C
}

// NewTimer returns a one-shot timer. A non-positive d fires at once
// without registering.
func (fake *FakeClock) NewTimer(d time.Duration) *Timer {
	channel := make(chan time.Time, 1)
	entry := &fakeTimer{channel: channel}

	fake.mu.Lock()
	if d <= 0 {
		channel <- fake.now
	} else {
		fake.scheduleLocked(entry, fake.now.Add(d))
	}
	fake.mu.Unlock()

	return &Timer{
		C:     channel,
		stop:  func() bool { return fake.unschedule(entry) },
		reset: func(d time.Duration) bool { return fake.reschedule(entry, d) },
	}
}

// AfterFunc schedules f. A non-positive d calls f before returning.
func (fake *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	entry := &fakeTimer{callback: f}
	if d <= 0 {
		f()
	} else {
		fake.mu.Lock()
		fake.scheduleLocked(entry, fake.now.Add(d))
		fake.mu.Unlock()
	}
	return &Timer{
		stop:  func() bool { return fake.unschedule(entry) },
		reset: func(d time.Duration) bool { return fake.reschedule(entry, d) },
	}
}

// NewTicker returns a ticker firing every d of fake time.
func (fake *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	channel := make(chan time.Time, 1)
	entry := &fakeTimer{channel: channel, period: d}

	fake.mu.Lock()
	fake.scheduleLocked(entry, fake.now.Add(d))
	fake.mu.Unlock()

	return &Ticker{
		C:    channel,
		stop: func() { fake.unschedule(entry) },
		reset: func(d time.Duration) {
			fake.mu.Lock()
			defer fake.mu.Unlock()
			entry.period = d
			fake.removeLocked(entry)
			fake.scheduleLocked(entry, fake.now.Add(d))
		},
	}
}

// Advance moves the clock forward by d and fires every timer whose
// deadline has been reached, earliest first. Channel deliveries never
// block: a full ticker channel drops the tick.
func (fake *FakeClock) Advance(d time.Duration) {
	fake.mu.Lock()
	fake.now = fake.now.Add(d)
	target := fake.now
	fake.mu.Unlock()

	for {
		due := fake.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, entry := range due {
			if entry.callback != nil {
				entry.callback()
				continue
			}
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least count timers are pending.
func (fake *FakeClock) WaitForTimers(count int) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	for len(fake.pending) < count {
		fake.changed.Wait()
	}
}

// PendingCount returns the number of scheduled timers and tickers.
func (fake *FakeClock) PendingCount() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return len(fake.pending)
}

// takeDue removes and returns the timers due at or before target,
// sorted by deadline. Tickers are put back one period later.
func (fake *FakeClock) takeDue(target time.Time) []*fakeTimer {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	var due []*fakeTimer
	remaining := fake.pending[:0]
	for _, entry := range fake.pending {
		if entry.when.After(target) {
			remaining = append(remaining, entry)
			continue
		}
		due = append(due, entry)
	}
	fake.pending = remaining

	slices.SortStableFunc(due, func(left, right *fakeTimer) int {
		return left.when.Compare(right.when)
	})
	for _, entry := range due {
		entry.scheduled = false
		if entry.period > 0 {
			fake.scheduleLocked(entry, entry.when.Add(entry.period))
		}
	}
	return due
}

func (fake *FakeClock) scheduleLocked(entry *fakeTimer, when time.Time) {
	entry.when = when
	if !entry.scheduled {
		entry.scheduled = true
		fake.pending = append(fake.pending, entry)
	}
	fake.changed.Broadcast()
}

func (fake *FakeClock) removeLocked(entry *fakeTimer) bool {
	if !entry.scheduled {
		return false
	}
	entry.scheduled = false
	fake.pending = slices.DeleteFunc(fake.pending, func(candidate *fakeTimer) bool {
		return candidate == entry
	})
	fake.changed.Broadcast()
	return true
}

func (fake *FakeClock) unschedule(entry *fakeTimer) bool {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.removeLocked(entry)
}

func (fake *FakeClock) reschedule(entry *fakeTimer, d time.Duration) bool {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	wasPending := fake.removeLocked(entry)
	fake.scheduleLocked(entry, fake.now.Add(d))
	return wasPending
}
