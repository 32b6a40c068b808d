// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package broadcast provides a bounded multi-consumer channel in which
// a slow receiver loses intermediate values instead of blocking the
// sender.
//
// Every value sent is stored in a fixed-size ring tagged with a
// monotonically increasing sequence number. Each Receiver keeps its
// own cursor into that sequence. When the sender laps a receiver, the
// next Recv reports how many values were overwritten (a *LaggedError,
// matching ErrLagged) and resumes at the oldest value still held. Once
// the channel is closed and a receiver has drained what remains, Recv
// returns ErrClosed.
//
// Lag is recoverable: the receiver keeps going. Closed is terminal.
// Consumers in this module treat the two that way throughout.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Recv after the channel is closed and the
// receiver has consumed every retained value.
var ErrClosed = errors.New("broadcast: channel closed")

// ErrLagged matches any *LaggedError via errors.Is.
var ErrLagged = errors.New("broadcast: receiver lagged")

// LaggedError reports values a receiver missed because the sender
// overwrote them first.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: receiver lagged, %d values skipped", e.Skipped)
}

// Is reports whether target is ErrLagged.
func (e *LaggedError) Is(target error) bool { return target == ErrLagged }

// Channel is a broadcast channel retaining the last capacity values.
// All methods are safe for concurrent use.
type Channel[V any] struct {
	mutex    sync.Mutex
	slots    []V
	capacity int
	// totalSent is the sequence number of the next value. Retained
	// values span [totalSent - min(totalSent, capacity), totalSent).
	totalSent uint64
	closed    bool
	// wake is closed and replaced on every Send and on Close.
	wake chan struct{}
}

// New returns a Channel retaining up to capacity values. Panics if
// capacity is not positive.
func New[V any](capacity int) *Channel[V] {
	if capacity <= 0 {
		panic("broadcast: capacity must be positive")
	}
	return &Channel[V]{
		slots:    make([]V, capacity),
		capacity: capacity,
		wake:     make(chan struct{}),
	}
}

// Send publishes value to every receiver. It never blocks. Returns
// false if the channel is closed.
func (channel *Channel[V]) Send(value V) bool {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()

	if channel.closed {
		return false
	}
	channel.slots[channel.totalSent%uint64(channel.capacity)] = value
	channel.totalSent++
	close(channel.wake)
	channel.wake = make(chan struct{})
	return true
}

// Close marks the channel closed. Receivers still drain retained
// values before seeing ErrClosed. Close is idempotent.
func (channel *Channel[V]) Close() {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()

	if channel.closed {
		return
	}
	channel.closed = true
	close(channel.wake)
}

// Subscribe returns a receiver that sees values sent after this call.
func (channel *Channel[V]) Subscribe() *Receiver[V] {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	return &Receiver[V]{channel: channel, cursor: channel.totalSent}
}

// Receiver is one consumer's position in a Channel. A Receiver must
// be used by one goroutine at a time.
type Receiver[V any] struct {
	channel *Channel[V]
	cursor  uint64
}

// Recv returns the next value. It blocks until a value is available,
// the channel is closed (ErrClosed), or ctx is done (ctx.Err()). If
// the receiver fell behind, Recv returns a *LaggedError once and the
// following call resumes at the oldest retained value.
func (receiver *Receiver[V]) Recv(ctx context.Context) (V, error) {
	var zero V
	channel := receiver.channel
	for {
		channel.mutex.Lock()
		retained := channel.totalSent
		if retained > uint64(channel.capacity) {
			retained = uint64(channel.capacity)
		}
		oldest := channel.totalSent - retained

		if receiver.cursor < oldest {
			skipped := oldest - receiver.cursor
			receiver.cursor = oldest
			channel.mutex.Unlock()
			return zero, &LaggedError{Skipped: skipped}
		}
		if receiver.cursor < channel.totalSent {
			value := channel.slots[receiver.cursor%uint64(channel.capacity)]
			receiver.cursor++
			channel.mutex.Unlock()
			return value, nil
		}
		if channel.closed {
			channel.mutex.Unlock()
			return zero, ErrClosed
		}
		wake := channel.wake
		channel.mutex.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wake:
		}
	}
}
