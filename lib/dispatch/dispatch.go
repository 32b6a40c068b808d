// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch delivers notifications to foreign observers.
//
// Observers are implemented outside this module, and nothing about
// them can be trusted: any call may panic. Every observer invocation
// in this module goes through [Call], which recovers the panic, logs it
// with a stack trace, and returns normally so the delivering goroutine
// and every other observer keep running.
package dispatch

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
)

// Call invokes deliver and reports whether it returned normally. A
// panic inside deliver is logged under the given observer name and
// swallowed. logger may be nil.
func Call(logger *slog.Logger, observer string, deliver func()) (ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			ok = false
			if logger != nil {
				logger.Error("observer panic recovered",
					"observer", observer,
					"panic", fmt.Sprint(recovered),
					"stack", string(debug.Stack()),
				)
			}
		}
	}()
	deliver()
	return true
}

// Set is a collection of observers that receive the same
// notifications. Add and Remove may race with Each: Each works on a
// snapshot taken under the lock, and the lock is never held while an
// observer runs.
type Set[O any] struct {
	mutex   sync.Mutex
	nextKey uint64
	entries []setEntry[O]
}

type setEntry[O any] struct {
	key      uint64
	observer O
}

// Add inserts observer and returns a function removing it again. The
// returned function is idempotent.
func (set *Set[O]) Add(observer O) (remove func() bool) {
	set.mutex.Lock()
	set.nextKey++
	key := set.nextKey
	set.entries = append(set.entries, setEntry[O]{key: key, observer: observer})
	set.mutex.Unlock()

	return func() bool { return set.remove(key) }
}

func (set *Set[O]) remove(key uint64) bool {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	index := slices.IndexFunc(set.entries, func(entry setEntry[O]) bool { return entry.key == key })
	if index < 0 {
		return false
	}
	set.entries = slices.Delete(set.entries, index, index+1)
	return true
}

// Len returns the number of observers.
func (set *Set[O]) Len() int {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	return len(set.entries)
}

// Snapshot returns the current observers in insertion order.
func (set *Set[O]) Snapshot() []O {
	set.mutex.Lock()
	defer set.mutex.Unlock()
	observers := make([]O, len(set.entries))
	for index, entry := range set.entries {
		observers[index] = entry.observer
	}
	return observers
}

// Each calls deliver once per observer in a point-in-time snapshot,
// each call isolated by Call.
func (set *Set[O]) Each(logger *slog.Logger, name string, deliver func(O)) {
	for _, observer := range set.Snapshot() {
		Call(logger, name, func() { deliver(observer) })
	}
}
