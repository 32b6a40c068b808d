// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package subscription tracks the background goroutines behind every
// observation the bridge hands out.
//
// Each registration receives an identifier from a single counter:
// strictly increasing, never zero, never reused while the Registry
// lives. Zero is left for callers to report "registration failed".
// Entries are grouped by Category so a whole class of observations can
// be torn down together.
//
// The registry lock guards only the map. Goroutines are started,
// cancelled, and waited on outside it.
package subscription

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
)

// Category names a class of subscription ("timeline", "room_list").
type Category string

// Task is the body of a subscription. It runs in its own goroutine and
// must return promptly once ctx is done.
type Task func(ctx context.Context)

// CommandTask is a Task that also receives commands sent with
// Registry.Send.
type CommandTask func(ctx context.Context, commands <-chan any)

// Registry owns every live subscription. The zero value is not usable;
// construct with New.
type Registry struct {
	logger *slog.Logger
	nextID atomic.Uint64

	mutex   sync.Mutex
	entries map[uint64]*entry
	closed  bool

	running sync.WaitGroup
}

type entry struct {
	category Category
	cancel   context.CancelFunc
	release  func()
	commands chan any
}

// New returns an empty Registry. logger may be nil.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		logger:  logger,
		entries: make(map[uint64]*entry),
	}
}

// Register starts task in a new goroutine and returns its id. Returns
// 0 only after Shutdown.
func (registry *Registry) Register(category Category, task Task) uint64 {
	return registry.start(category, 0, false, func(ctx context.Context, _ <-chan any) { task(ctx) })
}

// RegisterTransient is Register for tasks that end on their own. The
// entry is forgotten as soon as task returns, so a finished task never
// holds a slot until Shutdown.
func (registry *Registry) RegisterTransient(category Category, task Task) uint64 {
	return registry.start(category, 0, true, func(ctx context.Context, _ <-chan any) { task(ctx) })
}

// RegisterWithCommands is Register with a command inbox of the given
// capacity, fed by Send.
func (registry *Registry) RegisterWithCommands(category Category, capacity int, task CommandTask) uint64 {
	if capacity <= 0 {
		capacity = 1
	}
	return registry.start(category, capacity, false, task)
}

// Attach records a subscription with no goroutine of its own, for
// observers fed by a shared pump. release runs exactly once, on Cancel
// or Shutdown.
func (registry *Registry) Attach(category Category, release func()) uint64 {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.closed {
		return 0
	}
	id := registry.nextID.Add(1)
	registry.entries[id] = &entry{category: category, cancel: func() {}, release: release}
	return id
}

func (registry *Registry) start(category Category, capacity int, transient bool, task CommandTask) uint64 {
	ctx, cancel := context.WithCancel(context.Background())
	current := &entry{category: category, cancel: cancel}
	if capacity > 0 {
		current.commands = make(chan any, capacity)
	}

	registry.mutex.Lock()
	if registry.closed {
		registry.mutex.Unlock()
		cancel()
		return 0
	}
	id := registry.nextID.Add(1)
	registry.entries[id] = current
	registry.running.Add(1)
	registry.mutex.Unlock()

	logger := registry.logger.With("subscription_id", id, "category", string(category))
	go func() {
		defer registry.running.Done()
		defer cancel()
		dispatch.Call(logger, "task:"+string(category), func() {
			task(ctx, current.commands)
		})
		if transient {
			registry.forget(id, current)
		}
		logger.Debug("subscription task returned")
	}()
	return id
}

// forget drops id if it still maps to current. A Cancel that got there
// first has already removed it.
func (registry *Registry) forget(id uint64, current *entry) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.entries[id] == current {
		delete(registry.entries, id)
	}
}

// Cancel stops the subscription and forgets it. Reports whether id was
// live; a second Cancel of the same id returns false.
func (registry *Registry) Cancel(id uint64) bool {
	registry.mutex.Lock()
	current, found := registry.entries[id]
	delete(registry.entries, id)
	registry.mutex.Unlock()

	if !found {
		return false
	}
	registry.stop(current)
	return true
}

// CancelCategory cancels every subscription in category and returns
// how many there were.
func (registry *Registry) CancelCategory(category Category) int {
	var cancelled []*entry
	registry.mutex.Lock()
	for id, current := range registry.entries {
		if current.category == category {
			cancelled = append(cancelled, current)
			delete(registry.entries, id)
		}
	}
	registry.mutex.Unlock()

	for _, current := range cancelled {
		registry.stop(current)
	}
	return len(cancelled)
}

// Send delivers command to the subscription's inbox without blocking.
// Returns false if id is unknown, has no inbox, or the inbox is full.
func (registry *Registry) Send(id uint64, command any) bool {
	registry.mutex.Lock()
	current, found := registry.entries[id]
	registry.mutex.Unlock()

	if !found || current.commands == nil {
		return false
	}
	select {
	case current.commands <- command:
		return true
	default:
		registry.logger.Warn("subscription command inbox full", "subscription_id", id)
		return false
	}
}

// Contains reports whether id is live.
func (registry *Registry) Contains(id uint64) bool {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	_, found := registry.entries[id]
	return found
}

// Len returns the number of live subscriptions in category.
func (registry *Registry) Len(category Category) int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	count := 0
	for _, current := range registry.entries {
		if current.category == category {
			count++
		}
	}
	return count
}

// Shutdown cancels every subscription, waits for their goroutines to
// return, and makes later registrations fail with id 0.
func (registry *Registry) Shutdown() {
	registry.mutex.Lock()
	registry.closed = true
	entries := registry.entries
	registry.entries = make(map[uint64]*entry)
	registry.mutex.Unlock()

	for _, current := range entries {
		registry.stop(current)
	}
	registry.running.Wait()
	registry.logger.Debug("subscription registry shut down", "cancelled", len(entries))
}

func (registry *Registry) stop(current *entry) {
	current.cancel()
	if current.release != nil {
		dispatch.Call(registry.logger, "release:"+string(current.category), current.release)
	}
}
