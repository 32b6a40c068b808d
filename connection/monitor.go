// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection reports how well the session is connected.
//
// [Monitor] merges credential changes with a periodic liveness probe
// into a coarse connectivity state, suppressing repeats. [Sync]
// supervises the engine's sync loop and restarts it after it stops or
// fails.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/clock"
	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
)

// DefaultProbeInterval is how often the monitor probes the session.
const DefaultProbeInterval = 30 * time.Second

// Kind is the coarse category of a connectivity state.
type Kind uint8

const (
	Disconnected Kind = iota
	Connecting
	Connected
	Syncing
	Reconnecting
)

func (kind Kind) String() string {
	switch kind {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Syncing:
		return "syncing"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("kind(%d)", uint8(kind))
	}
}

// State is a connectivity state. Attempt and NextRetrySecs are set
// only for Reconnecting.
type State struct {
	Kind          Kind   `json:"kind"`
	Attempt       uint32 `json:"attempt,omitempty"`
	NextRetrySecs uint32 `json:"next_retry_secs,omitempty"`
}

func (state State) String() string {
	if state.Kind == Reconnecting {
		return fmt.Sprintf("reconnecting(attempt=%d, next_retry=%ds)", state.Attempt, state.NextRetrySecs)
	}
	return state.Kind.String()
}

// unknownTokenState is reported when the homeserver rejects our
// access token.
var unknownTokenState = State{Kind: Reconnecting, Attempt: 1, NextRetrySecs: 5}

// Observer receives connectivity changes.
type Observer interface {
	OnConnectionChange(state State)
}

// MonitorConfig holds the parameters for NewMonitor.
type MonitorConfig struct {
	Session engine.Session

	// Clock defaults to the real clock; ProbeInterval to
	// DefaultProbeInterval.
	Clock         clock.Clock
	ProbeInterval time.Duration

	Logger *slog.Logger
}

// Monitor watches session connectivity.
type Monitor struct {
	session  engine.Session
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor returns a Monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	source := cfg.Clock
	if source == nil {
		source = clock.Real()
	}
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{session: cfg.Session, clock: source, interval: interval, logger: logger}
}

// Task returns the task that subscribes to credential changes and
// reports connectivity to observer until cancelled. The subscription
// is made on the task's goroutine, so a task the registry refuses
// never subscribes.
func (monitor *Monitor) Task(observer Observer) subscription.Task {
	return func(ctx context.Context) {
		monitor.run(ctx, monitor.session.SubscribeSessionChanges(), observer)
	}
}

func (monitor *Monitor) run(ctx context.Context, stream engine.Stream[engine.SessionChange], observer Observer) {
	logger := monitor.logger.With("task", "connection_monitor")
	changes := engine.Forward(ctx, logger, "session_changes", stream)

	ticker := monitor.clock.NewTicker(monitor.interval)
	defer ticker.Stop()

	last := State{Kind: Disconnected}
	report := func(current State) {
		if current.Kind == last.Kind {
			return
		}
		logger.Info("connectivity changed", "from", last.String(), "to", current.String())
		last = current
		dispatch.Call(logger, "connection.OnConnectionChange", func() { observer.OnConnectionChange(current) })
	}

	for {
		select {
		case <-ctx.Done():
			return

		case change, ok := <-changes:
			if !ok {
				// Probing continues without credential events.
				changes = nil
				continue
			}
			// The probe is a fallback for quiet periods: any credential
			// event pushes it a full interval out.
			ticker.Reset(monitor.interval)
			select {
			case <-ticker.C:
			default:
			}
			switch change {
			case engine.SessionTokensRefreshed:
				report(State{Kind: Connected})
			case engine.SessionUnknownToken:
				report(unknownTokenState)
			}

		case <-ticker.C:
			if monitor.session.IsActive(ctx) {
				report(State{Kind: Connected})
			} else {
				report(State{Kind: Disconnected})
			}
		}
	}
}
