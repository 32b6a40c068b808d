// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/clock"
	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
)

const (
	restartAfterTerminated = 500 * time.Millisecond
	restartAfterError      = 2 * time.Second
)

// SyncPhase is the coarse state of the sync loop as reported to
// observers.
type SyncPhase uint8

const (
	SyncIdle SyncPhase = iota
	SyncRunning
	SyncBackingOff
	SyncError
)

func (phase SyncPhase) String() string {
	switch phase {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncBackingOff:
		return "backing_off"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncStatus is one sync report. Message is empty when there is
// nothing to add to Phase.
type SyncStatus struct {
	Phase   SyncPhase `json:"phase"`
	Message string    `json:"message,omitempty"`
}

// SyncObserver receives sync status changes.
type SyncObserver interface {
	OnSyncState(status SyncStatus)
}

// SyncConfig holds the parameters for NewSync.
type SyncConfig struct {
	Service engine.SyncService
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Sync keeps the engine's sync loop running while the app is in the
// foreground.
type Sync struct {
	service    engine.SyncService
	clock      clock.Clock
	logger     *slog.Logger
	foreground atomic.Bool
}

// NewSync returns a Sync. The app starts in the background.
func NewSync(cfg SyncConfig) *Sync {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	source := cfg.Clock
	if source == nil {
		source = clock.Real()
	}
	return &Sync{service: cfg.Service, clock: source, logger: logger}
}

// Foreground reports whether the app is in the foreground.
func (supervisor *Sync) Foreground() bool { return supervisor.foreground.Load() }

// EnterForeground marks the app foregrounded and starts sync.
func (supervisor *Sync) EnterForeground(ctx context.Context) error {
	supervisor.foreground.Store(true)
	return supervisor.service.Start(ctx)
}

// EnterBackground marks the app backgrounded and stops sync. A sync
// that terminates while backgrounded is not restarted.
func (supervisor *Sync) EnterBackground(ctx context.Context) error {
	supervisor.foreground.Store(false)
	return supervisor.service.Stop(ctx)
}

// Task returns the task that subscribes to sync state, starts sync,
// reports every state change to observer, and restarts sync after it
// terminates or fails. Nothing is subscribed until the task runs.
func (supervisor *Sync) Task(observer SyncObserver) subscription.Task {
	return func(ctx context.Context) {
		supervisor.run(ctx, supervisor.service.SubscribeSyncState(), observer)
	}
}

func (supervisor *Sync) run(ctx context.Context, states engine.Stream[engine.SyncUpdate], observer SyncObserver) {
	logger := supervisor.logger.With("task", "sync_supervisor")
	report := func(status SyncStatus) {
		dispatch.Call(logger, "connection.OnSyncState", func() { observer.OnSyncState(status) })
	}

	report(SyncStatus{Phase: SyncIdle})
	supervisor.start(ctx, logger)

	for {
		update, err := states.Recv(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case engine.IsLagged(err):
			logger.Debug("sync state stream lagged", "error", err)
			continue
		case engine.IsClosed(err):
			logger.Debug("sync state stream closed")
			return
		default:
			logger.Warn("sync state stream failed", "error", err)
			return
		}

		switch update.State {
		case engine.SyncIdle:
			report(SyncStatus{Phase: SyncIdle})
		case engine.SyncRunning:
			report(SyncStatus{Phase: SyncRunning})
		case engine.SyncOffline:
			report(SyncStatus{Phase: SyncBackingOff, Message: "Offline (auto-retrying)"})
		case engine.SyncTerminated:
			report(SyncStatus{Phase: SyncIdle, Message: "Sync stopped"})
			if supervisor.Foreground() {
				if !supervisor.sleep(ctx, restartAfterTerminated) {
					return
				}
				supervisor.start(ctx, logger)
			}
		case engine.SyncError:
			report(SyncStatus{Phase: SyncError, Message: "Sync error: " + update.Error})
			if !supervisor.sleep(ctx, restartAfterError) {
				return
			}
			supervisor.start(ctx, logger)
		}
	}
}

func (supervisor *Sync) start(ctx context.Context, logger *slog.Logger) {
	if err := supervisor.service.Start(ctx); err != nil {
		logger.Warn("starting sync failed", "error", err)
	}
}

func (supervisor *Sync) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-supervisor.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	}
}
