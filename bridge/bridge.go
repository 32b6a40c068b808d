// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/sessionbridge/activity"
	"github.com/bureau-foundation/sessionbridge/connection"
	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/cachefile"
	"github.com/bureau-foundation/sessionbridge/lib/clock"
	"github.com/bureau-foundation/sessionbridge/lib/memberstore"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
	"github.com/bureau-foundation/sessionbridge/roomlist"
	"github.com/bureau-foundation/sessionbridge/sendqueue"
	"github.com/bureau-foundation/sessionbridge/timeline"
	"github.com/bureau-foundation/sessionbridge/verification"
)

const (
	categoryTimeline   subscription.Category = "timeline"
	categoryConnection subscription.Category = "connection"
	categorySync       subscription.Category = "sync"
	categoryTyping     subscription.Category = "typing"
	categoryReceipts   subscription.Category = "receipts"
)

// NameStore is the persistent display-name cache shared by timeline
// rendering and typing notices. *memberstore.Store implements it.
type NameStore interface {
	Lookup(ctx context.Context, room ref.RoomID, user ref.UserID) (memberstore.Member, bool, error)
	Put(ctx context.Context, member memberstore.Member) error
}

// Config holds the parameters for New.
type Config struct {
	Engine engine.Engine

	// Names may be nil, in which case names come from the engine alone.
	Names NameStore

	// Cache persists room-list snapshots. Nil disables persistence.
	Cache *cachefile.File

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Zero values select each component's default.
	ProbeInterval       time.Duration
	VerificationTimeout time.Duration
	RoomListPageSize    int

	Logger *slog.Logger
}

// Bridge owns the subscription registry and the components built on
// it. All methods are safe for concurrent use.
type Bridge struct {
	engine   engine.Engine
	registry *subscription.Registry
	logger   *slog.Logger

	timelines    *timeline.Projector
	sends        *sendqueue.Supervisor
	verification *verification.Manager
	rooms        *roomlist.Projector
	monitor      *connection.Monitor
	sync         *connection.Sync
	activity     *activity.Watcher

	// closers run after the registry has drained, in reverse order.
	closers      []func() error
	shutdownOnce sync.Once
}

// New wires every component to cfg.Engine. Nothing runs until the
// first Observe or Start call.
func New(cfg Config) (*Bridge, error) {
	if cfg.Engine == nil {
		return nil, errors.New("bridge: Engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	source := cfg.Clock
	if source == nil {
		source = clock.Real()
	}
	registry := subscription.New(logger)

	bridge := &Bridge{
		engine:   cfg.Engine,
		registry: registry,
		logger:   logger,
		sends: sendqueue.New(sendqueue.Config{
			Queue:    cfg.Engine,
			Registry: registry,
			Logger:   logger.With("component", "sendqueue"),
		}),
		verification: verification.New(verification.Config{
			Verifier: cfg.Engine,
			Registry: registry,
			Me:       cfg.Engine.UserID(),
			Clock:    source,
			Timeout:  cfg.VerificationTimeout,
			Logger:   logger.With("component", "verification"),
		}),
		rooms: roomlist.New(roomlist.Config{
			Source:   cfg.Engine,
			Registry: registry,
			Cache:    cfg.Cache,
			Me:       cfg.Engine.UserID(),
			PageSize: cfg.RoomListPageSize,
			Logger:   logger.With("component", "roomlist"),
		}),
		monitor: connection.NewMonitor(connection.MonitorConfig{
			Session:       cfg.Engine,
			Clock:         source,
			ProbeInterval: cfg.ProbeInterval,
			Logger:        logger.With("component", "connection"),
		}),
		sync: connection.NewSync(connection.SyncConfig{
			Service: cfg.Engine,
			Clock:   source,
			Logger:  logger.With("component", "sync"),
		}),
	}

	bridge.timelines = timeline.New(timeline.Config{
		Source: cfg.Engine,
		Names:  cfg.Names,
		Logger: logger.With("component", "timeline"),
	})
	bridge.activity = activity.New(activity.Config{
		Source: cfg.Engine,
		Names:  cfg.Names,
		Logger: logger.With("component", "activity"),
	})
	return bridge, nil
}

// ObserveTimeline streams roomID's timeline to observer: an initial
// reset, then projected diffs. Returns 0 for a malformed room id.
func (bridge *Bridge) ObserveTimeline(roomID string, observer timeline.Observer) uint64 {
	room, ok := bridge.parseRoom("observe timeline", roomID)
	if !ok {
		return 0
	}
	return bridge.registry.Register(categoryTimeline, bridge.timelines.Task(room, observer))
}

// PaginateBackwards loads count older events into roomID's timeline.
func (bridge *Bridge) PaginateBackwards(ctx context.Context, roomID string, count uint16) bool {
	room, ok := bridge.parseRoom("paginate backwards", roomID)
	if !ok {
		return false
	}
	if err := bridge.timelines.PaginateBackwards(ctx, room, count); err != nil {
		bridge.logger.Warn("paginating backwards failed", "room_id", roomID, "error", err)
		return false
	}
	return true
}

// PaginateForwards loads count newer events into roomID's timeline.
func (bridge *Bridge) PaginateForwards(ctx context.Context, roomID string, count uint16) bool {
	room, ok := bridge.parseRoom("paginate forwards", roomID)
	if !ok {
		return false
	}
	if err := bridge.timelines.PaginateForwards(ctx, room, count); err != nil {
		bridge.logger.Warn("paginating forwards failed", "room_id", roomID, "error", err)
		return false
	}
	return true
}

// ObserveSends attaches observer to the shared send-queue supervisor.
func (bridge *Bridge) ObserveSends(observer sendqueue.Observer) uint64 {
	return bridge.sends.Observe(observer)
}

// EnqueueText sends body to roomID and returns the transaction id, or
// "" for a malformed room id.
func (bridge *Bridge) EnqueueText(roomID, body, transactionID string) string {
	return bridge.sends.EnqueueText(roomID, body, transactionID)
}

// RetryByTxn resends a failed local echo.
func (bridge *Bridge) RetryByTxn(ctx context.Context, transactionID string) bool {
	return bridge.sends.Retry(ctx, transactionID)
}

// SetSendQueueEnabled turns every room's send queue on or off.
func (bridge *Bridge) SetSendQueueEnabled(ctx context.Context, enabled bool) {
	bridge.sends.SetEnabled(ctx, enabled)
}

// SetRoomSendQueueEnabled turns one room's send queue on or off.
func (bridge *Bridge) SetRoomSendQueueEnabled(ctx context.Context, roomID string, enabled bool) bool {
	return bridge.sends.SetRoomEnabled(ctx, roomID, enabled)
}

// ObserveRoomList streams room-list snapshots to observer. Send it
// roomlist.SetUnreadOnly through SendCommand to change the filter.
func (bridge *Bridge) ObserveRoomList(observer roomlist.Observer) uint64 {
	return bridge.rooms.Observe(observer)
}

// SetRoomListUnreadOnly switches a room-list subscription's filter.
func (bridge *Bridge) SetRoomListUnreadOnly(id uint64, unreadOnly bool) bool {
	return bridge.registry.Send(id, roomlist.SetUnreadOnly(unreadOnly))
}

// LoadRoomListCache returns the last persisted snapshot, or nil.
func (bridge *Bridge) LoadRoomListCache() []roomlist.Entry {
	return bridge.rooms.LoadCache()
}

// MonitorConnection reports coarse connectivity changes to observer.
func (bridge *Bridge) MonitorConnection(observer connection.Observer) uint64 {
	return bridge.registry.Register(categoryConnection, bridge.monitor.Task(observer))
}

// StartSupervisedSync starts sync and keeps it running while the app
// is in the foreground, reporting status to observer.
func (bridge *Bridge) StartSupervisedSync(observer connection.SyncObserver) uint64 {
	return bridge.registry.Register(categorySync, bridge.sync.Task(observer))
}

// EnterForeground marks the app foregrounded and starts sync.
func (bridge *Bridge) EnterForeground(ctx context.Context) bool {
	if err := bridge.sync.EnterForeground(ctx); err != nil {
		bridge.logger.Warn("starting sync failed", "error", err)
		return false
	}
	return true
}

// EnterBackground marks the app backgrounded and stops sync.
func (bridge *Bridge) EnterBackground(ctx context.Context) bool {
	if err := bridge.sync.EnterBackground(ctx); err != nil {
		bridge.logger.Warn("stopping sync failed", "error", err)
		return false
	}
	return true
}

// ObserveTyping reports the names of users typing in roomID.
func (bridge *Bridge) ObserveTyping(roomID string, observer activity.TypingObserver) uint64 {
	room, ok := bridge.parseRoom("observe typing", roomID)
	if !ok {
		return 0
	}
	return bridge.registry.Register(categoryTyping, bridge.activity.Typing(room, observer))
}

// ObserveReceipts tells observer each time our read receipt in roomID
// moves.
func (bridge *Bridge) ObserveReceipts(roomID string, observer activity.ReceiptObserver) uint64 {
	room, ok := bridge.parseRoom("observe receipts", roomID)
	if !ok {
		return 0
	}
	return bridge.registry.Register(categoryReceipts, bridge.activity.Receipts(room, observer))
}

// StartVerificationInbox reports incoming verification requests.
func (bridge *Bridge) StartVerificationInbox(observer verification.InboxObserver) uint64 {
	return bridge.verification.StartInbox(observer)
}

// StartSelfVerification verifies one of our own devices and returns
// the flow id, or "" after reporting an error to observer.
func (bridge *Bridge) StartSelfVerification(ctx context.Context, deviceID string, observer verification.Observer) string {
	return bridge.verification.StartSelf(ctx, deviceID, observer)
}

// StartUserVerification verifies another user's identity.
func (bridge *Bridge) StartUserVerification(ctx context.Context, userID string, observer verification.Observer) string {
	return bridge.verification.StartUser(ctx, userID, observer)
}

// AcceptVerification accepts an incoming request and runs its flow.
func (bridge *Bridge) AcceptVerification(ctx context.Context, flowID, otherUser string, observer verification.Observer) bool {
	return bridge.verification.Accept(ctx, flowID, otherUser, observer)
}

// ConfirmVerification confirms that the emojis match.
func (bridge *Bridge) ConfirmVerification(ctx context.Context, flowID string) bool {
	return bridge.verification.Confirm(ctx, flowID)
}

// CancelVerification cancels a running flow.
func (bridge *Bridge) CancelVerification(ctx context.Context, flowID string) bool {
	return bridge.verification.Cancel(ctx, flowID)
}

// CancelVerificationRequest declines a request that has not started.
func (bridge *Bridge) CancelVerificationRequest(ctx context.Context, flowID, otherUser string) bool {
	return bridge.verification.CancelRequest(ctx, flowID, otherUser)
}

// CheckVerificationRequest reports whether userID has a pending
// request with flowID.
func (bridge *Bridge) CheckVerificationRequest(ctx context.Context, userID, flowID string) bool {
	return bridge.verification.CheckRequest(ctx, userID, flowID)
}

// Unobserve cancels any observation or task by id. A second call for
// the same id returns false.
func (bridge *Bridge) Unobserve(id uint64) bool {
	return bridge.registry.Cancel(id)
}

// SendCommand delivers command to the task registered as id without
// blocking. Returns false when the task is gone, takes no commands, or
// its inbox is full.
func (bridge *Bridge) SendCommand(id uint64, command any) bool {
	return bridge.registry.Send(id, command)
}

// Shutdown cancels every observation, waits for the tasks to return,
// and closes the resources Open acquired. Later calls do nothing.
func (bridge *Bridge) Shutdown() {
	bridge.shutdownOnce.Do(func() {
		bridge.registry.Shutdown()
		for index := len(bridge.closers) - 1; index >= 0; index-- {
			if err := bridge.closers[index](); err != nil {
				bridge.logger.Warn("closing bridge resource failed", "error", err)
			}
		}
		bridge.logger.Debug("bridge shut down")
	})
}

func (bridge *Bridge) parseRoom(operation, roomID string) (ref.RoomID, bool) {
	room, err := ref.ParseRoomID(roomID)
	if err != nil {
		bridge.logger.Warn(operation+" rejected", "room_id", roomID, "error", err)
		return ref.RoomID{}, false
	}
	return room, true
}
