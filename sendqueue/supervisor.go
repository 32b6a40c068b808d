// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sendqueue follows the engine's outgoing message queue and
// reports each message's progress, with a running count of delivery
// attempts, to every registered observer.
//
// One [Supervisor] serves the whole bridge. Its two pumps (lifecycle
// updates and queue-disabled errors) start with the first observer and
// run until the subscription registry shuts down. Observers attach and
// detach without affecting the pumps.
package sendqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
)

// State is the delivery state of an outgoing message.
type State uint8

const (
	StateEnqueued State = iota
	StateSending
	StateSent
	StateRetrying
	StateFailed
)

var stateNames = [...]string{
	StateEnqueued: "enqueued",
	StateSending:  "sending",
	StateSent:     "sent",
	StateRetrying: "retrying",
	StateFailed:   "failed",
}

func (state State) String() string {
	if int(state) < len(stateNames) {
		return stateNames[state]
	}
	return "unknown"
}

// Update is one progress notification. TransactionID is empty for
// room-wide queue failures.
type Update struct {
	RoomID        string
	TransactionID string
	Attempts      uint32
	State         State
	EventID       string
	Error         string
}

// Observer receives send progress for every room.
type Observer interface {
	OnUpdate(update Update)
}

const (
	categoryPump      subscription.Category = "send_queue"
	categoryObservers subscription.Category = "send_observer"
)

// Config holds the parameters for New.
type Config struct {
	Queue    engine.SendQueue
	Registry *subscription.Registry
	Logger   *slog.Logger
}

type attemptKey struct {
	room          ref.RoomID
	transactionID string
}

// Supervisor tracks delivery attempts per transaction and fans
// progress out to observers.
type Supervisor struct {
	queue    engine.SendQueue
	registry *subscription.Registry
	logger   *slog.Logger

	observers dispatch.Set[Observer]

	startOnce sync.Once
	started   bool

	mutex    sync.Mutex
	attempts map[attemptKey]uint32

	sends sync.WaitGroup
}

// New returns a Supervisor. Nothing runs until the first Observe.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{
		queue:    cfg.Queue,
		registry: cfg.Registry,
		logger:   logger,
		attempts: make(map[attemptKey]uint32),
	}
}

// Observe attaches observer and returns its subscription id, starting
// the pumps on first use. Returns 0 after the registry shut down.
func (supervisor *Supervisor) Observe(observer Observer) uint64 {
	if !supervisor.ensureStarted() {
		return 0
	}
	remove := supervisor.observers.Add(observer)
	id := supervisor.registry.Attach(categoryObservers, func() { remove() })
	if id == 0 {
		remove()
	}
	return id
}

func (supervisor *Supervisor) ensureStarted() bool {
	supervisor.startOnce.Do(func() {
		updates := supervisor.queue.SubscribeSendQueue()
		errors := supervisor.queue.SubscribeSendQueueErrors()
		updatesID := supervisor.registry.Register(categoryPump, func(ctx context.Context) {
			supervisor.pumpUpdates(ctx, updates)
		})
		errorsID := supervisor.registry.Register(categoryPump, func(ctx context.Context) {
			supervisor.pumpErrors(ctx, errors)
		})
		supervisor.started = updatesID != 0 && errorsID != 0
		supervisor.logger.Debug("send queue supervision started", "ok", supervisor.started)
	})
	return supervisor.started
}

// Attempts returns the recorded attempt count for a transaction that
// has not reached a terminal state.
func (supervisor *Supervisor) Attempts(room ref.RoomID, transactionID string) (uint32, bool) {
	supervisor.mutex.Lock()
	defer supervisor.mutex.Unlock()
	attempts, found := supervisor.attempts[attemptKey{room: room, transactionID: transactionID}]
	return attempts, found
}

// Tracked returns the number of transactions with an attempt record.
func (supervisor *Supervisor) Tracked() int {
	supervisor.mutex.Lock()
	defer supervisor.mutex.Unlock()
	return len(supervisor.attempts)
}

func (supervisor *Supervisor) notify(update Update) {
	supervisor.observers.Each(supervisor.logger, "sendqueue.OnUpdate", func(observer Observer) {
		observer.OnUpdate(update)
	})
}

func (supervisor *Supervisor) pumpUpdates(ctx context.Context, updates engine.Stream[engine.SendQueueUpdate]) {
	for {
		update, err := updates.Recv(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case engine.IsLagged(err):
			supervisor.logger.Debug("send queue updates lagged", "error", err)
			continue
		default:
			supervisor.logger.Debug("send queue update stream ended", "error", err)
			return
		}
		if projected, ok := supervisor.apply(update); ok {
			supervisor.notify(projected)
		}
	}
}

// apply updates the attempt record for one lifecycle event and returns
// the notification to deliver.
func (supervisor *Supervisor) apply(update engine.SendQueueUpdate) (Update, bool) {
	key := attemptKey{room: update.Room, transactionID: update.TransactionID}
	projected := Update{RoomID: update.Room.String(), TransactionID: update.TransactionID}

	supervisor.mutex.Lock()
	defer supervisor.mutex.Unlock()

	switch update.Kind {
	case engine.SendQueueNewLocalEvent:
		if _, found := supervisor.attempts[key]; !found {
			supervisor.attempts[key] = 0
		}
		projected.State = StateEnqueued
	case engine.SendQueueRetry:
		supervisor.attempts[key]++
		projected.State = StateRetrying
		projected.Attempts = supervisor.attempts[key]
	case engine.SendQueueSent:
		projected.Attempts = supervisor.attempts[key]
		delete(supervisor.attempts, key)
		projected.State = StateSent
		projected.EventID = update.EventID.String()
	case engine.SendQueueSendError:
		supervisor.attempts[key]++
		projected.State = StateFailed
		projected.Attempts = supervisor.attempts[key]
		projected.Error = fmt.Sprintf("%s (recoverable=%t)", update.Error, update.Recoverable)
	case engine.SendQueueCancelled:
		delete(supervisor.attempts, key)
		projected.State = StateFailed
		projected.Error = "Cancelled before sending"
	default:
		return Update{}, false
	}
	return projected, true
}

func (supervisor *Supervisor) pumpErrors(ctx context.Context, errors engine.Stream[engine.SendQueueError]) {
	for {
		queueError, err := errors.Recv(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case engine.IsLagged(err):
			supervisor.logger.Debug("send queue errors lagged", "error", err)
			continue
		default:
			supervisor.logger.Debug("send queue error stream ended", "error", err)
			return
		}
		supervisor.logger.Warn("room send queue disabled",
			"room_id", queueError.Room.String(),
			"recoverable", queueError.Recoverable,
			"error", queueError.Error,
		)
		supervisor.notify(Update{
			RoomID: queueError.Room.String(),
			State:  StateFailed,
			Error:  fmt.Sprintf("Room send queue disabled (recoverable=%t): %s", queueError.Recoverable, queueError.Error),
		})
	}
}

// EnqueueText sends body to room in the background and returns the
// transaction id, generating one when transactionID is empty. Observers
// see Sending and then Sent or Failed. Returns "" if roomID is
// malformed.
func (supervisor *Supervisor) EnqueueText(roomID, body, transactionID string) string {
	room, err := ref.ParseRoomID(roomID)
	if err != nil {
		supervisor.logger.Warn("enqueue rejected", "room_id", roomID, "error", err)
		return ""
	}
	if transactionID == "" {
		transactionID = uuid.NewString()
	}

	supervisor.sends.Add(1)
	go func() {
		defer supervisor.sends.Done()
		supervisor.notify(Update{RoomID: room.String(), TransactionID: transactionID, State: StateSending})

		eventID, err := supervisor.queue.SendText(context.Background(), room, body, transactionID)
		if err != nil {
			supervisor.logger.Warn("sending text failed", "room_id", room.String(), "txn_id", transactionID, "error", err)
			supervisor.notify(Update{RoomID: room.String(), TransactionID: transactionID, State: StateFailed, Error: err.Error()})
			return
		}
		supervisor.notify(Update{RoomID: room.String(), TransactionID: transactionID, State: StateSent, EventID: eventID.String()})
	}()
	return transactionID
}

// Wait blocks until every EnqueueText send has finished.
func (supervisor *Supervisor) Wait() { supervisor.sends.Wait() }

// Retry asks the engine to resend a failed local echo.
func (supervisor *Supervisor) Retry(ctx context.Context, transactionID string) bool {
	if transactionID == "" {
		return false
	}
	if err := supervisor.queue.RetrySend(ctx, transactionID); err != nil {
		supervisor.logger.Warn("retrying send failed", "txn_id", transactionID, "error", err)
		return false
	}
	return true
}

// SetEnabled turns every room's send queue on or off.
func (supervisor *Supervisor) SetEnabled(ctx context.Context, enabled bool) {
	supervisor.queue.SetSendQueueEnabled(ctx, enabled)
}

// SetRoomEnabled turns one room's send queue on or off. Returns false
// for a malformed room id or an engine error.
func (supervisor *Supervisor) SetRoomEnabled(ctx context.Context, roomID string, enabled bool) bool {
	room, err := ref.ParseRoomID(roomID)
	if err != nil {
		return false
	}
	if err := supervisor.queue.SetRoomSendQueueEnabled(ctx, room, enabled); err != nil {
		supervisor.logger.Warn("toggling room send queue failed", "room_id", roomID, "error", err)
		return false
	}
	return true
}
