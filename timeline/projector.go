// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeline projects an engine room timeline into the diffs a
// foreign observer applies to its own list of messages.
//
// The engine speaks positional list diffs over items that include
// virtual entries (day dividers, read markers) the observer never sees.
// Because the observer's list is shorter than the engine's, positions
// do not line up, and the projection avoids them: inserts and sets
// become upserts keyed by item id, interior removes are not forwarded
// at all, and end-anchored operations pass through. A Reset brings the
// observer back in sync.
package timeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
	"github.com/bureau-foundation/sessionbridge/lib/memberstore"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
	"github.com/bureau-foundation/sessionbridge/render"
)

// Observer receives one room's timeline changes.
type Observer interface {
	OnDiff(diff Diff)
	OnError(message string)
}

// NameCache remembers sender display names across sessions.
// *memberstore.Store implements it.
type NameCache interface {
	Lookup(ctx context.Context, room ref.RoomID, user ref.UserID) (memberstore.Member, bool, error)
	Put(ctx context.Context, member memberstore.Member) error
}

// Config holds the parameters for New.
type Config struct {
	Source engine.TimelineSource

	// Names, if set, fills in sender names the engine has not loaded
	// yet and records the ones it has.
	Names NameCache

	Logger *slog.Logger
}

// Projector runs timeline subscriptions. It holds the per-room
// member-fetch bookkeeping shared by every subscription.
type Projector struct {
	source engine.TimelineSource
	names  NameCache
	logger *slog.Logger

	mutex sync.Mutex
	// subscribers counts live subscriptions per room. The member list
	// is fetched when a room's count goes from zero to one.
	subscribers map[ref.RoomID]int
}

// New returns a Projector.
func New(cfg Config) *Projector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Projector{
		source:      cfg.Source,
		names:       cfg.Names,
		logger:      logger,
		subscribers: make(map[ref.RoomID]int),
	}
}

// Task returns the subscription body that streams room to observer.
func (projector *Projector) Task(room ref.RoomID, observer Observer) subscription.Task {
	return func(ctx context.Context) {
		projector.run(ctx, room, observer)
	}
}

// PaginateBackwards loads count older events into room's timeline.
func (projector *Projector) PaginateBackwards(ctx context.Context, room ref.RoomID, count uint16) error {
	timeline, err := projector.source.Timeline(ctx, room)
	if err != nil {
		return err
	}
	return timeline.PaginateBackwards(ctx, count)
}

// PaginateForwards loads count newer events into room's timeline.
func (projector *Projector) PaginateForwards(ctx context.Context, room ref.RoomID, count uint16) error {
	timeline, err := projector.source.Timeline(ctx, room)
	if err != nil {
		return err
	}
	return timeline.PaginateForwards(ctx, count)
}

// Subscribers returns the number of live subscriptions for room.
func (projector *Projector) Subscribers(room ref.RoomID) int {
	projector.mutex.Lock()
	defer projector.mutex.Unlock()
	return projector.subscribers[room]
}

func (projector *Projector) acquire(room ref.RoomID) (first bool) {
	projector.mutex.Lock()
	defer projector.mutex.Unlock()
	projector.subscribers[room]++
	return projector.subscribers[room] == 1
}

func (projector *Projector) release(room ref.RoomID) {
	projector.mutex.Lock()
	defer projector.mutex.Unlock()
	projector.subscribers[room]--
	if projector.subscribers[room] <= 0 {
		delete(projector.subscribers, room)
	}
}

// stream is the state of one running subscription.
type stream struct {
	projector *Projector
	room      ref.RoomID
	timeline  engine.Timeline
	observer  Observer
	logger    *slog.Logger
	// replyFetches holds the event ids whose reply details this
	// subscription already asked for.
	replyFetches map[ref.EventID]struct{}
}

func (projector *Projector) run(ctx context.Context, room ref.RoomID, observer Observer) {
	logger := projector.logger.With("room_id", room.String())

	timeline, err := projector.source.Timeline(ctx, room)
	if err != nil {
		logger.Warn("opening timeline failed", "error", err)
		dispatch.Call(logger, "timeline.OnError", func() { observer.OnError("Timeline unavailable: " + err.Error()) })
		return
	}

	if projector.acquire(room) {
		detached := context.WithoutCancel(ctx)
		go func() {
			if err := timeline.FetchMembers(detached); err != nil {
				logger.Debug("fetching members failed", "error", err)
			}
		}()
	}
	defer projector.release(room)

	initial, diffs, err := timeline.Subscribe(ctx)
	if err != nil {
		logger.Warn("subscribing to timeline failed", "error", err)
		dispatch.Call(logger, "timeline.OnError", func() { observer.OnError("Timeline subscription failed: " + err.Error()) })
		return
	}

	current := &stream{
		projector:    projector,
		room:         room,
		timeline:     timeline,
		observer:     observer,
		logger:       logger,
		replyFetches: make(map[ref.EventID]struct{}),
	}
	current.deliver(Diff{Op: OpReset, Values: current.renderAll(ctx, initial)})

	for {
		batch, err := diffs.Recv(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case engine.IsLagged(err):
			logger.Debug("timeline subscriber lagged", "error", err)
			continue
		case engine.IsClosed(err):
			logger.Debug("timeline stream closed")
			return
		default:
			logger.Warn("timeline stream failed", "error", err)
			dispatch.Call(logger, "timeline.OnError", func() { observer.OnError("Timeline stream failed: " + err.Error()) })
			return
		}

		for _, diff := range batch {
			if projected, ok := current.project(ctx, diff); ok {
				current.deliver(projected)
			}
		}
	}
}

func (current *stream) deliver(diff Diff) {
	dispatch.Call(current.logger, "timeline.OnDiff", func() { current.observer.OnDiff(diff) })
}

// project maps one engine diff onto the observer's view. ok is false
// when nothing should be delivered.
func (current *stream) project(ctx context.Context, diff engine.VectorDiff[engine.TimelineItem]) (Diff, bool) {
	switch diff.Op {
	case engine.DiffAppend:
		values := current.renderAll(ctx, diff.Values)
		if len(values) == 0 {
			return Diff{}, false
		}
		return Diff{Op: OpAppend, Values: values}, true
	case engine.DiffPushBack:
		value, ok := current.render(ctx, diff.Value)
		return Diff{Op: OpPushBack, Value: value}, ok
	case engine.DiffPushFront:
		value, ok := current.render(ctx, diff.Value)
		return Diff{Op: OpPushFront, Value: value}, ok
	case engine.DiffInsert, engine.DiffSet:
		value, ok := current.render(ctx, diff.Value)
		return Diff{Op: OpUpsertByItemID, Value: value}, ok
	case engine.DiffPopBack:
		return Diff{Op: OpPopBack}, true
	case engine.DiffPopFront:
		return Diff{Op: OpPopFront}, true
	case engine.DiffTruncate:
		return Diff{Op: OpTruncate, Length: diff.Length}, true
	case engine.DiffClear:
		return Diff{Op: OpClear}, true
	case engine.DiffReset:
		return Diff{Op: OpReset, Values: current.renderAll(ctx, diff.Values)}, true
	case engine.DiffRemove:
		// Positions differ between the engine's list and the
		// observer's; the next Reset repairs the view.
		current.logger.Debug("dropping positional remove", "index", diff.Index)
		return Diff{}, false
	default:
		return Diff{}, false
	}
}

func (current *stream) renderAll(ctx context.Context, items []engine.TimelineItem) []render.MessageEvent {
	values := make([]render.MessageEvent, 0, len(items))
	for _, item := range items {
		if value, ok := current.render(ctx, item); ok {
			values = append(values, value)
		}
	}
	return values
}

func (current *stream) render(ctx context.Context, item engine.TimelineItem) (render.MessageEvent, bool) {
	value, ok := render.Message(current.room, item)
	if !ok {
		return value, false
	}
	current.fetchReplyIfNeeded(ctx, item.Event)
	current.resolveSender(ctx, item.Event, &value)
	return value, true
}

func (current *stream) fetchReplyIfNeeded(ctx context.Context, event *engine.EventItem) {
	eventID, needed := render.NeedsReplyDetails(event)
	if !needed {
		return
	}
	if _, requested := current.replyFetches[eventID]; requested {
		return
	}
	current.replyFetches[eventID] = struct{}{}

	detached := context.WithoutCancel(ctx)
	timeline, logger := current.timeline, current.logger
	go func() {
		if err := timeline.FetchReplyDetails(detached, eventID); err != nil {
			logger.Debug("fetching reply details failed", "event_id", eventID.String(), "error", err)
		}
	}()
}

func (current *stream) resolveSender(ctx context.Context, event *engine.EventItem, value *render.MessageEvent) {
	names := current.projector.names
	if names == nil {
		return
	}
	if event.SenderProfile.Known {
		err := names.Put(ctx, memberstore.Member{
			Room:        current.room,
			User:        event.Sender,
			DisplayName: event.SenderProfile.DisplayName,
			AvatarURL:   event.SenderProfile.AvatarURL,
		})
		if err != nil {
			current.logger.Debug("caching sender name failed", "error", err)
		}
		return
	}
	member, found, err := names.Lookup(ctx, current.room, event.Sender)
	if err != nil {
		current.logger.Debug("looking up sender name failed", "error", err)
		return
	}
	if found {
		value.SenderDisplayName = member.DisplayName
		value.SenderAvatarURL = member.AvatarURL
	}
}
