// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomlist keeps a live, filterable snapshot of the user's
// rooms.
//
// A [Projector] subscription mirrors the engine's paginated room list
// by applying each diff batch to a local slice. Whenever a batch
// changes the mirror, every room is flattened into an [Entry], the
// snapshot is written to the room-list cache file, and the observer
// receives the whole list. Observers never see incremental diffs.
//
// The filter can be swapped while the subscription runs by sending a
// [SetUnreadOnly] command to its subscription id.
package roomlist

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/cachefile"
	"github.com/bureau-foundation/sessionbridge/lib/codec"
	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
	"github.com/bureau-foundation/sessionbridge/render"
)

// DefaultPageSize is how many rooms the engine loads per page.
const DefaultPageSize = 50

// CacheFileName is the snapshot file inside the state directory.
const CacheFileName = "room_list_cache"

const (
	category        subscription.Category = "room_list"
	commandCapacity                       = 8
)

// Entry is one room of a snapshot.
type Entry struct {
	RoomID        string `json:"room_id"`
	Name          string `json:"name"`
	LastTimestamp uint64 `json:"last_ts"`
	Notifications uint64 `json:"notifications"`
	Messages      uint64 `json:"messages"`
	Mentions      uint64 `json:"mentions"`
	MarkedUnread  bool   `json:"marked_unread"`
	Favourite     bool   `json:"is_favourite"`
	LowPriority   bool   `json:"is_low_priority"`

	AvatarURL   *string             `json:"avatar_url,omitempty"`
	Direct      bool                `json:"is_dm"`
	Encrypted   bool                `json:"is_encrypted"`
	MemberCount uint32              `json:"member_count"`
	Topic       *string             `json:"topic,omitempty"`
	LatestEvent *render.LatestEvent `json:"latest_event,omitempty"`
}

// Unread reports whether the room has unread notifications or was
// marked unread.
func (entry Entry) Unread() bool { return entry.Notifications > 0 || entry.MarkedUnread }

// Observer receives every changed snapshot.
type Observer interface {
	OnReset(entries []Entry)
}

// SetUnreadOnly is the command that switches a running subscription
// between all joined rooms and unread rooms only.
type SetUnreadOnly bool

// Config holds the parameters for New.
type Config struct {
	Source   engine.RoomListSource
	Registry *subscription.Registry

	// Cache receives every changed snapshot. Nil disables persistence.
	Cache *cachefile.File

	// Me is excluded when picking a direct room's peer avatar.
	Me ref.UserID

	// PageSize defaults to DefaultPageSize.
	PageSize int

	Logger *slog.Logger
}

// Projector starts room-list subscriptions.
type Projector struct {
	source   engine.RoomListSource
	registry *subscription.Registry
	cache    *cachefile.File
	me       ref.UserID
	pageSize int
	logger   *slog.Logger
}

// New returns a Projector.
func New(cfg Config) *Projector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Projector{
		source:   cfg.Source,
		registry: cfg.Registry,
		cache:    cfg.Cache,
		me:       cfg.Me,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Observe starts a room-list subscription and returns its id. The id
// accepts SetUnreadOnly commands through the registry's Send.
func (projector *Projector) Observe(observer Observer) uint64 {
	return projector.registry.RegisterWithCommands(category, commandCapacity, func(ctx context.Context, commands <-chan any) {
		projector.run(ctx, commands, observer)
	})
}

// LoadCache returns the last persisted snapshot. A missing or
// unreadable cache yields nil.
func (projector *Projector) LoadCache() []Entry {
	if projector.cache == nil {
		return nil
	}
	payload, err := projector.cache.Read()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		projector.logger.Warn("room list cache unreadable", "path", projector.cache.Path(), "error", err)
		return nil
	}
	var entries []Entry
	if err := codec.Unmarshal(payload, &entries); err != nil {
		projector.logger.Warn("room list cache undecodable", "path", projector.cache.Path(), "error", err)
		return nil
	}
	return entries
}

func filterFor(unreadOnly bool) engine.RoomFilter {
	if unreadOnly {
		return engine.FilterAll(engine.FilterNonLeft(), engine.FilterUnread())
	}
	return engine.FilterNonLeft()
}

func (projector *Projector) run(ctx context.Context, commands <-chan any, observer Observer) {
	logger := projector.logger.With("task", "room_list")
	stream, controller, err := projector.source.SubscribeRoomList(ctx, projector.pageSize)
	if err != nil {
		logger.Error("room list subscription failed", "error", err)
		return
	}
	controller.SetFilter(filterFor(false))

	batches := engine.Forward(ctx, logger, "room_list", stream)

	var mirror []engine.Room
	for {
		select {
		case <-ctx.Done():
			return

		case command := <-commands:
			switch command := command.(type) {
			case SetUnreadOnly:
				logger.Debug("room list filter changed", "unread_only", bool(command))
				controller.SetFilter(filterFor(bool(command)))
			default:
				logger.Warn("room list ignoring unknown command", "command", command)
			}

		case batch, ok := <-batches:
			if !ok {
				return
			}
			var changed bool
			mirror, changed = engine.ApplyBatch(mirror, batch)
			if !changed {
				continue
			}
			entries := projector.flatten(ctx, mirror)
			projector.persist(logger, entries)
			dispatch.Call(logger, "roomlist.OnReset", func() { observer.OnReset(entries) })
		}
	}
}

func (projector *Projector) persist(logger *slog.Logger, entries []Entry) {
	if projector.cache == nil {
		return
	}
	payload, err := codec.Marshal(entries)
	if err != nil {
		logger.Warn("encoding room list snapshot failed", "error", err)
		return
	}
	if _, err := projector.cache.Write(payload); err != nil {
		logger.Warn("writing room list cache failed", "path", projector.cache.Path(), "error", err)
	}
}
