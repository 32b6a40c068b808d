// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package activity follows per-room ephemeral state: who is typing,
// and when our own read receipt moves.
package activity

import (
	"context"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
	"github.com/bureau-foundation/sessionbridge/lib/memberstore"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
)

// TypingObserver receives the display names of the users typing in a
// room, sorted, each time the set changes.
type TypingObserver interface {
	OnTyping(names []string)
}

// ReceiptObserver is told each time our own read receipt moves.
type ReceiptObserver interface {
	OnChanged()
}

// NameCache is the persistent display-name store consulted before
// the engine. *memberstore.Store implements it.
type NameCache interface {
	Lookup(ctx context.Context, room ref.RoomID, user ref.UserID) (memberstore.Member, bool, error)
	Put(ctx context.Context, member memberstore.Member) error
}

// Config holds the parameters for New.
type Config struct {
	Source engine.RoomActivity
	// Names may be nil.
	Names  NameCache
	Logger *slog.Logger
}

// Watcher builds typing and receipt tasks.
type Watcher struct {
	source engine.RoomActivity
	names  NameCache
	logger *slog.Logger
}

// New returns a Watcher.
func New(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{source: cfg.Source, names: cfg.Names, logger: logger}
}

// Typing returns the task that reports typing users in room.
func (watcher *Watcher) Typing(room ref.RoomID, observer TypingObserver) subscription.Task {
	return func(ctx context.Context) {
		watcher.runTyping(ctx, room, observer)
	}
}

func (watcher *Watcher) runTyping(ctx context.Context, room ref.RoomID, observer TypingObserver) {
	logger := watcher.logger.With("task", "typing", "room_id", room.String())
	stream, release, err := watcher.source.SubscribeTyping(ctx, room)
	if err != nil {
		logger.Warn("typing subscription failed", "error", err)
		return
	}
	defer release()

	resolved := make(map[ref.UserID]string)
	var last []string
	for {
		users, err := stream.Recv(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case engine.IsLagged(err):
			logger.Debug("typing stream lagged", "error", err)
			continue
		case engine.IsClosed(err):
			logger.Debug("typing stream closed")
			return
		default:
			logger.Warn("typing stream failed", "error", err)
			return
		}

		names := make([]string, 0, len(users))
		for _, user := range users {
			name, found := resolved[user]
			if !found {
				name = watcher.displayName(ctx, logger, room, user)
				resolved[user] = name
			}
			names = append(names, name)
		}
		slices.Sort(names)
		names = slices.Compact(names)
		if slices.Equal(names, last) {
			continue
		}
		last = names
		dispatch.Call(logger, "activity.OnTyping", func() { observer.OnTyping(slices.Clone(names)) })
	}
}

// displayName resolves user through the name cache, then the engine,
// then falls back to the localpart.
func (watcher *Watcher) displayName(ctx context.Context, logger *slog.Logger, room ref.RoomID, user ref.UserID) string {
	if watcher.names != nil {
		cached, found, err := watcher.names.Lookup(ctx, room, user)
		if err != nil {
			logger.Debug("name cache lookup failed", "user_id", user.String(), "error", err)
		} else if found {
			return cached.DisplayName
		}
	}

	member, err := watcher.source.Member(ctx, room, user)
	if err != nil || member.DisplayName == "" {
		return user.Localpart()
	}
	if watcher.names != nil {
		err := watcher.names.Put(ctx, memberstore.Member{
			Room:        room,
			User:        user,
			DisplayName: member.DisplayName,
			AvatarURL:   member.AvatarURL,
		})
		if err != nil {
			logger.Debug("name cache write failed", "user_id", user.String(), "error", err)
		}
	}
	return member.DisplayName
}

// Receipts returns the task that reports own-receipt changes in room.
func (watcher *Watcher) Receipts(room ref.RoomID, observer ReceiptObserver) subscription.Task {
	return func(ctx context.Context) {
		logger := watcher.logger.With("task", "receipts", "room_id", room.String())
		stream, err := watcher.source.SubscribeOwnReceipts(ctx, room)
		if err != nil {
			logger.Warn("receipt subscription failed", "error", err)
			return
		}
		for {
			_, err := stream.Recv(ctx)
			switch {
			case err == nil:
				dispatch.Call(logger, "activity.OnChanged", observer.OnChanged)
			case ctx.Err() != nil:
				return
			case engine.IsLagged(err):
				// Skipped moves still mean the receipt changed.
				dispatch.Call(logger, "activity.OnChanged", observer.OnChanged)
			case engine.IsClosed(err):
				logger.Debug("receipt stream closed")
				return
			default:
				logger.Warn("receipt stream failed", "error", err)
				return
			}
		}
	}
}
