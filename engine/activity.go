// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// Member is a room member's profile.
type Member struct {
	User        ref.UserID
	DisplayName string
	AvatarURL   string
}

// RoomActivity exposes per-room ephemeral activity.
type RoomActivity interface {
	// SubscribeTyping streams the users currently typing. The
	// returned release function ends the engine-side subscription.
	SubscribeTyping(ctx context.Context, room ref.RoomID) (Stream[[]ref.UserID], func(), error)

	// SubscribeOwnReceipts streams a value each time our own read
	// receipt in room moves.
	SubscribeOwnReceipts(ctx context.Context, room ref.RoomID) (Stream[struct{}], error)

	// Member looks a room member up in the engine's local store.
	Member(ctx context.Context, room ref.RoomID, user ref.UserID) (Member, error)
}
