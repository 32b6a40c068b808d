// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "github.com/bureau-foundation/sessionbridge/lib/ref"

// Engine is the whole session engine as the bridge sees it.
type Engine interface {
	TimelineSource
	SendQueue
	Verifier
	RoomListSource
	Session
	SyncService
	RoomActivity

	// UserID is the logged-in user.
	UserID() ref.UserID
}
