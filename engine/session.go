// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "context"

// SessionChange is a change to the session's credentials.
type SessionChange uint8

const (
	// SessionTokensRefreshed means the access token was renewed.
	SessionTokensRefreshed SessionChange = iota
	// SessionUnknownToken means the homeserver rejected the token.
	SessionUnknownToken
)

func (change SessionChange) String() string {
	switch change {
	case SessionTokensRefreshed:
		return "tokens_refreshed"
	case SessionUnknownToken:
		return "unknown_token"
	default:
		return "unknown"
	}
}

// Session reports the liveness of the logged-in session.
type Session interface {
	SubscribeSessionChanges() Stream[SessionChange]

	// IsActive probes whether the session can currently reach the
	// homeserver.
	IsActive(ctx context.Context) bool
}

// SyncState is the state of the engine's sync loop.
type SyncState uint8

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncTerminated
	SyncError
	SyncOffline
)

func (state SyncState) String() string {
	switch state {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncTerminated:
		return "terminated"
	case SyncError:
		return "error"
	case SyncOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// SyncUpdate is a sync state change. Error is set for SyncError.
type SyncUpdate struct {
	State SyncState
	Error string
}

// SyncService controls the engine's sync loop.
type SyncService interface {
	SubscribeSyncState() Stream[SyncUpdate]
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
