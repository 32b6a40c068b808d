// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// SendQueueUpdateKind is the lifecycle event a SendQueueUpdate reports.
type SendQueueUpdateKind uint8

const (
	SendQueueNewLocalEvent SendQueueUpdateKind = iota
	SendQueueRetry
	SendQueueSent
	SendQueueSendError
	SendQueueCancelled
	SendQueueMediaUpload
	SendQueueReplaced
)

var sendQueueUpdateNames = [...]string{
	SendQueueNewLocalEvent: "new_local_event",
	SendQueueRetry:         "retry",
	SendQueueSent:          "sent",
	SendQueueSendError:     "send_error",
	SendQueueCancelled:     "cancelled",
	SendQueueMediaUpload:   "media_upload",
	SendQueueReplaced:      "replaced",
}

func (kind SendQueueUpdateKind) String() string {
	if int(kind) < len(sendQueueUpdateNames) {
		return sendQueueUpdateNames[kind]
	}
	return "unknown"
}

// SendQueueUpdate is one lifecycle event of an outgoing message.
type SendQueueUpdate struct {
	Room          ref.RoomID
	Kind          SendQueueUpdateKind
	TransactionID string
	// EventID is set for SendQueueSent.
	EventID ref.EventID
	// Error and Recoverable are set for SendQueueSendError.
	Error       string
	Recoverable bool
}

// SendQueueError reports that a room's send queue was disabled.
type SendQueueError struct {
	Room        ref.RoomID
	Error       string
	Recoverable bool
}

// SendQueue is the engine's outgoing message queue.
type SendQueue interface {
	SubscribeSendQueue() Stream[SendQueueUpdate]
	SubscribeSendQueueErrors() Stream[SendQueueError]

	// SendText queues body under transactionID and waits until it is
	// sent or fails.
	SendText(ctx context.Context, room ref.RoomID, body, transactionID string) (ref.EventID, error)

	// RetrySend unwedges a failed local echo.
	RetrySend(ctx context.Context, transactionID string) error

	SetSendQueueEnabled(ctx context.Context, enabled bool)
	SetRoomSendQueueEnabled(ctx context.Context, room ref.RoomID, enabled bool) error
}
