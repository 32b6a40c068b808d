// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
)

const messageInboxEnded = "Verification request stream ended"

// InboxObserver hears about verification requests other devices send
// us. fromDevice is empty for requests made inside a room.
type InboxObserver interface {
	OnRequest(flowID, fromUser, fromDevice string)
	OnError(message string)
}

// Inbox returns the task that subscribes to incoming verification
// requests and delivers them. Every request is recorded so Accept,
// Cancel and CancelRequest can find its sender later.
func (manager *Manager) Inbox(observer InboxObserver) subscription.Task {
	return func(ctx context.Context) {
		manager.runInbox(ctx, manager.verifier.SubscribeVerificationRequests(), observer)
	}
}

// StartInbox registers the inbox task and returns its subscription id.
func (manager *Manager) StartInbox(observer InboxObserver) uint64 {
	return manager.registry.Register(categoryInbox, manager.Inbox(observer))
}

func (manager *Manager) runInbox(ctx context.Context, requests engine.Stream[engine.IncomingVerification], observer InboxObserver) {
	logger := manager.logger.With("task", "verification_inbox")
	for {
		incoming, err := requests.Recv(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case engine.IsLagged(err):
			logger.Debug("verification inbox lagged", "error", err)
			continue
		case engine.IsClosed(err):
			logger.Debug("verification inbox stream closed")
			inboxError(logger, observer, messageInboxEnded)
			return
		default:
			inboxError(logger, observer, "Verification inbox failed: "+err.Error())
			return
		}

		manager.mutex.Lock()
		manager.inbox[incoming.FlowID] = inboxEntry{user: incoming.User, device: incoming.Device}
		manager.mutex.Unlock()

		device := ""
		if !incoming.Device.IsZero() {
			device = incoming.Device.String()
		}
		logger.Info("verification request received", "flow_id", incoming.FlowID, "user_id", incoming.User.String(), "device_id", device)
		dispatch.Call(logger, "verification.OnRequest", func() {
			observer.OnRequest(incoming.FlowID, incoming.User.String(), device)
		})
	}
}

func inboxError(logger *slog.Logger, observer InboxObserver, message string) {
	dispatch.Call(logger, "verification.OnError", func() { observer.OnError(message) })
}
