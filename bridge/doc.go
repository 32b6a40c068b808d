// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the surface a foreign, callback-based caller uses
// to observe a session engine.
//
// A [Bridge] owns one subscription registry and every component that
// feeds it: the timeline projector, the send-queue supervisor, the
// verification manager, the room-list projector, the connection and
// sync monitors, and the room activity watcher. Each Observe* or
// Start* call validates its identifiers, spawns one background task,
// and returns the task's subscription id (0 when the input was
// malformed or the bridge has shut down). [Bridge.Unobserve] cancels
// any of them, and [Bridge.SendCommand] delivers a command to tasks
// that accept one, such as a room-list subscription's
// [roomlist.SetUnreadOnly].
//
// Registration never blocks on the engine beyond subscribing to a
// stream, and every observer call runs inside a recover boundary, so
// one misbehaving callback cannot stall or break another observation.
//
// [Open] builds a Bridge from a [config.Config], opening the member
// name store and the room-list cache under the configured state
// directory.
package bridge
