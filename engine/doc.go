// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine declares the session engine this module bridges: the
// component that owns sync, end-to-end encryption, the send queue, and
// room-list computation. Nothing here implements those things. The
// interfaces describe what the bridge consumes, and each projector
// accepts only the narrow interface it needs.
//
// Every event source is a [Stream]. Streams end with
// broadcast.ErrClosed, and a stream backed by a bounded broadcast may
// also return an error matching broadcast.ErrLagged, after which it
// continues. Consumers skip lag and stop on close.
//
// [VectorDiff] is the ordered-list diff algebra shared by the timeline
// and the room list.
package engine
