// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable Matrix identifiers: room
// IDs, user IDs, event IDs, and device IDs.
//
// Identifiers arrive from the foreign caller as plain strings and are
// parsed here at the boundary. A parse failure is the signal for an
// operation to return its negative result (0, false, "") without
// starting any work. Past the boundary every component passes the
// typed values, so a user ID can never be handed where a room ID is
// expected.
//
// All types implement encoding.TextMarshaler and TextUnmarshaler, so
// they serialize as their canonical string in JSON and CBOR.
package ref
