// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite databases this module keeps on
// local disk.
//
// A [Pool] wraps zombiezen's sqlitex.Pool. Every connection gets the
// same pragmas (WAL journal, NORMAL synchronous, a busy timeout) and,
// when [Config.Schema] is set, the schema is applied once per database
// file and recorded in PRAGMA user_version. Stored data is always a
// cache of state the engine can recompute, so the durability trade of
// synchronous=NORMAL is acceptable.
//
// Connections are not safe for concurrent use. Use [Pool.With] to
// borrow one for the length of a function call.
package sqlitepool
