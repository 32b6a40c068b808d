// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Sessionbridge-cache inspects the persisted room-list snapshot.
//
// By default it decodes the snapshot and prints it as indented JSON,
// one object per room in list order. --diag prints the raw CBOR
// payload in diagnostic notation instead, which shows exactly what
// was stored even when the current binary no longer understands a
// field. --remove deletes the cache so the next start rebuilds it.
//
// The cache location comes from --path, or from the state directory
// of the config named by --config or $SESSIONBRIDGE_CONFIG.
package main
