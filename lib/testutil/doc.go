// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the channel helpers shared by this module's
// tests.
//
// Observers under test forward their notifications onto buffered
// channels; [RequireReceive] pulls the next one with a wall-clock
// safety timeout, and [RequireNoReceive] asserts that nothing further
// arrives. These helpers are the only place tests touch real time.
// Behaviour that depends on elapsed time is driven by lib/clock's
// FakeClock instead.
//
// All helpers call Fatalf on failure.
package testutil
