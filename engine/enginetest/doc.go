// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package enginetest provides in-memory fakes of the engine interfaces
// for tests.
//
// Every engine stream is a [Feed]: a broadcast channel that counts its
// subscribers, so a test can wait until the code under test is
// listening before it pushes values. Commands issued to the fakes are
// recorded for later assertions.
package enginetest
