// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the Matrix access token outside the Go heap.
//
// A [Token] lives in an anonymous mmap region that is locked into RAM
// (mlock) and excluded from core dumps (MADV_DONTDUMP). The garbage
// collector never sees the region, so the token is not copied around
// by the runtime; Close zeroes and unmaps it. The only heap copies are
// the ones made at the HTTP boundary by [Token.Bearer].
//
// Depends on golang.org/x/sys/unix.
package secret
