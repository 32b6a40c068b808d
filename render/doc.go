// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package render turns engine timeline items into the flat values the
// bridge hands to observers: [MessageEvent] for timelines and
// [LatestEvent] for room-list previews.
//
// Rendering is pure. Nothing here blocks, fetches, or logs; items that
// cannot be shown (virtual timeline entries) report ok=false and the
// caller skips them.
package render
