// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cachefile stores a single opaque payload on disk for fast
// cold-start rendering, such as the last room-list snapshot.
//
// # Format
//
// A cache file is a fixed 42-byte header followed by the body:
//
//	offset  size  field
//	0       4     magic "SBCF"
//	4       1     format version (1)
//	5       1     compression tag (0 none, 1 lz4, 2 zstd)
//	6       4     uncompressed payload length, big endian
//	10      32    BLAKE3 keyed digest of the uncompressed payload
//	42      ...   body, compressed per the tag
//
// The digest detects torn or corrupted files on read, and lets Write
// skip rewriting a payload identical to what is already on disk.
//
// # Atomicity
//
// Write goes to a temporary sibling, fsyncs it, renames it over the
// target, and fsyncs the directory. Readers see the old file or the
// new one, never a mix.
package cachefile
