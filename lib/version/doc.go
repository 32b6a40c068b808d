// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of the sessionbridge commands
// is running.
//
// The release pipeline sets [Version], [GitCommit], [GitDirty] and
// [BuildTime] with -ldflags -X. A plain "go build" leaves them at
// their defaults, and [Commit] then falls back to the revision the Go
// toolchain stamped into the binary. [Info] is the one-line form used
// by --version; [LogAttr] attaches the same facts to every log record.
package version
