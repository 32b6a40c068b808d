// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Sessionbridge-probe checks a homeserver session from the command
// line using the same connectivity monitor the bridge runs.
//
// It reads the access token from the configured token file (or stdin
// with --token-file -), confirms the homeserver answers the versions
// endpoint, validates the token, and then prints one JSON line per
// coarse connectivity change until interrupted. SIGHUP re-reads the
// token file and swaps the new token in; the next probe reports
// whether the homeserver accepts it.
//
// With --once it validates the token a single time and exits.
//
// Exit codes:
//
//	0  token accepted (or clean shutdown after monitoring)
//	1  token rejected or homeserver unreachable (--once)
//	2  error (bad config, unreadable token)
package main
