// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is a minimal Matrix client-server API client used
// to probe a homeserver from outside the engine.
//
// [Client] holds the homeserver URL and HTTP transport and issues
// unauthenticated requests such as [Client.ServerVersions]. [Session]
// pairs a Client with an access token held in [secret.Token] memory
// and implements engine.Session: IsActive validates the token with
// the whoami endpoint, and SubscribeSessionChanges reports when the
// homeserver starts rejecting the token (M_UNKNOWN_TOKEN) and when a
// replacement token is accepted again.
//
// API errors are returned as [*MatrixError] carrying the Matrix error
// code and HTTP status. [IsMatrixError] tests for a specific code.
package messaging
