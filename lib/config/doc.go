// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the session
// bridge commands.
//
// Configuration is loaded from a single file specified by either the
// SESSIONBRIDGE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search.
//
// The file supports environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. After the file, SESSIONBRIDGE_*
// environment variables override individual fields (for example
// SESSIONBRIDGE_HOMESERVER or SESSIONBRIDGE_PROBE_INTERVAL); the
// variable for each field is named by its env struct tag.
//
// Variable expansion is performed on path fields last: ${HOME},
// ${SESSIONBRIDGE_STATE}, and ${VAR:-default} patterns are expanded.
//
// This package depends on no other sessionbridge packages.
package config
