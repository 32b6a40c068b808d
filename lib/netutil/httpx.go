// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response handling for the homeserver
// client.
//
// Client-server API responses are small JSON documents. ReadResponse
// and DecodeResponse stop at MaxResponseSize so a misbehaving server
// cannot exhaust memory, and Snippet shortens an unexpected body for
// inclusion in an error message.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxResponseSize caps JSON API response body reads at 16 MB.
const MaxResponseSize int64 = 16 << 20

// snippetLength is the longest body excerpt Snippet returns.
const snippetLength = 256

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. A body longer than that is an error rather than a silent
// truncation.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}

// DecodeResponse reads a bounded response body and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// Snippet returns the start of body as a string, cut on a rune
// boundary, with "..." appended when anything was dropped.
func Snippet(body []byte) string {
	if len(body) <= snippetLength {
		return string(body)
	}
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
