// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration shared by everything this
// module persists.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, shortest integer forms, no indefinite lengths. The same
// snapshot always produces the same bytes, which lets the cache file
// skip writes whose digest has not changed.
//
// Types that implement encoding.TextMarshaler (the lib/ref
// identifiers) encode as CBOR text strings, and decode back through
// UnmarshalText. Unknown fields are ignored on decode so older binaries
// can read newer snapshots.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encodeMode cbor.EncMode
	decodeMode cbor.DecMode
)

func init() {
	encodeOptions := cbor.CoreDetEncOptions()
	encodeOptions.TextMarshaler = cbor.TextMarshalerTextString
	var err error
	encodeMode, err = encodeOptions.EncMode()
	if err != nil {
		panic("codec: building CBOR encode mode: " + err.Error())
	}

	decodeMode, err = cbor.DecOptions{
		// any-typed targets get string-keyed maps so decoded values
		// can be re-encoded as JSON.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: building CBOR decode mode: " + err.Error())
	}
}

// Marshal encodes value deterministically.
func Marshal(value any) ([]byte, error) {
	return encodeMode.Marshal(value)
}

// Unmarshal decodes data into target.
func Unmarshal(data []byte, target any) error {
	return decodeMode.Unmarshal(data, target)
}

// Diagnose renders data in CBOR diagnostic notation (RFC 8949 §8).
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
