// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// DeviceID is an opaque Matrix device identifier. There is no
// structure to validate beyond non-emptiness; the type exists so a
// device ID cannot be confused with a user ID or flow ID.
type DeviceID struct {
	id string
}

// ParseDeviceID wraps a non-empty device ID.
func ParseDeviceID(raw string) (DeviceID, error) {
	if raw == "" {
		return DeviceID{}, fmt.Errorf("device ID is empty")
	}
	return DeviceID{id: raw}, nil
}

// MustParseDeviceID is ParseDeviceID for inputs known to be valid.
func MustParseDeviceID(raw string) DeviceID {
	device, err := ParseDeviceID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseDeviceID(%q): %v", raw, err))
	}
	return device
}

func (d DeviceID) String() string { return d.id }

// IsZero reports whether d is the zero value.
func (d DeviceID) IsZero() bool { return d.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (d DeviceID) MarshalText() ([]byte, error) { return []byte(d.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DeviceID) UnmarshalText(data []byte) error {
	*d = DeviceID{id: string(data)}
	return nil
}
