// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// UserID is a validated Matrix user ID such as "@alice:example.org".
// Only the structure is validated; historical user IDs with
// uppercase or punctuation in the localpart are accepted.
type UserID struct {
	id string
	// colon is the index of the ':' separating localpart and server.
	colon int
}

// ParseUserID validates a raw user ID: an '@' sigil, a non-empty
// localpart, and a non-empty server name.
func ParseUserID(raw string) (UserID, error) {
	if raw == "" {
		return UserID{}, fmt.Errorf("empty user ID")
	}
	if raw[0] != '@' {
		return UserID{}, fmt.Errorf("user ID must start with '@': %q", raw)
	}
	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		return UserID{}, fmt.Errorf("user ID missing ':server' suffix: %q", raw)
	}
	if colon == 1 {
		return UserID{}, fmt.Errorf("user ID has empty localpart: %q", raw)
	}
	if colon == len(raw)-1 {
		return UserID{}, fmt.Errorf("user ID has empty server name: %q", raw)
	}
	if strings.ContainsAny(raw, " \t\n") {
		return UserID{}, fmt.Errorf("user ID contains whitespace: %q", raw)
	}
	return UserID{id: raw, colon: colon}, nil
}

// MustParseUserID is ParseUserID for inputs known to be valid.
func MustParseUserID(raw string) UserID {
	user, err := ParseUserID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseUserID(%q): %v", raw, err))
	}
	return user
}

func (u UserID) String() string { return u.id }

// IsZero reports whether u is the zero value.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the part between '@' and ':'. Returns "" for the
// zero value.
func (u UserID) Localpart() string {
	if u.id == "" {
		return ""
	}
	return u.id[1:u.colon]
}

// Server returns the server name after the first ':'.
func (u UserID) Server() string {
	if u.id == "" {
		return ""
	}
	return u.id[u.colon+1:]
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) { return []byte(u.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// yields the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
