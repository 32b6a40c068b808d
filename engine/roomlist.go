// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// Membership is our own membership in a room.
type Membership uint8

const (
	MembershipStateJoined Membership = iota
	MembershipStateInvited
	MembershipStateLeft
	MembershipStateKnocked
	MembershipStateBanned
)

// RoomInfo is the summary data of a room at one instant.
type RoomInfo struct {
	// DisplayName is empty when the engine has not computed one.
	DisplayName string
	AvatarURL   string
	Topic       string
	Membership  Membership
	IsDirect    bool
	// DirectTargets are the other members of a direct room.
	DirectTargets []ref.UserID
	Encrypted     bool
	JoinedMembers uint64

	Notifications uint64
	Messages      uint64
	Mentions      uint64
	MarkedUnread  bool
	Favourite     bool
	LowPriority   bool

	// RecencyStamp orders rooms by last activity. Zero if unknown.
	RecencyStamp uint64
}

// Room is one entry of the live room list.
type Room interface {
	ID() ref.RoomID
	Info() RoomInfo

	// LatestEvent returns the newest event item, or nil.
	LatestEvent(ctx context.Context) (*EventItem, error)

	// MemberAvatarURL returns a member's avatar, or "".
	MemberAvatarURL(ctx context.Context, user ref.UserID) (string, error)
}

// RoomFilter selects which rooms a room list includes.
type RoomFilter func(RoomInfo) bool

// FilterNonLeft keeps every room we have not left.
func FilterNonLeft() RoomFilter {
	return func(info RoomInfo) bool { return info.Membership != MembershipStateLeft }
}

// FilterUnread keeps rooms with unread notifications or marked unread.
func FilterUnread() RoomFilter {
	return func(info RoomInfo) bool { return info.Notifications > 0 || info.MarkedUnread }
}

// FilterAll keeps rooms every filter keeps.
func FilterAll(filters ...RoomFilter) RoomFilter {
	return func(info RoomInfo) bool {
		for _, filter := range filters {
			if !filter(info) {
				return false
			}
		}
		return true
	}
}

// RoomListController adjusts a live room list without resubscribing.
type RoomListController interface {
	SetFilter(filter RoomFilter)
}

// RoomListSource produces the live room list.
type RoomListSource interface {
	// SubscribeRoomList returns a stream of diff batches over the
	// filtered list, loaded pageSize rooms at a time, and the
	// controller that swaps its filter.
	SubscribeRoomList(ctx context.Context, pageSize int) (Stream[[]VectorDiff[Room]], RoomListController, error)
}
