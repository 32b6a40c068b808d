// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"sync"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// Room is a fake engine.Room.
type Room struct {
	RoomID ref.RoomID

	mutex   sync.Mutex
	info    engine.RoomInfo
	latest  *engine.EventItem
	avatars map[ref.UserID]string
}

// NewRoom returns a Room with the given summary.
func NewRoom(id string, info engine.RoomInfo) *Room {
	return &Room{RoomID: ref.MustParseRoomID(id), info: info, avatars: make(map[ref.UserID]string)}
}

func (room *Room) ID() ref.RoomID { return room.RoomID }

func (room *Room) Info() engine.RoomInfo {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	return room.info
}

// SetInfo replaces the room summary.
func (room *Room) SetInfo(info engine.RoomInfo) {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	room.info = info
}

// SetLatest sets the event LatestEvent reports.
func (room *Room) SetLatest(event *engine.EventItem) {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	room.latest = event
}

// SetMemberAvatar records a member's avatar.
func (room *Room) SetMemberAvatar(user ref.UserID, url string) {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	room.avatars[user] = url
}

func (room *Room) LatestEvent(ctx context.Context) (*engine.EventItem, error) {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	return room.latest, nil
}

func (room *Room) MemberAvatarURL(ctx context.Context, user ref.UserID) (string, error) {
	room.mutex.Lock()
	defer room.mutex.Unlock()
	return room.avatars[user], nil
}
