// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomlist

import (
	"context"
	"math"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/render"
)

func (projector *Projector) flatten(ctx context.Context, rooms []engine.Room) []Entry {
	entries := make([]Entry, 0, len(rooms))
	for _, room := range rooms {
		entries = append(entries, projector.entry(ctx, room))
	}
	return entries
}

func (projector *Projector) entry(ctx context.Context, room engine.Room) Entry {
	info := room.Info()
	roomID := room.ID().String()

	entry := Entry{
		RoomID:        roomID,
		Name:          info.DisplayName,
		LastTimestamp: info.RecencyStamp,
		Notifications: info.Notifications,
		Messages:      info.Messages,
		Mentions:      info.Mentions,
		MarkedUnread:  info.MarkedUnread,
		Favourite:     info.Favourite,
		LowPriority:   info.LowPriority,
		Direct:        info.IsDirect,
		Encrypted:     info.Encrypted,
		MemberCount:   uint32(min(info.JoinedMembers, math.MaxUint32)),
	}
	if entry.Name == "" {
		entry.Name = roomID
	}
	if info.Topic != "" {
		topic := info.Topic
		entry.Topic = &topic
	}

	avatar := info.AvatarURL
	if avatar == "" && info.IsDirect {
		avatar = projector.peerAvatar(ctx, room, info)
	}
	if avatar != "" {
		entry.AvatarURL = &avatar
	}

	latest, err := room.LatestEvent(ctx)
	if err != nil {
		projector.logger.Debug("latest event unavailable", "room_id", roomID, "error", err)
	} else if latest != nil {
		rendered := render.Latest(latest)
		entry.LatestEvent = &rendered
	}
	return entry
}

// peerAvatar returns the avatar of the first direct target that is not
// us, or "".
func (projector *Projector) peerAvatar(ctx context.Context, room engine.Room, info engine.RoomInfo) string {
	for _, target := range info.DirectTargets {
		if !projector.me.IsZero() && target == projector.me {
			continue
		}
		url, err := room.MemberAvatarURL(ctx, target)
		if err != nil {
			projector.logger.Debug("peer avatar unavailable", "room_id", room.ID().String(), "user_id", target.String(), "error", err)
			return ""
		}
		return url
	}
	return ""
}
