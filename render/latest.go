// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"github.com/bureau-foundation/sessionbridge/engine"
)

// LatestEvent summarizes a room's newest event for the room list.
type LatestEvent struct {
	EventID string `json:"event_id"`
	Sender  string `json:"sender"`
	// Body is nil for events with nothing to preview (stickers,
	// polls, redactions, undecryptable events, calls).
	Body    *string `json:"body,omitempty"`
	MsgType *string `json:"msgtype,omitempty"`
	// EventType defaults to m.room.message.
	EventType string `json:"event_type"`
	Timestamp int64  `json:"timestamp"`
	Redacted  bool   `json:"is_redacted"`
	Encrypted bool   `json:"is_encrypted"`
}

var knownMsgTypes = map[string]bool{
	"m.image":    true,
	"m.video":    true,
	"m.audio":    true,
	"m.file":     true,
	"m.location": true,
	"m.notice":   true,
	"m.emote":    true,
	"m.text":     true,
}

// Latest renders event as a room preview.
func Latest(event *engine.EventItem) LatestEvent {
	latest := LatestEvent{
		EventID:   event.EventID.String(),
		Sender:    event.Sender.String(),
		EventType: "m.room.message",
		Timestamp: int64(event.TimestampMillis),
	}

	content := event.Content
	switch content.Kind {
	case engine.ContentMessage:
		body := MessageText(content.Message)
		latest.Body = &body
		if content.Message != nil && knownMsgTypes[content.Message.MsgType] {
			msgType := content.Message.MsgType
			latest.MsgType = &msgType
		}
	case engine.ContentSticker:
		msgType := "m.sticker"
		latest.MsgType = &msgType
	case engine.ContentPoll:
		latest.EventType = "m.poll.start"
	case engine.ContentRedacted:
		latest.Redacted = true
	case engine.ContentUnableToDecrypt:
		latest.Encrypted = true
	case engine.ContentOtherMessageLike:
		body := "Custom event"
		latest.Body = &body
	case engine.ContentCallInvite:
		latest.EventType = "m.call.invite"
	case engine.ContentRTCNotification:
		latest.EventType = "m.rtc.notification"
	default:
		body := TimelineText(event)
		latest.Body = &body
	}
	return latest
}
