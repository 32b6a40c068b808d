// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// SendState is the delivery state of a rendered message.
type SendState string

const (
	SendStateSending SendState = "sending"
	SendStateFailed  SendState = "failed"
	SendStateSent    SendState = "sent"
)

// MessageEvent is one timeline entry as observers see it. Optional
// text fields are empty when absent.
type MessageEvent struct {
	ItemID            string    `json:"item_id"`
	EventID           string    `json:"event_id"`
	RoomID            string    `json:"room_id"`
	Sender            string    `json:"sender"`
	SenderDisplayName string    `json:"sender_display_name,omitempty"`
	SenderAvatarURL   string    `json:"sender_avatar_url,omitempty"`
	Body              string    `json:"body"`
	TimestampMillis   uint64    `json:"timestamp_ms"`
	SendState         SendState `json:"send_state"`
	TransactionID     string    `json:"txn_id,omitempty"`

	ReplyToEventID           string `json:"reply_to_event_id,omitempty"`
	ReplyToSender            string `json:"reply_to_sender,omitempty"`
	ReplyToSenderDisplayName string `json:"reply_to_sender_display_name,omitempty"`
	ReplyToBody              string `json:"reply_to_body,omitempty"`

	ThreadRootEventID string `json:"thread_root_event_id,omitempty"`
	Edited            bool   `json:"is_edited"`
}

// Message renders item for room. ok is false for virtual items.
func Message(room ref.RoomID, item engine.TimelineItem) (MessageEvent, bool) {
	event := item.Event
	if event == nil {
		return MessageEvent{}, false
	}

	rendered := MessageEvent{
		ItemID:          item.ID,
		EventID:         event.EventID.String(),
		RoomID:          room.String(),
		Sender:          event.Sender.String(),
		TimestampMillis: event.TimestampMillis,
		TransactionID:   event.TransactionID,
		Edited:          event.Edited,
	}
	if !event.ThreadRoot.IsZero() {
		rendered.ThreadRootEventID = event.ThreadRoot.String()
	}
	if event.SenderProfile.Known {
		rendered.SenderDisplayName = event.SenderProfile.DisplayName
		rendered.SenderAvatarURL = event.SenderProfile.AvatarURL
	}

	switch {
	case event.SendState == nil && event.EventID.IsZero():
		rendered.SendState = SendStateSending
	case event.SendState == nil:
		rendered.SendState = SendStateSent
	case event.SendState.Kind == engine.SendStateNotSentYet:
		rendered.SendState = SendStateSending
	case event.SendState.Kind == engine.SendStateFailed:
		rendered.SendState = SendStateFailed
	default:
		rendered.SendState = SendStateSent
		if rendered.EventID == "" {
			rendered.EventID = event.SendState.EventID.String()
		}
	}
	if rendered.ItemID == "" {
		rendered.ItemID = identifier(event)
	}

	if reply := event.InReplyTo; reply != nil {
		rendered.ReplyToEventID = reply.EventID.String()
		if reply.Resolved() {
			rendered.ReplyToSender = reply.Sender.String()
			rendered.ReplyToBody = reply.Body
			if reply.SenderProfile.Known {
				rendered.ReplyToSenderDisplayName = reply.SenderProfile.DisplayName
			}
		}
	}

	content := event.Content
	switch content.Kind {
	case engine.ContentMessage:
		body := ""
		if content.Message != nil {
			body = content.Message.Body
		}
		if event.InReplyTo != nil {
			body = StripReplyFallback(body)
		}
		rendered.Body = body
	case engine.ContentPoll:
		if content.Poll != nil {
			rendered.Body = content.Poll.Question
		}
	default:
		rendered.Body = TimelineText(event)
	}
	return rendered, true
}

// NeedsReplyDetails returns the replied-to event id when event is a
// reply whose target has not been loaded.
func NeedsReplyDetails(event *engine.EventItem) (ref.EventID, bool) {
	if event == nil || event.InReplyTo == nil || event.InReplyTo.Resolved() {
		return ref.EventID{}, false
	}
	return event.InReplyTo.EventID, true
}

func identifier(event *engine.EventItem) string {
	if !event.EventID.IsZero() {
		return event.EventID.String()
	}
	return event.TransactionID
}
