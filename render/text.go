// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/sessionbridge/engine"
)

const undecryptableMessage = "Encrypted or unsupported message. Verify this session or restore keys to view."

// MessageText is the display text of an m.room.message body. Blank
// bodies are replaced by a hint that the content could not be shown.
func MessageText(message *engine.MessageContent) string {
	if message == nil || strings.TrimSpace(message.Body) == "" {
		return undecryptableMessage
	}
	return message.Body
}

// TimelineText is a one-line description of any event, used as the
// body of non-message timeline entries and room previews.
func TimelineText(event *engine.EventItem) string {
	content := event.Content
	actor := event.Sender.String()

	switch content.Kind {
	case engine.ContentMessage:
		return MessageText(content.Message)
	case engine.ContentSticker:
		return "sent a sticker"
	case engine.ContentPoll:
		return "started a poll"
	case engine.ContentRedacted:
		return "Message deleted"
	case engine.ContentUnableToDecrypt:
		return "Unable to decrypt this message"
	case engine.ContentOtherMessageLike:
		return "Custom message"
	case engine.ContentMembership:
		return membershipText(actor, content.Membership)
	case engine.ContentProfileChange:
		return profileText(content.Profile)
	case engine.ContentOtherState:
		return stateText(actor, content)
	case engine.ContentFailedToParseMessageLike:
		return "Unsupported message-like event: " + content.EventType
	case engine.ContentFailedToParseState:
		return "Unsupported state event: " + content.EventType
	case engine.ContentCallInvite:
		return "Started a call"
	case engine.ContentRTCNotification:
		return "Call notification"
	default:
		return "Custom message"
	}
}

func membershipText(actor string, change *engine.MembershipChange) string {
	if change == nil {
		return actor + " updated membership"
	}
	subject := change.User.String()
	switch change.Change {
	case engine.MembershipJoined:
		return subject + " joined the room"
	case engine.MembershipLeft:
		return subject + " left the room"
	case engine.MembershipInvited:
		return actor + " invited " + subject
	case engine.MembershipKicked:
		return actor + " removed " + subject
	case engine.MembershipBanned:
		return actor + " banned " + subject
	case engine.MembershipUnbanned:
		return actor + " unbanned " + subject
	case engine.MembershipInvitationAccepted:
		return subject + " accepted the invite"
	case engine.MembershipInvitationRejected:
		return subject + " rejected the invite"
	case engine.MembershipInvitationRevoked:
		return actor + " revoked the invite for " + subject
	case engine.MembershipKickedAndBanned:
		return actor + " removed and banned " + subject
	case engine.MembershipKnocked:
		return subject + " knocked"
	case engine.MembershipKnockAccepted:
		return actor + " accepted " + subject
	case engine.MembershipKnockDenied:
		return actor + " denied " + subject
	default:
		return subject + " updated membership"
	}
}

func profileText(change *engine.ProfileChange) string {
	if change == nil {
		return "updated their profile"
	}
	subject := change.User.String()

	if change.DisplayNameChanged {
		previous, next := change.OldDisplayName, change.NewDisplayName
		switch {
		case previous == nil && next != nil:
			return fmt.Sprintf("%s set their display name to “%s”", subject, *next)
		case previous != nil && next != nil && *previous != *next:
			return fmt.Sprintf("%s changed their display name from “%s” to “%s”", subject, *previous, *next)
		case previous != nil && next == nil:
			return subject + " removed their display name"
		}
	}
	if change.AvatarChanged {
		return subject + " updated their avatar"
	}
	return subject + " updated their profile"
}

func stateText(actor string, content engine.Content) string {
	state := content.State
	eventType := content.EventType
	if state != nil && state.EventType != "" {
		eventType = state.EventType
	}

	switch eventType {
	case "m.room.name":
		name := ""
		if state != nil {
			name = state.Name
		}
		return actor + " changed the room name to " + name
	case "m.room.topic":
		topic := ""
		if state != nil {
			topic = state.Topic
		}
		return actor + " changed the topic to " + topic
	case "m.room.avatar":
		return actor + " changed the room avatar"
	case "m.room.encryption":
		return "Encryption enabled for this room"
	case "m.room.pinned_events":
		return actor + " updated pinned events"
	case "m.room.power_levels":
		return actor + " changed power levels"
	case "m.room.canonical_alias":
		return actor + " changed the main address"
	default:
		return actor + " updated state: " + eventType
	}
}

// StripReplyFallback removes the quoted reply fallback that older
// clients prepend to reply bodies: leading "> " lines and one blank
// line after them. A body that would become blank is returned as is.
func StripReplyFallback(body string) string {
	lines := strings.Split(body, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	quoted := 0
	for quoted < len(lines) && strings.HasPrefix(lines[quoted], ">") {
		quoted++
	}
	start := quoted
	if quoted > 0 && start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}

	stripped := strings.Join(lines[start:], "\n")
	if strings.TrimSpace(stripped) == "" {
		return body
	}
	return stripped
}
