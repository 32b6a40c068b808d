// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// TimelineItem is one entry in a live room timeline. ID is stable for
// the item's lifetime regardless of its position. Virtual items (day
// dividers, read markers) have a nil Event.
type TimelineItem struct {
	ID    string
	Event *EventItem
}

// EventItem is a timeline entry backed by a room event, remote or a
// local echo still in the send queue.
type EventItem struct {
	// EventID is zero for local echoes that have not been sent.
	EventID       ref.EventID
	TransactionID string
	Sender        ref.UserID
	SenderProfile Profile
	// TimestampMillis is the origin server timestamp in Unix ms.
	TimestampMillis uint64
	// SendState is nil for remote events.
	SendState *EventSendState
	Content   Content
	// InReplyTo is set when the event is a reply.
	InReplyTo  *ReplyDetails
	ThreadRoot ref.EventID
	Edited     bool
}

// Profile is a sender's display data as the timeline knows it.
type Profile struct {
	DisplayName string
	AvatarURL   string
	// Known is false while the profile is still being fetched.
	Known bool
}

// SendStateKind is the progress of a local echo.
type SendStateKind uint8

const (
	SendStateNotSentYet SendStateKind = iota
	SendStateFailed
	SendStateSent
)

// EventSendState is the send-queue state attached to a local echo.
type EventSendState struct {
	Kind SendStateKind
	// EventID is set for SendStateSent.
	EventID ref.EventID
	Error   string
}

// ReplyState says whether the replied-to event has been loaded.
type ReplyState uint8

const (
	ReplyUnavailable ReplyState = iota
	ReplyPending
	ReplyReady
	ReplyError
)

// ReplyDetails describes the event an EventItem replies to. Sender,
// SenderProfile, and Body are meaningful only when State is
// ReplyReady.
type ReplyDetails struct {
	EventID       ref.EventID
	State         ReplyState
	Sender        ref.UserID
	SenderProfile Profile
	// Body is empty when the replied-to event is not a message.
	Body string
}

// Resolved reports whether the replied-to event has been loaded.
func (details *ReplyDetails) Resolved() bool {
	return details.State == ReplyReady
}

// ContentKind classifies an event's content.
type ContentKind uint8

const (
	ContentMessage ContentKind = iota
	ContentSticker
	ContentPoll
	ContentRedacted
	ContentUnableToDecrypt
	ContentOtherMessageLike
	ContentMembership
	ContentProfileChange
	ContentOtherState
	ContentFailedToParseMessageLike
	ContentFailedToParseState
	ContentCallInvite
	ContentRTCNotification
)

// Content is the decoded body of an event. Exactly the field matching
// Kind is populated; EventType is set for the parse-failure kinds and
// ContentOtherState.
type Content struct {
	Kind       ContentKind
	Message    *MessageContent
	Poll       *PollContent
	Membership *MembershipChange
	Profile    *ProfileChange
	State      *StateChange
	EventType  string
}

// MessageContent is an m.room.message body.
type MessageContent struct {
	// MsgType is the Matrix msgtype ("m.text", "m.image", ...).
	MsgType string
	Body    string
}

// PollContent is a poll start event.
type PollContent struct {
	Question string
}

// MembershipKind is the transition a membership event records.
type MembershipKind uint8

const (
	MembershipUnknown MembershipKind = iota
	MembershipJoined
	MembershipLeft
	MembershipInvited
	MembershipKicked
	MembershipBanned
	MembershipUnbanned
	MembershipInvitationAccepted
	MembershipInvitationRejected
	MembershipInvitationRevoked
	MembershipKickedAndBanned
	MembershipKnocked
	MembershipKnockAccepted
	MembershipKnockDenied
)

// MembershipChange is an m.room.member event changing membership.
type MembershipChange struct {
	User   ref.UserID
	Change MembershipKind
}

// ProfileChange is an m.room.member event changing only the profile.
// Nil name pointers mean "unset".
type ProfileChange struct {
	User           ref.UserID
	OldDisplayName *string
	NewDisplayName *string
	// DisplayNameChanged is false when the event did not touch the
	// display name at all.
	DisplayNameChanged bool
	AvatarChanged      bool
}

// StateChange is any other state event. Name and Topic are filled for
// m.room.name and m.room.topic.
type StateChange struct {
	EventType string
	Name      string
	Topic     string
}

// Timeline is a live timeline for one room.
type Timeline interface {
	// Subscribe returns the current items and a stream of diff
	// batches applying to them.
	Subscribe(ctx context.Context) ([]TimelineItem, Stream[[]VectorDiff[TimelineItem]], error)

	// FetchReplyDetails loads the event replied to by eventID so a
	// later diff can carry it.
	FetchReplyDetails(ctx context.Context, eventID ref.EventID) error

	// FetchMembers loads the room member list.
	FetchMembers(ctx context.Context) error

	PaginateBackwards(ctx context.Context, count uint16) error
	PaginateForwards(ctx context.Context, count uint16) error

	// LatestEvent returns the newest event item, or nil.
	LatestEvent(ctx context.Context) (*EventItem, error)
}

// TimelineSource opens timelines by room.
type TimelineSource interface {
	Timeline(ctx context.Context, room ref.RoomID) (Timeline, error)
}
