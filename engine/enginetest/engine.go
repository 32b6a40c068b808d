// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// Engine is a fake engine.Engine. Construct with New; the exported
// feeds and hooks may be set before the fake is handed out.
type Engine struct {
	Me ref.UserID

	SendUpdates *Feed[engine.SendQueueUpdate]
	SendErrors  *Feed[engine.SendQueueError]
	// SendTextFunc answers SendText. Nil echoes a fixed event id.
	SendTextFunc func(ctx context.Context, room ref.RoomID, body, transactionID string) (ref.EventID, error)

	// RequestDeviceFunc and RequestUserFunc answer verification
	// requests. Nil returns ErrDeviceNotFound / ErrNoIdentity.
	RequestDeviceFunc func(ctx context.Context, device ref.DeviceID) (engine.VerificationRequest, error)
	RequestUserFunc   func(ctx context.Context, user ref.UserID) (engine.VerificationRequest, error)
	Incoming          *Feed[engine.IncomingVerification]

	RoomDiffs *Feed[[]engine.VectorDiff[engine.Room]]

	SessionChanges *Feed[engine.SessionChange]
	SyncStates     *Feed[engine.SyncUpdate]
	// SyncStarts and SyncStops count Start and Stop calls.
	SyncStarts atomic.Int64
	SyncStops  atomic.Int64
	// Probes counts IsActive calls.
	Probes atomic.Int64
	active atomic.Bool

	// TypingReleases counts released typing subscriptions.
	TypingReleases atomic.Int64

	mutex             sync.Mutex
	timelines         map[ref.RoomID]*Timeline
	retried           []string
	queueEnabled      []bool
	roomQueueEnabled  map[ref.RoomID]bool
	requests          map[string]engine.VerificationRequest
	verifications     map[string]engine.Verification
	filters           []engine.RoomFilter
	pageSizes         []int
	typing            map[ref.RoomID]*Feed[[]ref.UserID]
	receipts          map[ref.RoomID]*Feed[struct{}]
	members           map[ref.RoomID]map[ref.UserID]engine.Member
	memberLookups     atomic.Int64
	verificationCalls atomic.Int64
}

// New returns an empty fake logged in as me.
func New(me string) *Engine {
	return &Engine{
		Me:               ref.MustParseUserID(me),
		SendUpdates:      NewFeed[engine.SendQueueUpdate](64),
		SendErrors:       NewFeed[engine.SendQueueError](64),
		Incoming:         NewFeed[engine.IncomingVerification](16),
		RoomDiffs:        NewFeed[[]engine.VectorDiff[engine.Room]](64),
		SessionChanges:   NewFeed[engine.SessionChange](16),
		SyncStates:       NewFeed[engine.SyncUpdate](16),
		timelines:        make(map[ref.RoomID]*Timeline),
		roomQueueEnabled: make(map[ref.RoomID]bool),
		requests:         make(map[string]engine.VerificationRequest),
		verifications:    make(map[string]engine.Verification),
		typing:           make(map[ref.RoomID]*Feed[[]ref.UserID]),
		receipts:         make(map[ref.RoomID]*Feed[struct{}]),
		members:          make(map[ref.RoomID]map[ref.UserID]engine.Member),
	}
}

var _ engine.Engine = (*Engine)(nil)

func (fake *Engine) UserID() ref.UserID { return fake.Me }

// AddTimeline registers the timeline Timeline returns for room.
func (fake *Engine) AddTimeline(room ref.RoomID, timeline *Timeline) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.timelines[room] = timeline
}

func (fake *Engine) Timeline(ctx context.Context, room ref.RoomID) (engine.Timeline, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	timeline, found := fake.timelines[room]
	if !found {
		return nil, fmt.Errorf("room %s not found", room)
	}
	return timeline, nil
}

func (fake *Engine) SubscribeSendQueue() engine.Stream[engine.SendQueueUpdate] {
	return fake.SendUpdates.Subscribe()
}

func (fake *Engine) SubscribeSendQueueErrors() engine.Stream[engine.SendQueueError] {
	return fake.SendErrors.Subscribe()
}

func (fake *Engine) SendText(ctx context.Context, room ref.RoomID, body, transactionID string) (ref.EventID, error) {
	if fake.SendTextFunc != nil {
		return fake.SendTextFunc(ctx, room, body, transactionID)
	}
	return ref.MustParseEventID("$sent-" + transactionID), nil
}

func (fake *Engine) RetrySend(ctx context.Context, transactionID string) error {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.retried = append(fake.retried, transactionID)
	return nil
}

// Retried returns the transaction ids passed to RetrySend.
func (fake *Engine) Retried() []string {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return append([]string(nil), fake.retried...)
}

func (fake *Engine) SetSendQueueEnabled(ctx context.Context, enabled bool) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.queueEnabled = append(fake.queueEnabled, enabled)
}

// QueueEnabledCalls returns the arguments of SetSendQueueEnabled.
func (fake *Engine) QueueEnabledCalls() []bool {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return append([]bool(nil), fake.queueEnabled...)
}

func (fake *Engine) SetRoomSendQueueEnabled(ctx context.Context, room ref.RoomID, enabled bool) error {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.roomQueueEnabled[room] = enabled
	return nil
}

// RoomQueueEnabled returns the last SetRoomSendQueueEnabled value for
// room and whether one was set.
func (fake *Engine) RoomQueueEnabled(room ref.RoomID) (enabled, set bool) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	enabled, set = fake.roomQueueEnabled[room]
	return enabled, set
}

func (fake *Engine) RequestDeviceVerification(ctx context.Context, device ref.DeviceID) (engine.VerificationRequest, error) {
	if fake.RequestDeviceFunc == nil {
		return nil, engine.ErrDeviceNotFound
	}
	return fake.RequestDeviceFunc(ctx, device)
}

func (fake *Engine) RequestUserVerification(ctx context.Context, user ref.UserID) (engine.VerificationRequest, error) {
	if fake.RequestUserFunc == nil {
		return nil, engine.ErrNoIdentity
	}
	return fake.RequestUserFunc(ctx, user)
}

// AddRequest makes request findable by FindRequest.
func (fake *Engine) AddRequest(user ref.UserID, request engine.VerificationRequest) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.requests[user.String()+"|"+request.FlowID()] = request
}

// AddVerification makes verification findable by FindVerification.
func (fake *Engine) AddVerification(user ref.UserID, verification engine.Verification) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.verifications[user.String()+"|"+verification.FlowID()] = verification
}

func (fake *Engine) FindRequest(ctx context.Context, user ref.UserID, flowID string) engine.VerificationRequest {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return fake.requests[user.String()+"|"+flowID]
}

func (fake *Engine) FindVerification(ctx context.Context, user ref.UserID, flowID string) engine.Verification {
	fake.verificationCalls.Add(1)
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return fake.verifications[user.String()+"|"+flowID]
}

// VerificationLookups counts FindVerification calls.
func (fake *Engine) VerificationLookups() int { return int(fake.verificationCalls.Load()) }

func (fake *Engine) SubscribeVerificationRequests() engine.Stream[engine.IncomingVerification] {
	return fake.Incoming.Subscribe()
}

type filterController struct{ fake *Engine }

func (controller filterController) SetFilter(filter engine.RoomFilter) {
	controller.fake.mutex.Lock()
	defer controller.fake.mutex.Unlock()
	controller.fake.filters = append(controller.fake.filters, filter)
}

func (fake *Engine) SubscribeRoomList(ctx context.Context, pageSize int) (engine.Stream[[]engine.VectorDiff[engine.Room]], engine.RoomListController, error) {
	fake.mutex.Lock()
	fake.pageSizes = append(fake.pageSizes, pageSize)
	fake.mutex.Unlock()
	return fake.RoomDiffs.Subscribe(), filterController{fake: fake}, nil
}

// Filters returns every filter installed through the controller.
func (fake *Engine) Filters() []engine.RoomFilter {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return append([]engine.RoomFilter(nil), fake.filters...)
}

// PageSizes returns the page sizes passed to SubscribeRoomList.
func (fake *Engine) PageSizes() []int {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return append([]int(nil), fake.pageSizes...)
}

func (fake *Engine) SubscribeSessionChanges() engine.Stream[engine.SessionChange] {
	return fake.SessionChanges.Subscribe()
}

// SetActive sets what IsActive reports.
func (fake *Engine) SetActive(active bool) { fake.active.Store(active) }

func (fake *Engine) IsActive(ctx context.Context) bool {
	fake.Probes.Add(1)
	return fake.active.Load()
}

func (fake *Engine) SubscribeSyncState() engine.Stream[engine.SyncUpdate] {
	return fake.SyncStates.Subscribe()
}

func (fake *Engine) Start(ctx context.Context) error {
	fake.SyncStarts.Add(1)
	return nil
}

func (fake *Engine) Stop(ctx context.Context) error {
	fake.SyncStops.Add(1)
	return nil
}

// TypingFeed returns the typing feed for room, creating it.
func (fake *Engine) TypingFeed(room ref.RoomID) *Feed[[]ref.UserID] {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	feed, found := fake.typing[room]
	if !found {
		feed = NewFeed[[]ref.UserID](16)
		fake.typing[room] = feed
	}
	return feed
}

func (fake *Engine) SubscribeTyping(ctx context.Context, room ref.RoomID) (engine.Stream[[]ref.UserID], func(), error) {
	var once sync.Once
	release := func() { once.Do(func() { fake.TypingReleases.Add(1) }) }
	return fake.TypingFeed(room).Subscribe(), release, nil
}

// ReceiptFeed returns the own-receipt feed for room, creating it.
func (fake *Engine) ReceiptFeed(room ref.RoomID) *Feed[struct{}] {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	feed, found := fake.receipts[room]
	if !found {
		feed = NewFeed[struct{}](16)
		fake.receipts[room] = feed
	}
	return feed
}

func (fake *Engine) SubscribeOwnReceipts(ctx context.Context, room ref.RoomID) (engine.Stream[struct{}], error) {
	return fake.ReceiptFeed(room).Subscribe(), nil
}

// AddMember records a member for Member lookups.
func (fake *Engine) AddMember(room ref.RoomID, member engine.Member) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if fake.members[room] == nil {
		fake.members[room] = make(map[ref.UserID]engine.Member)
	}
	fake.members[room][member.User] = member
}

// ErrMemberNotFound is returned by Member for unknown users.
var ErrMemberNotFound = errors.New("enginetest: member not found")

func (fake *Engine) Member(ctx context.Context, room ref.RoomID, user ref.UserID) (engine.Member, error) {
	fake.memberLookups.Add(1)
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	member, found := fake.members[room][user]
	if !found {
		return engine.Member{}, ErrMemberNotFound
	}
	return member, nil
}

// MemberLookups counts Member calls.
func (fake *Engine) MemberLookups() int { return int(fake.memberLookups.Load()) }
