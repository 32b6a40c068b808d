// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// Timeline is a fake engine.Timeline.
type Timeline struct {
	// Diffs carries the diff batches the test pushes.
	Diffs *Feed[[]engine.VectorDiff[engine.TimelineItem]]

	// ReplyFetches receives every FetchReplyDetails argument.
	ReplyFetches chan ref.EventID

	// SubscribeErr, when set, fails Subscribe.
	SubscribeErr error

	memberFetches atomic.Int64

	mutex     sync.Mutex
	initial   []engine.TimelineItem
	latest    *engine.EventItem
	backwards []uint16
	forwards  []uint16
}

// NewTimeline returns a Timeline whose Subscribe reports initial.
func NewTimeline(initial ...engine.TimelineItem) *Timeline {
	return &Timeline{
		Diffs:        NewFeed[[]engine.VectorDiff[engine.TimelineItem]](64),
		ReplyFetches: make(chan ref.EventID, 64),
		initial:      initial,
	}
}

func (timeline *Timeline) Subscribe(ctx context.Context) ([]engine.TimelineItem, engine.Stream[[]engine.VectorDiff[engine.TimelineItem]], error) {
	if timeline.SubscribeErr != nil {
		return nil, nil, timeline.SubscribeErr
	}
	timeline.mutex.Lock()
	initial := append([]engine.TimelineItem(nil), timeline.initial...)
	timeline.mutex.Unlock()
	return initial, timeline.Diffs.Subscribe(), nil
}

func (timeline *Timeline) FetchReplyDetails(ctx context.Context, eventID ref.EventID) error {
	select {
	case timeline.ReplyFetches <- eventID:
	default:
	}
	return nil
}

func (timeline *Timeline) FetchMembers(ctx context.Context) error {
	timeline.memberFetches.Add(1)
	return nil
}

// MemberFetches returns how many times FetchMembers was called.
func (timeline *Timeline) MemberFetches() int { return int(timeline.memberFetches.Load()) }

func (timeline *Timeline) PaginateBackwards(ctx context.Context, count uint16) error {
	timeline.mutex.Lock()
	defer timeline.mutex.Unlock()
	timeline.backwards = append(timeline.backwards, count)
	return nil
}

func (timeline *Timeline) PaginateForwards(ctx context.Context, count uint16) error {
	timeline.mutex.Lock()
	defer timeline.mutex.Unlock()
	timeline.forwards = append(timeline.forwards, count)
	return nil
}

// Paginations returns the counts passed to PaginateBackwards and
// PaginateForwards.
func (timeline *Timeline) Paginations() (backwards, forwards []uint16) {
	timeline.mutex.Lock()
	defer timeline.mutex.Unlock()
	return append([]uint16(nil), timeline.backwards...), append([]uint16(nil), timeline.forwards...)
}

// SetLatest sets the event LatestEvent reports.
func (timeline *Timeline) SetLatest(event *engine.EventItem) {
	timeline.mutex.Lock()
	defer timeline.mutex.Unlock()
	timeline.latest = event
}

func (timeline *Timeline) LatestEvent(ctx context.Context) (*engine.EventItem, error) {
	timeline.mutex.Lock()
	defer timeline.mutex.Unlock()
	return timeline.latest, nil
}
