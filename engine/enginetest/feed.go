// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/broadcast"
	"github.com/bureau-foundation/sessionbridge/lib/testutil"
)

// Feed is a test-controlled engine stream.
type Feed[V any] struct {
	channel     *broadcast.Channel[V]
	subscribers atomic.Int64
}

// NewFeed returns a Feed retaining capacity values per receiver.
func NewFeed[V any](capacity int) *Feed[V] {
	return &Feed[V]{channel: broadcast.New[V](capacity)}
}

// Subscribe returns a stream of values sent after the call.
func (feed *Feed[V]) Subscribe() engine.Stream[V] {
	receiver := feed.channel.Subscribe()
	feed.subscribers.Add(1)
	return receiver
}

// Send publishes value to every subscriber.
func (feed *Feed[V]) Send(value V) bool { return feed.channel.Send(value) }

// Close ends the stream.
func (feed *Feed[V]) Close() { feed.channel.Close() }

// Subscribers returns how many times Subscribe has been called.
func (feed *Feed[V]) Subscribers() int { return int(feed.subscribers.Load()) }

// WaitForSubscribers blocks until at least count subscriptions exist.
func (feed *Feed[V]) WaitForSubscribers(t testutil.T, count int) {
	t.Helper()
	testutil.Eventually(t, 5*time.Second, func() bool {
		return feed.Subscribers() >= count
	}, "waiting for %d subscribers", count)
}
