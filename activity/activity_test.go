// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/engine/enginetest"
	"github.com/bureau-foundation/sessionbridge/lib/memberstore"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
	"github.com/bureau-foundation/sessionbridge/lib/testutil"
)

const wait = 5 * time.Second

var (
	testRoom = ref.MustParseRoomID("!room:example.org")
	alice    = ref.MustParseUserID("@alice:example.org")
	bob      = ref.MustParseUserID("@bob:example.org")
	carol    = ref.MustParseUserID("@carol:example.org")
)

type typingRecorder struct{ updates chan []string }

func (observer *typingRecorder) OnTyping(names []string) { observer.updates <- names }

type receiptRecorder struct{ changes chan struct{} }

func (observer *receiptRecorder) OnChanged() { observer.changes <- struct{}{} }

func openStore(t *testing.T) *memberstore.Store {
	t.Helper()
	store, err := memberstore.Open(memberstore.Config{Path: filepath.Join(t.TempDir(), "members.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTypingResolvesNames(t *testing.T) {
	fake := enginetest.New("@me:example.org")
	store := openStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, memberstore.Member{Room: testRoom, User: alice, DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	fake.AddMember(testRoom, engine.Member{User: bob, DisplayName: "Bob"})

	registry := subscription.New(nil)
	t.Cleanup(registry.Shutdown)
	watcher := New(Config{Source: fake, Names: store})
	observer := &typingRecorder{updates: make(chan []string, 16)}
	registry.Register("typing", watcher.Typing(testRoom, observer))
	feed := fake.TypingFeed(testRoom)
	feed.WaitForSubscribers(t, 1)

	feed.Send([]ref.UserID{carol, alice, bob, alice})
	got := testutil.RequireReceive(t, observer.updates, wait, "typing names")
	if want := []string{"Alice", "Bob", "carol"}; !slices.Equal(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if lookups := fake.MemberLookups(); lookups != 2 {
		t.Errorf("engine member lookups = %d, want 2 (bob and carol)", lookups)
	}
	cached, found, err := store.Lookup(ctx, testRoom, bob)
	if err != nil || !found || cached.DisplayName != "Bob" {
		t.Errorf("bob not written to the name cache: %+v, %v, %v", cached, found, err)
	}

	feed.Send([]ref.UserID{bob, carol, alice})
	feed.Send([]ref.UserID{bob})
	got = testutil.RequireReceive(t, observer.updates, wait, "narrowed names")
	if !slices.Equal(got, []string{"Bob"}) {
		t.Fatalf("names = %v, want [Bob]", got)
	}
	if lookups := fake.MemberLookups(); lookups != 2 {
		t.Errorf("resolved names looked up again: %d lookups", lookups)
	}

	feed.Send(nil)
	got = testutil.RequireReceive(t, observer.updates, wait, "nobody typing")
	if len(got) != 0 {
		t.Fatalf("names = %v, want none", got)
	}
	testutil.RequireNoReceive(t, observer.updates, 50*time.Millisecond, "extra update")
}

func TestTypingWithoutCache(t *testing.T) {
	fake := enginetest.New("@me:example.org")
	fake.AddMember(testRoom, engine.Member{User: alice})
	registry := subscription.New(nil)
	t.Cleanup(registry.Shutdown)
	observer := &typingRecorder{updates: make(chan []string, 16)}
	registry.Register("typing", New(Config{Source: fake}).Typing(testRoom, observer))
	feed := fake.TypingFeed(testRoom)
	feed.WaitForSubscribers(t, 1)

	feed.Send([]ref.UserID{alice})
	if got := testutil.RequireReceive(t, observer.updates, wait, "names"); !slices.Equal(got, []string{"alice"}) {
		t.Fatalf("member without display name = %v, want localpart", got)
	}
}

func TestTypingReleasedOnCancel(t *testing.T) {
	fake := enginetest.New("@me:example.org")
	registry := subscription.New(nil)
	t.Cleanup(registry.Shutdown)
	id := registry.Register("typing", New(Config{Source: fake}).Typing(testRoom, &typingRecorder{updates: make(chan []string, 1)}))
	fake.TypingFeed(testRoom).WaitForSubscribers(t, 1)

	registry.Cancel(id)
	testutil.Eventually(t, wait, func() bool { return fake.TypingReleases.Load() == 1 }, "typing subscription released")
}

func TestReceiptsNotify(t *testing.T) {
	fake := enginetest.New("@me:example.org")
	registry := subscription.New(nil)
	t.Cleanup(registry.Shutdown)
	observer := &receiptRecorder{changes: make(chan struct{}, 16)}
	registry.Register("receipts", New(Config{Source: fake}).Receipts(testRoom, observer))
	feed := fake.ReceiptFeed(testRoom)
	feed.WaitForSubscribers(t, 1)

	feed.Send(struct{}{})
	feed.Send(struct{}{})
	testutil.RequireReceive(t, observer.changes, wait, "first change")
	testutil.RequireReceive(t, observer.changes, wait, "second change")

	feed.Close()
	testutil.RequireNoReceive(t, observer.changes, 50*time.Millisecond, "change after close")
}
