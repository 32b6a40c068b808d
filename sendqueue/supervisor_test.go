// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sendqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/engine/enginetest"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
	"github.com/bureau-foundation/sessionbridge/lib/testutil"
)

const wait = 5 * time.Second

var testRoom = ref.MustParseRoomID("!room:example.org")

type recorder struct{ updates chan Update }

func newRecorder() *recorder { return &recorder{updates: make(chan Update, 64)} }

func (observer *recorder) OnUpdate(update Update) { observer.updates <- update }

func newSupervisor(t *testing.T) (*Supervisor, *enginetest.Engine, *subscription.Registry) {
	t.Helper()
	fake := enginetest.New("@me:example.org")
	registry := subscription.New(nil)
	t.Cleanup(registry.Shutdown)
	return New(Config{Queue: fake, Registry: registry}), fake, registry
}

func expect(t *testing.T, observer *recorder, state State, attempts uint32) Update {
	t.Helper()
	update := testutil.RequireReceive(t, observer.updates, wait, "update %v", state)
	if update.State != state || update.Attempts != attempts {
		t.Fatalf("update = %v attempts %d, want %v attempts %d (%+v)", update.State, update.Attempts, state, attempts, update)
	}
	return update
}

func TestLifecycleWithRetry(t *testing.T) {
	supervisor, fake, _ := newSupervisor(t)
	observer := newRecorder()
	if id := supervisor.Observe(observer); id == 0 {
		t.Fatal("Observe returned 0")
	}

	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueNewLocalEvent, TransactionID: "t1"})
	update := expect(t, observer, StateEnqueued, 0)
	if update.TransactionID != "t1" || update.RoomID != testRoom.String() {
		t.Errorf("enqueued update = %+v", update)
	}
	if attempts, found := supervisor.Attempts(testRoom, "t1"); !found || attempts != 0 {
		t.Errorf("record after enqueue = %d, %v", attempts, found)
	}

	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueRetry, TransactionID: "t1"})
	expect(t, observer, StateRetrying, 1)

	fake.SendUpdates.Send(engine.SendQueueUpdate{
		Room: testRoom, Kind: engine.SendQueueSent, TransactionID: "t1", EventID: ref.MustParseEventID("$abc"),
	})
	update = expect(t, observer, StateSent, 1)
	if update.EventID != "$abc" {
		t.Errorf("sent event id = %q, want $abc", update.EventID)
	}
	if _, found := supervisor.Attempts(testRoom, "t1"); found {
		t.Error("attempt record kept after Sent")
	}
}

func TestAttemptsIncreaseOnErrors(t *testing.T) {
	supervisor, fake, _ := newSupervisor(t)
	observer := newRecorder()
	supervisor.Observe(observer)

	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueNewLocalEvent, TransactionID: "t2"})
	expect(t, observer, StateEnqueued, 0)

	fake.SendUpdates.Send(engine.SendQueueUpdate{
		Room: testRoom, Kind: engine.SendQueueSendError, TransactionID: "t2", Error: "timeout", Recoverable: true,
	})
	update := expect(t, observer, StateFailed, 1)
	if update.Error != "timeout (recoverable=true)" {
		t.Errorf("error = %q", update.Error)
	}

	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueRetry, TransactionID: "t2"})
	expect(t, observer, StateRetrying, 2)

	fake.SendUpdates.Send(engine.SendQueueUpdate{
		Room: testRoom, Kind: engine.SendQueueSendError, TransactionID: "t2", Error: "forbidden",
	})
	update = expect(t, observer, StateFailed, 3)
	if update.Error != "forbidden (recoverable=false)" {
		t.Errorf("error = %q", update.Error)
	}
}

func TestCancelledRemovesRecord(t *testing.T) {
	supervisor, fake, _ := newSupervisor(t)
	observer := newRecorder()
	supervisor.Observe(observer)

	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueNewLocalEvent, TransactionID: "t3"})
	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueRetry, TransactionID: "t3"})
	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueCancelled, TransactionID: "t3"})
	expect(t, observer, StateEnqueued, 0)
	expect(t, observer, StateRetrying, 1)
	update := expect(t, observer, StateFailed, 0)
	if update.Error != "Cancelled before sending" {
		t.Errorf("error = %q", update.Error)
	}
	if supervisor.Tracked() != 0 {
		t.Errorf("Tracked = %d after cancel", supervisor.Tracked())
	}
}

func TestIgnoredKindsAndRoomScoping(t *testing.T) {
	supervisor, fake, _ := newSupervisor(t)
	observer := newRecorder()
	supervisor.Observe(observer)
	other := ref.MustParseRoomID("!other:example.org")

	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueMediaUpload, TransactionID: "m"})
	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueReplaced, TransactionID: "m"})
	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueRetry, TransactionID: "same"})
	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: other, Kind: engine.SendQueueRetry, TransactionID: "same"})

	first := expect(t, observer, StateRetrying, 1)
	second := expect(t, observer, StateRetrying, 1)
	if first.RoomID == second.RoomID {
		t.Errorf("both retries reported for %s", first.RoomID)
	}
}

func TestQueueDisabledError(t *testing.T) {
	supervisor, fake, _ := newSupervisor(t)
	observer := newRecorder()
	supervisor.Observe(observer)

	fake.SendErrors.Send(engine.SendQueueError{Room: testRoom, Error: "rate limited", Recoverable: true})
	update := expect(t, observer, StateFailed, 0)
	if update.TransactionID != "" {
		t.Errorf("transaction id = %q, want empty", update.TransactionID)
	}
	if update.Error != "Room send queue disabled (recoverable=true): rate limited" {
		t.Errorf("error = %q", update.Error)
	}
}

func TestLagSkipsAndContinues(t *testing.T) {
	supervisor, fake, _ := newSupervisor(t)
	blocked := make(chan struct{})
	observer := &blockingRecorder{recorder: newRecorder(), release: blocked}
	supervisor.Observe(observer)

	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueRetry, TransactionID: "first"})
	testutil.RequireReceive(t, observer.updates, wait, "first update")
	// The pump is stuck in OnUpdate; overflow the 64-slot feed.
	for index := 0; index < 100; index++ {
		fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueMediaUpload})
	}
	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueRetry, TransactionID: "last"})
	close(blocked)

	update := testutil.RequireReceive(t, observer.updates, wait, "update after lag")
	if update.TransactionID != "last" {
		t.Errorf("update after lag = %+v, want txn last", update)
	}
}

type blockingRecorder struct {
	*recorder
	release chan struct{}
}

func (observer *blockingRecorder) OnUpdate(update Update) {
	observer.updates <- update
	<-observer.release
}

func TestClosedStreamEndsPumpWithoutRestart(t *testing.T) {
	supervisor, fake, registry := newSupervisor(t)
	supervisor.Observe(newRecorder())

	fake.SendUpdates.Close()
	fake.SendErrors.Close()
	testutil.Eventually(t, wait, func() bool { return fake.SendUpdates.Subscribers() == 1 }, "pump subscribed once")

	supervisor.Observe(newRecorder())
	if got := fake.SendUpdates.Subscribers(); got != 1 {
		t.Errorf("Subscribers = %d after second Observe, want 1", got)
	}
	if got := registry.Len(categoryObservers); got != 2 {
		t.Errorf("observer entries = %d, want 2", got)
	}
}

func TestUnobserveStopsDelivery(t *testing.T) {
	supervisor, fake, registry := newSupervisor(t)
	kept, dropped := newRecorder(), newRecorder()
	supervisor.Observe(kept)
	droppedID := supervisor.Observe(dropped)

	if !registry.Cancel(droppedID) {
		t.Fatal("Cancel returned false")
	}
	if registry.Cancel(droppedID) {
		t.Fatal("second Cancel returned true")
	}

	fake.SendUpdates.Send(engine.SendQueueUpdate{Room: testRoom, Kind: engine.SendQueueNewLocalEvent, TransactionID: "t"})
	expect(t, kept, StateEnqueued, 0)
	testutil.RequireNoReceive(t, dropped.updates, 50*time.Millisecond, "update after unobserve")
}

func TestObserveAfterShutdown(t *testing.T) {
	supervisor, _, registry := newSupervisor(t)
	registry.Shutdown()
	if id := supervisor.Observe(newRecorder()); id != 0 {
		t.Errorf("Observe after shutdown = %d, want 0", id)
	}
}

func TestEnqueueText(t *testing.T) {
	supervisor, fake, _ := newSupervisor(t)
	observer := newRecorder()
	supervisor.Observe(observer)

	transactionID := supervisor.EnqueueText(testRoom.String(), "hello", "")
	if _, err := uuid.Parse(transactionID); err != nil {
		t.Fatalf("generated transaction id %q is not a UUID: %v", transactionID, err)
	}
	update := expect(t, observer, StateSending, 0)
	if update.TransactionID != transactionID {
		t.Errorf("sending txn = %q, want %q", update.TransactionID, transactionID)
	}
	update = expect(t, observer, StateSent, 0)
	if update.EventID != "$sent-"+transactionID {
		t.Errorf("sent event id = %q", update.EventID)
	}

	fake.SendTextFunc = func(ctx context.Context, room ref.RoomID, body, transactionID string) (ref.EventID, error) {
		return ref.EventID{}, errors.New("room not found")
	}
	if got := supervisor.EnqueueText(testRoom.String(), "again", "mine"); got != "mine" {
		t.Fatalf("EnqueueText = %q, want mine", got)
	}
	expect(t, observer, StateSending, 0)
	update = expect(t, observer, StateFailed, 0)
	if update.Error != "room not found" {
		t.Errorf("error = %q", update.Error)
	}
	supervisor.Wait()
}

func TestEnqueueTextRejectsBadRoom(t *testing.T) {
	supervisor, _, _ := newSupervisor(t)
	if got := supervisor.EnqueueText("not-a-room", "hi", ""); got != "" {
		t.Errorf("EnqueueText = %q, want empty", got)
	}
}

func TestPassthroughs(t *testing.T) {
	supervisor, fake, _ := newSupervisor(t)
	ctx := context.Background()

	if !supervisor.Retry(ctx, "t9") || supervisor.Retry(ctx, "") {
		t.Error("Retry results wrong")
	}
	if got := fake.Retried(); len(got) != 1 || got[0] != "t9" {
		t.Errorf("Retried = %v", got)
	}

	supervisor.SetEnabled(ctx, false)
	if got := fake.QueueEnabledCalls(); len(got) != 1 || got[0] {
		t.Errorf("QueueEnabledCalls = %v", got)
	}

	if !supervisor.SetRoomEnabled(ctx, testRoom.String(), true) {
		t.Error("SetRoomEnabled returned false")
	}
	if enabled, set := fake.RoomQueueEnabled(testRoom); !set || !enabled {
		t.Errorf("RoomQueueEnabled = %v, %v", enabled, set)
	}
	if supervisor.SetRoomEnabled(ctx, "bad", true) {
		t.Error("SetRoomEnabled accepted a malformed room id")
	}
}
