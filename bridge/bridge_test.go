// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/sessionbridge/connection"
	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/engine/enginetest"
	"github.com/bureau-foundation/sessionbridge/lib/clock"
	"github.com/bureau-foundation/sessionbridge/lib/config"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/testutil"
	"github.com/bureau-foundation/sessionbridge/roomlist"
	"github.com/bureau-foundation/sessionbridge/sendqueue"
	"github.com/bureau-foundation/sessionbridge/timeline"
)

const (
	wait     = 5 * time.Second
	roomID   = "!room:example.org"
	badRoom  = "not-a-room"
	meUserID = "@me:example.org"
)

var testRoom = ref.MustParseRoomID(roomID)

type timelineRecorder struct {
	diffs  chan timeline.Diff
	errors chan string
}

func newTimelineRecorder() *timelineRecorder {
	return &timelineRecorder{diffs: make(chan timeline.Diff, 32), errors: make(chan string, 8)}
}

func (observer *timelineRecorder) OnDiff(diff timeline.Diff) { observer.diffs <- diff }
func (observer *timelineRecorder) OnError(message string)     { observer.errors <- message }

// panickingTimeline fails on every diff.
type panickingTimeline struct{}

func (panickingTimeline) OnDiff(timeline.Diff) { panic("observer bug") }
func (panickingTimeline) OnError(string)       { panic("observer bug") }

type sendRecorder struct{ updates chan sendqueue.Update }

func (observer *sendRecorder) OnUpdate(update sendqueue.Update) { observer.updates <- update }

type roomRecorder struct{ resets chan []roomlist.Entry }

func (observer *roomRecorder) OnReset(entries []roomlist.Entry) { observer.resets <- entries }

type connectionRecorder struct{ states chan connection.State }

func (observer *connectionRecorder) OnConnectionChange(state connection.State) {
	observer.states <- state
}

type syncRecorder struct{ statuses chan connection.SyncStatus }

func (observer *syncRecorder) OnSyncState(status connection.SyncStatus) {
	observer.statuses <- status
}

type typingRecorder struct{ names chan []string }

func (observer *typingRecorder) OnTyping(names []string) { observer.names <- names }

type receiptRecorder struct{ changes chan struct{} }

func (observer *receiptRecorder) OnChanged() { observer.changes <- struct{}{} }

func textItem(id, body string) engine.TimelineItem {
	return engine.TimelineItem{
		ID: id,
		Event: &engine.EventItem{
			EventID: ref.MustParseEventID("$" + id),
			Sender:  ref.MustParseUserID("@alice:example.org"),
			Content: engine.Content{
				Kind:    engine.ContentMessage,
				Message: &engine.MessageContent{MsgType: "m.text", Body: body},
			},
		},
	}
}

func newTestBridge(t *testing.T) (*Bridge, *enginetest.Engine, *clock.FakeClock) {
	t.Helper()
	fake := enginetest.New(meUserID)
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))
	bridge, err := New(Config{Engine: fake, Clock: fakeClock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(bridge.Shutdown)
	return bridge, fake, fakeClock
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Homeserver = "https://matrix.example.org"
	cfg.Paths.State = filepath.Join(t.TempDir(), "state")
	return cfg
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without an engine succeeded")
	}
}

func TestMalformedRoomIDsSpawnNothing(t *testing.T) {
	bridge, _, _ := newTestBridge(t)

	if id := bridge.ObserveTimeline(badRoom, newTimelineRecorder()); id != 0 {
		t.Errorf("ObserveTimeline(%q) = %d, want 0", badRoom, id)
	}
	if id := bridge.ObserveTyping(badRoom, &typingRecorder{}); id != 0 {
		t.Errorf("ObserveTyping(%q) = %d, want 0", badRoom, id)
	}
	if id := bridge.ObserveReceipts(badRoom, &receiptRecorder{}); id != 0 {
		t.Errorf("ObserveReceipts(%q) = %d, want 0", badRoom, id)
	}
	if bridge.PaginateBackwards(context.Background(), badRoom, 20) {
		t.Error("PaginateBackwards accepted a malformed room id")
	}
	if bridge.PaginateForwards(context.Background(), badRoom, 20) {
		t.Error("PaginateForwards accepted a malformed room id")
	}
	if txn := bridge.EnqueueText(badRoom, "hello", ""); txn != "" {
		t.Errorf("EnqueueText(%q) = %q, want empty", badRoom, txn)
	}
	if bridge.SetRoomSendQueueEnabled(context.Background(), badRoom, false) {
		t.Error("SetRoomSendQueueEnabled accepted a malformed room id")
	}
}

func TestIDsIncreaseAndUnobserveIsIdempotent(t *testing.T) {
	bridge, fake, _ := newTestBridge(t)
	fake.AddTimeline(testRoom, enginetest.NewTimeline())

	ids := []uint64{
		bridge.ObserveTimeline(roomID, newTimelineRecorder()),
		bridge.ObserveSends(&sendRecorder{updates: make(chan sendqueue.Update, 8)}),
		bridge.MonitorConnection(&connectionRecorder{states: make(chan connection.State, 8)}),
		bridge.ObserveRoomList(&roomRecorder{resets: make(chan []roomlist.Entry, 8)}),
		bridge.ObserveTyping(roomID, &typingRecorder{names: make(chan []string, 8)}),
	}
	for index, id := range ids {
		if id == 0 {
			t.Fatalf("observation %d returned 0", index)
		}
		if index > 0 && id <= ids[index-1] {
			t.Fatalf("ids not strictly increasing: %v", ids)
		}
	}

	for _, id := range ids {
		if !bridge.Unobserve(id) {
			t.Errorf("first Unobserve(%d) = false", id)
		}
		if bridge.Unobserve(id) {
			t.Errorf("second Unobserve(%d) = true", id)
		}
	}
	if bridge.Unobserve(0) {
		t.Error("Unobserve(0) = true")
	}
}

func TestTimelineSurvivesPanickingObserver(t *testing.T) {
	bridge, fake, _ := newTestBridge(t)
	source := enginetest.NewTimeline(textItem("a", "first"))
	fake.AddTimeline(testRoom, source)

	if bridge.ObserveTimeline(roomID, panickingTimeline{}) == 0 {
		t.Fatal("ObserveTimeline returned 0")
	}
	observer := newTimelineRecorder()
	if bridge.ObserveTimeline(roomID, observer) == 0 {
		t.Fatal("ObserveTimeline returned 0")
	}

	reset := testutil.RequireReceive(t, observer.diffs, wait, "initial reset")
	if reset.Op != timeline.OpReset || len(reset.Values) != 1 || reset.Values[0].Body != "first" {
		t.Fatalf("initial diff = %+v", reset)
	}

	source.Diffs.WaitForSubscribers(t, 2)
	source.Diffs.Send([]engine.VectorDiff[engine.TimelineItem]{engine.PushBack(textItem("b", "second"))})
	pushed := testutil.RequireReceive(t, observer.diffs, wait, "pushed item")
	if pushed.Op != timeline.OpPushBack || pushed.Value.Body != "second" {
		t.Fatalf("pushed diff = %+v", pushed)
	}
}

func TestPaginationPassesThrough(t *testing.T) {
	bridge, fake, _ := newTestBridge(t)
	source := enginetest.NewTimeline()
	fake.AddTimeline(testRoom, source)

	if !bridge.PaginateBackwards(context.Background(), roomID, 30) {
		t.Fatal("PaginateBackwards failed")
	}
	if !bridge.PaginateForwards(context.Background(), roomID, 10) {
		t.Fatal("PaginateForwards failed")
	}
	backwards, forwards := source.Paginations()
	if !slices.Equal(backwards, []uint16{30}) || !slices.Equal(forwards, []uint16{10}) {
		t.Fatalf("paginations = %v / %v", backwards, forwards)
	}
	if bridge.PaginateBackwards(context.Background(), "!unknown:example.org", 5) {
		t.Fatal("PaginateBackwards succeeded for a room the engine does not know")
	}
}

func TestEnqueueTextReportsLifecycle(t *testing.T) {
	bridge, _, _ := newTestBridge(t)
	observer := &sendRecorder{updates: make(chan sendqueue.Update, 8)}
	if bridge.ObserveSends(observer) == 0 {
		t.Fatal("ObserveSends returned 0")
	}

	txn := bridge.EnqueueText(roomID, "hello", "txn-1")
	if txn != "txn-1" {
		t.Fatalf("EnqueueText = %q, want txn-1", txn)
	}
	sending := testutil.RequireReceive(t, observer.updates, wait, "sending")
	if sending.State != sendqueue.StateSending || sending.Attempts != 0 {
		t.Fatalf("first update = %+v", sending)
	}
	sent := testutil.RequireReceive(t, observer.updates, wait, "sent")
	if sent.State != sendqueue.StateSent || sent.EventID != "$sent-txn-1" {
		t.Fatalf("second update = %+v", sent)
	}

	if generated := bridge.EnqueueText(roomID, "again", ""); generated == "" {
		t.Fatal("EnqueueText without a transaction id returned empty")
	}
}

func TestSendQueuePassthroughs(t *testing.T) {
	bridge, fake, _ := newTestBridge(t)
	ctx := context.Background()

	if !bridge.RetryByTxn(ctx, "txn-9") {
		t.Fatal("RetryByTxn failed")
	}
	if bridge.RetryByTxn(ctx, "") {
		t.Fatal("RetryByTxn accepted an empty transaction id")
	}
	if got := fake.Retried(); !slices.Equal(got, []string{"txn-9"}) {
		t.Fatalf("retried = %v", got)
	}

	bridge.SetSendQueueEnabled(ctx, false)
	if got := fake.QueueEnabledCalls(); !slices.Equal(got, []bool{false}) {
		t.Fatalf("queue enabled calls = %v", got)
	}
	if !bridge.SetRoomSendQueueEnabled(ctx, roomID, false) {
		t.Fatal("SetRoomSendQueueEnabled failed")
	}
	if enabled, set := fake.RoomQueueEnabled(testRoom); !set || enabled {
		t.Fatalf("room queue enabled = %v (set %v)", enabled, set)
	}
}

func TestConnectionAndSync(t *testing.T) {
	bridge, fake, _ := newTestBridge(t)

	states := &connectionRecorder{states: make(chan connection.State, 8)}
	if bridge.MonitorConnection(states) == 0 {
		t.Fatal("MonitorConnection returned 0")
	}
	fake.SessionChanges.WaitForSubscribers(t, 1)
	fake.SessionChanges.Send(engine.SessionUnknownToken)
	state := testutil.RequireReceive(t, states.states, wait, "reconnecting")
	if state.Kind != connection.Reconnecting || state.Attempt != 1 || state.NextRetrySecs != 5 {
		t.Fatalf("state = %+v", state)
	}

	statuses := &syncRecorder{statuses: make(chan connection.SyncStatus, 8)}
	if bridge.StartSupervisedSync(statuses) == 0 {
		t.Fatal("StartSupervisedSync returned 0")
	}
	idle := testutil.RequireReceive(t, statuses.statuses, wait, "initial idle")
	if idle.Phase != connection.SyncIdle {
		t.Fatalf("first sync status = %+v", idle)
	}
	fake.SyncStates.WaitForSubscribers(t, 1)
	fake.SyncStates.Send(engine.SyncUpdate{State: engine.SyncRunning})
	running := testutil.RequireReceive(t, statuses.statuses, wait, "running")
	if running.Phase != connection.SyncRunning {
		t.Fatalf("sync status = %+v", running)
	}

	if !bridge.EnterForeground(context.Background()) || !bridge.EnterBackground(context.Background()) {
		t.Fatal("foreground toggles failed")
	}
	if fake.SyncStops.Load() != 1 {
		t.Fatalf("sync stops = %d, want 1", fake.SyncStops.Load())
	}
}

func TestReceiptsAndTyping(t *testing.T) {
	bridge, fake, _ := newTestBridge(t)
	fake.AddMember(testRoom, engine.Member{User: ref.MustParseUserID("@bob:example.org"), DisplayName: "Bob"})

	typing := &typingRecorder{names: make(chan []string, 8)}
	if bridge.ObserveTyping(roomID, typing) == 0 {
		t.Fatal("ObserveTyping returned 0")
	}
	feed := fake.TypingFeed(testRoom)
	feed.WaitForSubscribers(t, 1)
	feed.Send([]ref.UserID{ref.MustParseUserID("@bob:example.org"), ref.MustParseUserID("@carol:example.org")})
	names := testutil.RequireReceive(t, typing.names, wait, "typing names")
	if !slices.Equal(names, []string{"Bob", "carol"}) {
		t.Fatalf("typing names = %v", names)
	}

	receipts := &receiptRecorder{changes: make(chan struct{}, 8)}
	if bridge.ObserveReceipts(roomID, receipts) == 0 {
		t.Fatal("ObserveReceipts returned 0")
	}
	receiptFeed := fake.ReceiptFeed(testRoom)
	receiptFeed.WaitForSubscribers(t, 1)
	receiptFeed.Send(struct{}{})
	testutil.RequireReceive(t, receipts.changes, wait, "receipt change")
}

func TestShutdownRejectsNewObservations(t *testing.T) {
	bridge, fake, _ := newTestBridge(t)
	fake.AddTimeline(testRoom, enginetest.NewTimeline())

	observer := newTimelineRecorder()
	id := bridge.ObserveTimeline(roomID, observer)
	if id == 0 {
		t.Fatal("ObserveTimeline returned 0")
	}
	bridge.Shutdown()
	bridge.Shutdown()

	if bridge.Unobserve(id) {
		t.Error("Unobserve after Shutdown = true")
	}
	if got := bridge.ObserveTimeline(roomID, observer); got != 0 {
		t.Errorf("ObserveTimeline after Shutdown = %d", got)
	}
	if got := bridge.MonitorConnection(&connectionRecorder{}); got != 0 {
		t.Errorf("MonitorConnection after Shutdown = %d", got)
	}
	if got := bridge.ObserveSends(&sendRecorder{}); got != 0 {
		t.Errorf("ObserveSends after Shutdown = %d", got)
	}
}

func TestOpenPersistsRoomList(t *testing.T) {
	cfg := testConfig(t)
	fake := enginetest.New(meUserID)

	bridge, err := Open(cfg, fake, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if cached := bridge.LoadRoomListCache(); cached != nil {
		t.Fatalf("fresh cache = %v, want nil", cached)
	}

	observer := &roomRecorder{resets: make(chan []roomlist.Entry, 8)}
	id := bridge.ObserveRoomList(observer)
	if id == 0 {
		t.Fatal("ObserveRoomList returned 0")
	}
	fake.RoomDiffs.WaitForSubscribers(t, 1)
	fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{engine.Reset[engine.Room](
		enginetest.NewRoom("!a:example.org", engine.RoomInfo{DisplayName: "Alpha", Notifications: 2}),
		enginetest.NewRoom("!b:example.org", engine.RoomInfo{}),
	)})
	snapshot := testutil.RequireReceive(t, observer.resets, wait, "snapshot")
	if len(snapshot) != 2 || snapshot[1].Name != "!b:example.org" {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	if !bridge.SetRoomListUnreadOnly(id, true) {
		t.Fatal("SetRoomListUnreadOnly rejected")
	}
	testutil.Eventually(t, wait, func() bool { return len(fake.Filters()) == 2 }, "unread filter installed")
	if bridge.SendCommand(id+1000, roomlist.SetUnreadOnly(false)) {
		t.Fatal("SendCommand to an unknown id succeeded")
	}
	bridge.Shutdown()

	reopened, err := Open(cfg, enginetest.New(meUserID), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Shutdown()
	cached := reopened.LoadRoomListCache()
	if len(cached) != 2 || cached[0].RoomID != "!a:example.org" || cached[0].Notifications != 2 {
		t.Fatalf("cached snapshot = %+v", cached)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Homeserver = ""
	if _, err := Open(cfg, enginetest.New(meUserID), nil); err == nil {
		t.Fatal("Open accepted a config without a homeserver")
	}
	if _, err := Open(testConfig(t), nil, nil); err == nil {
		t.Fatal("Open accepted a nil engine")
	}
}
