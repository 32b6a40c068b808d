// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomlist

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/engine/enginetest"
	"github.com/bureau-foundation/sessionbridge/lib/cachefile"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
	"github.com/bureau-foundation/sessionbridge/lib/testutil"
)

const wait = 5 * time.Second

type recorder struct{ resets chan []Entry }

func newRecorder() *recorder { return &recorder{resets: make(chan []Entry, 256)} }

func (observer *recorder) OnReset(entries []Entry) { observer.resets <- entries }

type harness struct {
	projector *Projector
	fake      *enginetest.Engine
	registry  *subscription.Registry
	cachePath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := enginetest.New("@me:example.org")
	registry := subscription.New(nil)
	t.Cleanup(registry.Shutdown)
	cachePath := filepath.Join(t.TempDir(), CacheFileName)
	projector := New(Config{
		Source:   fake,
		Registry: registry,
		Cache:    cachefile.New(cachefile.Config{Path: cachePath, Compression: cachefile.CompressionZstd}),
		Me:       fake.UserID(),
	})
	return &harness{projector: projector, fake: fake, registry: registry, cachePath: cachePath}
}

// observe starts a subscription and waits until its default filter
// is installed.
func (harness *harness) observe(t *testing.T, observer Observer) uint64 {
	t.Helper()
	id := harness.projector.Observe(observer)
	if id == 0 {
		t.Fatal("Observe returned 0")
	}
	harness.fake.RoomDiffs.WaitForSubscribers(t, 1)
	testutil.Eventually(t, wait, func() bool { return len(harness.fake.Filters()) == 1 }, "default filter installed")
	return id
}

func roomIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for index, entry := range entries {
		ids[index] = entry.RoomID
	}
	return ids
}

func TestDefaultFilterAndPageSize(t *testing.T) {
	harness := newHarness(t)
	harness.observe(t, newRecorder())
	if sizes := harness.fake.PageSizes(); !slices.Equal(sizes, []int{DefaultPageSize}) {
		t.Errorf("page sizes = %v, want [%d]", sizes, DefaultPageSize)
	}
	filter := harness.fake.Filters()[0]
	if !filter(engine.RoomInfo{Membership: engine.MembershipStateJoined}) {
		t.Error("default filter rejects a joined room")
	}
	if filter(engine.RoomInfo{Membership: engine.MembershipStateLeft}) {
		t.Error("default filter keeps a left room")
	}
}

func TestSetUnreadOnlySwapsFilterInPlace(t *testing.T) {
	harness := newHarness(t)
	observer := newRecorder()
	id := harness.observe(t, observer)

	quiet := enginetest.NewRoom("!quiet:example.org", engine.RoomInfo{DisplayName: "Quiet"})
	busy := enginetest.NewRoom("!busy:example.org", engine.RoomInfo{DisplayName: "Busy", Notifications: 3})
	marked := enginetest.NewRoom("!marked:example.org", engine.RoomInfo{DisplayName: "Marked", MarkedUnread: true})
	all := []engine.Room{quiet, busy, marked}

	harness.fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{engine.Reset(all...)})
	first := testutil.RequireReceive(t, observer.resets, wait, "initial snapshot")
	if len(first) != 3 {
		t.Fatalf("initial snapshot has %d rooms, want 3", len(first))
	}

	if !harness.registry.Send(id, SetUnreadOnly(true)) {
		t.Fatal("Send(SetUnreadOnly) rejected")
	}
	testutil.Eventually(t, wait, func() bool { return len(harness.fake.Filters()) == 2 }, "unread filter installed")

	// The engine re-evaluates the list with the new filter.
	filter := harness.fake.Filters()[1]
	var visible []engine.Room
	for _, room := range all {
		if filter(room.Info()) {
			visible = append(visible, room)
		}
	}
	harness.fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{engine.Reset(visible...)})

	second := testutil.RequireReceive(t, observer.resets, wait, "filtered snapshot")
	if got, want := roomIDs(second), []string{"!busy:example.org", "!marked:example.org"}; !slices.Equal(got, want) {
		t.Fatalf("filtered snapshot = %v, want %v", got, want)
	}
	for _, entry := range second {
		if !entry.Unread() {
			t.Errorf("filtered snapshot contains read room %s", entry.RoomID)
		}
	}
	if count := harness.registry.Len(category); count != 1 {
		t.Errorf("room list subscriptions = %d, want 1", count)
	}
	if sizes := harness.fake.PageSizes(); len(sizes) != 1 {
		t.Errorf("SubscribeRoomList called %d times, want 1", len(sizes))
	}

	harness.registry.Send(id, SetUnreadOnly(false))
	testutil.Eventually(t, wait, func() bool { return len(harness.fake.Filters()) == 3 }, "non-left filter restored")
	if !harness.fake.Filters()[2](quiet.Info()) {
		t.Error("restored filter rejects a read room")
	}
}

func TestUnchangedBatchEmitsNothing(t *testing.T) {
	harness := newHarness(t)
	observer := newRecorder()
	harness.observe(t, observer)

	room := enginetest.NewRoom("!a:example.org", engine.RoomInfo{})
	harness.fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{engine.PushBack[engine.Room](room)})
	testutil.RequireReceive(t, observer.resets, wait, "first snapshot")

	harness.fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{
		engine.Remove[engine.Room](7),
		engine.Set[engine.Room](3, room),
		engine.Truncate[engine.Room](5),
	})
	other := enginetest.NewRoom("!b:example.org", engine.RoomInfo{})
	harness.fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{engine.PushFront[engine.Room](other)})

	next := testutil.RequireReceive(t, observer.resets, wait, "snapshot after out-of-range batch")
	if got, want := roomIDs(next), []string{"!b:example.org", "!a:example.org"}; !slices.Equal(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	testutil.RequireNoReceive(t, observer.resets, 50*time.Millisecond, "extra snapshot")
}

// referenceApply is a plain list model of the diff algebra.
func referenceApply(list []string, op engine.DiffOp, index int, value string, values []string) ([]string, bool) {
	out := slices.Clone(list)
	switch op {
	case engine.DiffReset:
		return slices.Clone(values), true
	case engine.DiffClear:
		return nil, true
	case engine.DiffAppend:
		return append(out, values...), len(values) > 0
	case engine.DiffPushFront:
		return append([]string{value}, out...), true
	case engine.DiffPushBack:
		return append(out, value), true
	case engine.DiffPopFront:
		if len(out) == 0 {
			return out, false
		}
		return out[1:], true
	case engine.DiffPopBack:
		if len(out) == 0 {
			return out, false
		}
		return out[:len(out)-1], true
	case engine.DiffInsert:
		if index < 0 || index > len(out) {
			return out, false
		}
		return append(out[:index], append([]string{value}, out[index:]...)...), true
	case engine.DiffSet:
		if index < 0 || index >= len(out) {
			return out, false
		}
		out[index] = value
		return out, true
	case engine.DiffRemove:
		if index < 0 || index >= len(out) {
			return out, false
		}
		return append(out[:index], out[index+1:]...), true
	case engine.DiffTruncate:
		if index < 0 || index >= len(out) {
			return out, false
		}
		return out[:index], true
	}
	return out, false
}

func TestMirrorMatchesReferenceList(t *testing.T) {
	harness := newHarness(t)
	observer := newRecorder()
	harness.observe(t, observer)

	random := rand.New(rand.NewPCG(7, 11))
	next := 0
	newRoom := func() (*enginetest.Room, string) {
		next++
		id := fmt.Sprintf("!r%d:example.org", next)
		return enginetest.NewRoom(id, engine.RoomInfo{}), id
	}

	var reference []string
	ops := []engine.DiffOp{
		engine.DiffAppend, engine.DiffClear, engine.DiffPushFront, engine.DiffPushBack,
		engine.DiffPopFront, engine.DiffPopBack, engine.DiffInsert, engine.DiffSet,
		engine.DiffRemove, engine.DiffTruncate, engine.DiffReset,
	}
	for batchIndex := range 200 {
		var batch []engine.VectorDiff[engine.Room]
		for range 1 + random.IntN(4) {
			op := ops[random.IntN(len(ops))]
			// Indices deliberately range past the end of the list.
			index := random.IntN(len(reference)+3) - 1
			room, id := newRoom()
			var diff engine.VectorDiff[engine.Room]
			var values []string
			switch op {
			case engine.DiffAppend, engine.DiffReset:
				var rooms []engine.Room
				for range random.IntN(3) {
					extra, extraID := newRoom()
					rooms = append(rooms, extra)
					values = append(values, extraID)
				}
				if op == engine.DiffAppend {
					diff = engine.Append(rooms...)
				} else {
					diff = engine.Reset(rooms...)
				}
			case engine.DiffClear:
				diff = engine.Clear[engine.Room]()
			case engine.DiffPushFront:
				diff = engine.PushFront[engine.Room](room)
			case engine.DiffPushBack:
				diff = engine.PushBack[engine.Room](room)
			case engine.DiffPopFront:
				diff = engine.PopFront[engine.Room]()
			case engine.DiffPopBack:
				diff = engine.PopBack[engine.Room]()
			case engine.DiffInsert:
				diff = engine.Insert[engine.Room](index, room)
			case engine.DiffSet:
				diff = engine.Set[engine.Room](index, room)
			case engine.DiffRemove:
				diff = engine.Remove[engine.Room](index)
			case engine.DiffTruncate:
				diff = engine.Truncate[engine.Room](index)
			}
			batch = append(batch, diff)
			reference, _ = referenceApply(reference, op, index, id, values)
		}
		// Every batch ends with a change so each one yields a snapshot.
		tail, tailID := newRoom()
		batch = append(batch, engine.PushBack[engine.Room](tail))
		reference = append(reference, tailID)

		harness.fake.RoomDiffs.Send(batch)
		snapshot := testutil.RequireReceive(t, observer.resets, wait, "snapshot for batch %d", batchIndex)
		if got := roomIDs(snapshot); !slices.Equal(got, reference) {
			t.Fatalf("batch %d: snapshot %v, want %v", batchIndex, got, reference)
		}
	}
}

func TestEntryFlattening(t *testing.T) {
	harness := newHarness(t)
	observer := newRecorder()
	harness.observe(t, observer)

	peer := ref.MustParseUserID("@bob:example.org")
	dm := enginetest.NewRoom("!dm:example.org", engine.RoomInfo{
		IsDirect:      true,
		DirectTargets: []ref.UserID{harness.fake.UserID(), peer},
		JoinedMembers: 2,
		Encrypted:     true,
		RecencyStamp:  42,
		Mentions:      1,
		Favourite:     true,
	})
	dm.SetMemberAvatar(peer, "mxc://example.org/bob")
	dm.SetMemberAvatar(harness.fake.UserID(), "mxc://example.org/me")
	dm.SetLatest(&engine.EventItem{
		EventID:         ref.MustParseEventID("$latest"),
		Sender:          peer,
		TimestampMillis: 1000,
		Content:         engine.Content{Kind: engine.ContentMessage, Message: &engine.MessageContent{MsgType: "m.text", Body: "hi"}},
	})
	named := enginetest.NewRoom("!named:example.org", engine.RoomInfo{
		DisplayName: "Lounge",
		AvatarURL:   "mxc://example.org/lounge",
		Topic:       "chat",
		LowPriority: true,
	})

	harness.fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{engine.Append[engine.Room](dm, named)})
	entries := testutil.RequireReceive(t, observer.resets, wait, "snapshot")
	if len(entries) != 2 {
		t.Fatalf("snapshot has %d entries", len(entries))
	}

	direct := entries[0]
	if direct.Name != "!dm:example.org" {
		t.Errorf("unnamed room name = %q, want the room id", direct.Name)
	}
	if direct.AvatarURL == nil || *direct.AvatarURL != "mxc://example.org/bob" {
		t.Errorf("dm avatar = %v, want the peer's", direct.AvatarURL)
	}
	if !direct.Direct || !direct.Encrypted || direct.MemberCount != 2 || direct.LastTimestamp != 42 || direct.Mentions != 1 || !direct.Favourite {
		t.Errorf("dm entry = %+v", direct)
	}
	if direct.Topic != nil {
		t.Errorf("empty topic rendered as %q", *direct.Topic)
	}
	if direct.LatestEvent == nil || direct.LatestEvent.Body == nil || *direct.LatestEvent.Body != "hi" || direct.LatestEvent.EventID != "$latest" {
		t.Errorf("latest event = %+v", direct.LatestEvent)
	}

	lounge := entries[1]
	if lounge.Name != "Lounge" || lounge.AvatarURL == nil || *lounge.AvatarURL != "mxc://example.org/lounge" {
		t.Errorf("named entry = %+v", lounge)
	}
	if lounge.Topic == nil || *lounge.Topic != "chat" || !lounge.LowPriority {
		t.Errorf("named entry topic/flags = %+v", lounge)
	}
	if lounge.LatestEvent != nil {
		t.Errorf("room without events has latest event %+v", lounge.LatestEvent)
	}
}

func TestSnapshotPersistedAndReloaded(t *testing.T) {
	harness := newHarness(t)
	if entries := harness.projector.LoadCache(); entries != nil {
		t.Fatalf("LoadCache before any write = %v, want nil", entries)
	}

	observer := newRecorder()
	harness.observe(t, observer)
	room := enginetest.NewRoom("!a:example.org", engine.RoomInfo{DisplayName: "A", Notifications: 2})
	harness.fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{engine.Reset[engine.Room](room)})
	delivered := testutil.RequireReceive(t, observer.resets, wait, "snapshot")

	// A fresh projector, as after a restart, reads what the first wrote.
	restarted := New(Config{
		Source:   harness.fake,
		Registry: harness.registry,
		Cache:    cachefile.New(cachefile.Config{Path: harness.cachePath}),
	})
	loaded := restarted.LoadCache()
	if len(loaded) != 1 || loaded[0].RoomID != delivered[0].RoomID || loaded[0].Name != "A" || loaded[0].Notifications != 2 {
		t.Fatalf("loaded = %+v, want %+v", loaded, delivered)
	}
}

func TestCorruptCacheLoadsEmpty(t *testing.T) {
	harness := newHarness(t)
	if err := os.WriteFile(harness.cachePath, []byte("not a cache file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if entries := harness.projector.LoadCache(); entries != nil {
		t.Fatalf("LoadCache on corrupt file = %v, want nil", entries)
	}
}

func TestCancelEndsSubscription(t *testing.T) {
	harness := newHarness(t)
	observer := newRecorder()
	id := harness.observe(t, observer)
	if !harness.registry.Cancel(id) {
		t.Fatal("Cancel returned false")
	}
	if harness.registry.Send(id, SetUnreadOnly(true)) {
		t.Error("Send to cancelled subscription accepted")
	}
	harness.fake.RoomDiffs.Send([]engine.VectorDiff[engine.Room]{engine.PushBack[engine.Room](enginetest.NewRoom("!a:example.org", engine.RoomInfo{}))})
	testutil.RequireNoReceive(t, observer.resets, 50*time.Millisecond, "snapshot after cancel")
}
