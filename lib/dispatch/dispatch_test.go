// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestCallReturnsTrueOnSuccess(t *testing.T) {
	called := false
	if !Call(nil, "test", func() { called = true }) {
		t.Fatal("Call returned false for a normal return")
	}
	if !called {
		t.Fatal("deliver was not invoked")
	}
}

func TestCallRecoversPanic(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buffer, nil))

	if Call(logger, "timeline", func() { panic("observer exploded") }) {
		t.Fatal("Call returned true after a panic")
	}
	output := buffer.String()
	if !strings.Contains(output, "observer exploded") {
		t.Errorf("log output missing panic value: %s", output)
	}
	if !strings.Contains(output, "observer=timeline") {
		t.Errorf("log output missing observer name: %s", output)
	}
}

func TestEachContinuesPastPanickingObserver(t *testing.T) {
	var set Set[func(int)]
	var received []int
	set.Add(func(value int) { received = append(received, value) })
	set.Add(func(int) { panic("second observer fails") })
	set.Add(func(value int) { received = append(received, value*10) })

	set.Each(nil, "test", func(observer func(int)) { observer(7) })

	if len(received) != 2 || received[0] != 7 || received[1] != 70 {
		t.Fatalf("received = %v, want [7 70]", received)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	var set Set[string]
	removeFirst := set.Add("first")
	set.Add("second")

	if !removeFirst() {
		t.Fatal("first remove returned false")
	}
	if removeFirst() {
		t.Fatal("second remove returned true")
	}
	snapshot := set.Snapshot()
	if len(snapshot) != 1 || snapshot[0] != "second" {
		t.Fatalf("Snapshot() = %v, want [second]", snapshot)
	}
}

func TestEachUsesSnapshot(t *testing.T) {
	var set Set[string]
	var removeSecond func() bool
	set.Add("first")
	removeSecond = set.Add("second")

	var seen []string
	set.Each(nil, "test", func(observer string) {
		seen = append(seen, observer)
		if observer == "first" {
			removeSecond()
			set.Add("third")
		}
	})

	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Fatalf("seen = %v, want [first second]", seen)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d after mutation, want 2", set.Len())
	}
}
