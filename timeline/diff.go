// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import "github.com/bureau-foundation/sessionbridge/render"

// Op is the kind of a projected timeline diff.
type Op uint8

const (
	OpAppend Op = iota
	OpPushBack
	OpPushFront
	OpPopBack
	OpPopFront
	OpTruncate
	OpClear
	OpReset
	// OpUpsertByItemID replaces the entry with Value.ItemID, or adds
	// it if the observer has no such entry. Positional inserts and
	// sets project to this.
	OpUpsertByItemID
)

var opNames = [...]string{
	OpAppend:         "append",
	OpPushBack:       "push_back",
	OpPushFront:      "push_front",
	OpPopBack:        "pop_back",
	OpPopFront:       "pop_front",
	OpTruncate:       "truncate",
	OpClear:          "clear",
	OpReset:          "reset",
	OpUpsertByItemID: "upsert_by_item_id",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

// Diff is one timeline change delivered to an Observer. Values is set
// for OpAppend and OpReset, Value for the single-item operations, and
// Length for OpTruncate.
type Diff struct {
	Op     Op
	Values []render.MessageEvent
	Value  render.MessageEvent
	Length int
}

// ItemID is the id of the item an OpUpsertByItemID diff targets.
func (diff Diff) ItemID() string { return diff.Value.ItemID }
