// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"slices"
)

// DiffOp is the operation of a VectorDiff.
type DiffOp uint8

const (
	DiffAppend DiffOp = iota
	DiffClear
	DiffPushFront
	DiffPushBack
	DiffPopFront
	DiffPopBack
	DiffInsert
	DiffSet
	DiffRemove
	DiffTruncate
	DiffReset
)

var diffOpNames = [...]string{
	DiffAppend:    "append",
	DiffClear:     "clear",
	DiffPushFront: "push_front",
	DiffPushBack:  "push_back",
	DiffPopFront:  "pop_front",
	DiffPopBack:   "pop_back",
	DiffInsert:    "insert",
	DiffSet:       "set",
	DiffRemove:    "remove",
	DiffTruncate:  "truncate",
	DiffReset:     "reset",
}

func (op DiffOp) String() string {
	if int(op) < len(diffOpNames) {
		return diffOpNames[op]
	}
	return fmt.Sprintf("DiffOp(%d)", uint8(op))
}

// VectorDiff is one structural change to an ordered list. Which
// fields are meaningful depends on Op:
//
//	Append, Reset          Values
//	PushFront, PushBack    Value
//	Insert, Set            Index, Value
//	Remove                 Index
//	Truncate               Length
//	Clear, PopFront, PopBack  (none)
type VectorDiff[V any] struct {
	Op     DiffOp
	Index  int
	Length int
	Value  V
	Values []V
}

func Append[V any](values ...V) VectorDiff[V] { return VectorDiff[V]{Op: DiffAppend, Values: values} }
func Clear[V any]() VectorDiff[V]             { return VectorDiff[V]{Op: DiffClear} }
func PushFront[V any](value V) VectorDiff[V]  { return VectorDiff[V]{Op: DiffPushFront, Value: value} }
func PushBack[V any](value V) VectorDiff[V]   { return VectorDiff[V]{Op: DiffPushBack, Value: value} }
func PopFront[V any]() VectorDiff[V]          { return VectorDiff[V]{Op: DiffPopFront} }
func PopBack[V any]() VectorDiff[V]           { return VectorDiff[V]{Op: DiffPopBack} }
func Remove[V any](index int) VectorDiff[V]   { return VectorDiff[V]{Op: DiffRemove, Index: index} }
func Truncate[V any](length int) VectorDiff[V] {
	return VectorDiff[V]{Op: DiffTruncate, Length: length}
}
func Reset[V any](values ...V) VectorDiff[V] { return VectorDiff[V]{Op: DiffReset, Values: values} }
func Insert[V any](index int, value V) VectorDiff[V] {
	return VectorDiff[V]{Op: DiffInsert, Index: index, Value: value}
}
func Set[V any](index int, value V) VectorDiff[V] {
	return VectorDiff[V]{Op: DiffSet, Index: index, Value: value}
}

// Apply returns list with diff applied and whether the list changed.
// Diffs that do not fit the list (an index out of range, a pop from
// an empty list, a truncate longer than the list) leave it untouched
// and report false. Reset and Clear always report true. list may be
// modified in place.
func (diff VectorDiff[V]) Apply(list []V) ([]V, bool) {
	switch diff.Op {
	case DiffReset:
		return slices.Clone(diff.Values), true
	case DiffClear:
		return list[:0], true
	case DiffAppend:
		return append(list, diff.Values...), len(diff.Values) > 0
	case DiffPushFront:
		return slices.Insert(list, 0, diff.Value), true
	case DiffPushBack:
		return append(list, diff.Value), true
	case DiffPopFront:
		if len(list) == 0 {
			return list, false
		}
		return slices.Delete(list, 0, 1), true
	case DiffPopBack:
		if len(list) == 0 {
			return list, false
		}
		return list[:len(list)-1], true
	case DiffInsert:
		if diff.Index < 0 || diff.Index > len(list) {
			return list, false
		}
		return slices.Insert(list, diff.Index, diff.Value), true
	case DiffSet:
		if diff.Index < 0 || diff.Index >= len(list) {
			return list, false
		}
		list[diff.Index] = diff.Value
		return list, true
	case DiffRemove:
		if diff.Index < 0 || diff.Index >= len(list) {
			return list, false
		}
		return slices.Delete(list, diff.Index, diff.Index+1), true
	case DiffTruncate:
		if diff.Length < 0 || diff.Length >= len(list) {
			return list, false
		}
		return list[:diff.Length], true
	default:
		return list, false
	}
}

// ApplyBatch applies diffs in order and reports whether any changed
// the list.
func ApplyBatch[V any](list []V, diffs []VectorDiff[V]) ([]V, bool) {
	changed := false
	for _, diff := range diffs {
		var applied bool
		list, applied = diff.Apply(list)
		changed = changed || applied
	}
	return list, changed
}
