// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"math/rand/v2"
	"slices"
	"testing"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		list        []string
		diff        VectorDiff[string]
		want        []string
		wantChanged bool
	}{
		{"append", []string{"a"}, Append("b", "c"), []string{"a", "b", "c"}, true},
		{"append nothing", []string{"a"}, Append[string](), []string{"a"}, false},
		{"clear", []string{"a", "b"}, Clear[string](), []string{}, true},
		{"clear empty", nil, Clear[string](), nil, true},
		{"push front", []string{"b"}, PushFront("a"), []string{"a", "b"}, true},
		{"push back", []string{"a"}, PushBack("b"), []string{"a", "b"}, true},
		{"pop front", []string{"a", "b"}, PopFront[string](), []string{"b"}, true},
		{"pop front empty", nil, PopFront[string](), nil, false},
		{"pop back", []string{"a", "b"}, PopBack[string](), []string{"a"}, true},
		{"pop back empty", nil, PopBack[string](), nil, false},
		{"insert middle", []string{"a", "c"}, Insert(1, "b"), []string{"a", "b", "c"}, true},
		{"insert at end", []string{"a"}, Insert(1, "b"), []string{"a", "b"}, true},
		{"insert out of range", []string{"a"}, Insert(3, "b"), []string{"a"}, false},
		{"set", []string{"a", "b"}, Set(1, "x"), []string{"a", "x"}, true},
		{"set out of range", []string{"a"}, Set(1, "x"), []string{"a"}, false},
		{"remove", []string{"a", "b", "c"}, Remove[string](1), []string{"a", "c"}, true},
		{"remove out of range", []string{"a"}, Remove[string](-1), []string{"a"}, false},
		{"truncate", []string{"a", "b", "c"}, Truncate[string](1), []string{"a"}, true},
		{"truncate to length", []string{"a", "b"}, Truncate[string](2), []string{"a", "b"}, false},
		{"reset", []string{"a"}, Reset("x", "y"), []string{"x", "y"}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, changed := test.diff.Apply(slices.Clone(test.list))
			if !slices.Equal(got, test.want) {
				t.Errorf("Apply = %v, want %v", got, test.want)
			}
			if changed != test.wantChanged {
				t.Errorf("changed = %v, want %v", changed, test.wantChanged)
			}
		})
	}
}

// referenceApply is an independent, allocation-heavy model of the
// diff semantics used to cross-check Apply.
func referenceApply(list []int, diff VectorDiff[int]) []int {
	result := append([]int(nil), list...)
	switch diff.Op {
	case DiffReset:
		return append([]int(nil), diff.Values...)
	case DiffClear:
		return nil
	case DiffAppend:
		return append(result, diff.Values...)
	case DiffPushFront:
		return append([]int{diff.Value}, result...)
	case DiffPushBack:
		return append(result, diff.Value)
	case DiffPopFront:
		if len(result) > 0 {
			return result[1:]
		}
	case DiffPopBack:
		if len(result) > 0 {
			return result[:len(result)-1]
		}
	case DiffInsert:
		if diff.Index >= 0 && diff.Index <= len(result) {
			head := append([]int(nil), result[:diff.Index]...)
			head = append(head, diff.Value)
			return append(head, result[diff.Index:]...)
		}
	case DiffSet:
		if diff.Index >= 0 && diff.Index < len(result) {
			result[diff.Index] = diff.Value
		}
	case DiffRemove:
		if diff.Index >= 0 && diff.Index < len(result) {
			head := append([]int(nil), result[:diff.Index]...)
			return append(head, result[diff.Index+1:]...)
		}
	case DiffTruncate:
		if diff.Length >= 0 && diff.Length < len(result) {
			return result[:diff.Length]
		}
	}
	return result
}

func randomDiff(random *rand.Rand, length int, next *int) VectorDiff[int] {
	*next++
	value := *next
	switch random.IntN(11) {
	case 0:
		return Append(value, value+1000)
	case 1:
		if random.IntN(8) == 0 {
			return Clear[int]()
		}
		return PushBack(value)
	case 2:
		return PushFront(value)
	case 3:
		return PushBack(value)
	case 4:
		return PopFront[int]()
	case 5:
		return PopBack[int]()
	case 6:
		return Insert(random.IntN(length+2), value)
	case 7:
		return Set(random.IntN(length+1), value)
	case 8:
		return Remove[int](random.IntN(length + 1))
	case 9:
		return Truncate[int](random.IntN(length + 1))
	default:
		if random.IntN(10) == 0 {
			return Reset(value, value+1, value+2)
		}
		return Append(value)
	}
}

func TestApplyBatchMatchesReference(t *testing.T) {
	random := rand.New(rand.NewPCG(1, 2))
	var mirror, reference []int
	next := 0
	for batch := 0; batch < 500; batch++ {
		diffs := make([]VectorDiff[int], 1+random.IntN(4))
		for index := range diffs {
			diffs[index] = randomDiff(random, len(reference), &next)
			reference = referenceApply(reference, diffs[index])
		}
		mirror, _ = ApplyBatch(mirror, diffs)
		if !slices.Equal(mirror, reference) {
			t.Fatalf("batch %d: mirror %v, reference %v", batch, mirror, reference)
		}
	}
}

func TestApplyResetDoesNotAliasInput(t *testing.T) {
	values := []int{1, 2, 3}
	list, _ := Reset(values...).Apply(nil)
	list[0] = 99
	if values[0] != 1 {
		t.Fatal("Reset aliased its input slice")
	}
}
