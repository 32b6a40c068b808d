// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import "slices"

// State is the position of one verification flow.
type State uint8

const (
	StateRequested State = iota
	StateReady
	StateKeyExchangeStarted
	StateKeysExchanged
	StateConfirmed
	StateDone
	StateCancelled
	StateTimedOut
	// StateFailed ends a flow that cannot continue: the stream ended
	// or the other side chose a method we do not drive.
	StateFailed
)

var stateNames = [...]string{
	StateRequested:          "requested",
	StateReady:              "ready",
	StateKeyExchangeStarted: "key_exchange_started",
	StateKeysExchanged:      "keys_exchanged",
	StateConfirmed:          "confirmed",
	StateDone:               "done",
	StateCancelled:          "cancelled",
	StateTimedOut:           "timed_out",
	StateFailed:             "failed",
}

func (state State) String() string {
	if int(state) < len(stateNames) {
		return stateNames[state]
	}
	return "unknown"
}

// Terminal reports whether no transition leaves state.
func (state State) Terminal() bool { return len(transitions[state]) == 0 }

var ending = []State{StateDone, StateCancelled, StateTimedOut, StateFailed}

// transitions lists the states reachable from each state. The engine
// may skip intermediate states, so every forward move is allowed;
// nothing moves backwards and terminal states have no entry.
var transitions = map[State][]State{
	StateRequested:          append([]State{StateReady, StateKeyExchangeStarted}, ending...),
	StateReady:              append([]State{StateKeyExchangeStarted, StateKeysExchanged}, ending...),
	StateKeyExchangeStarted: append([]State{StateKeysExchanged, StateConfirmed}, ending...),
	StateKeysExchanged:      append([]State{StateConfirmed}, ending...),
	StateConfirmed:          ending,
}

// CanTransition reports whether a flow in from may move to to.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Phase is what an Observer is told about a flow's progress.
type Phase uint8

const (
	PhaseRequested Phase = iota
	PhaseReady
	PhaseEmojis
	PhaseConfirmed
	PhaseCancelled
	PhaseFailed
	PhaseDone
)

var phaseNames = [...]string{
	PhaseRequested: "requested",
	PhaseReady:     "ready",
	PhaseEmojis:    "emojis",
	PhaseConfirmed: "confirmed",
	PhaseCancelled: "cancelled",
	PhaseFailed:    "failed",
	PhaseDone:      "done",
}

func (phase Phase) String() string {
	if int(phase) < len(phaseNames) {
		return phaseNames[phase]
	}
	return "unknown"
}
