// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/clock"
	"github.com/bureau-foundation/sessionbridge/lib/dispatch"
)

const (
	messageTimedOut     = "Verification timed out waiting for SAS"
	messageStreamEnded  = "Verification request stream ended"
	messageSASEnded     = "Verification SAS stream ended"
	messageNonSASMethod = "Verification transitioned to a non-SAS method (unsupported)"
	messageNoEmojis     = "KeysExchanged but no emojis provided"
)

var errTimedOut = errors.New("verification deadline expired")

// flowMachine drives one flow from request to a terminal state. It runs
// on a single goroutine; only the flow map is shared.
type flowMachine struct {
	manager  *Manager
	flowID   string
	request  engine.VerificationRequest
	observer Observer
	logger   *slog.Logger

	state    State
	deadline *clock.Deadline
}

func (machine *flowMachine) advance(next State) bool {
	if !CanTransition(machine.state, next) {
		machine.logger.Debug("ignoring verification transition", "from", machine.state.String(), "to", next.String())
		return false
	}
	machine.logger.Debug("verification transition", "from", machine.state.String(), "to", next.String())
	machine.state = next
	return true
}

func (machine *flowMachine) phase(phase Phase) {
	dispatch.Call(machine.logger, "verification.OnPhase", func() { machine.observer.OnPhase(machine.flowID, phase) })
}

func (machine *flowMachine) fail(message string) {
	dispatch.Call(machine.logger, "verification.OnError", func() { machine.observer.OnError(machine.flowID, message) })
}

// run owns the flow until it ends. The deadline covers the whole
// flow: flowCtx is cancelled with errTimedOut when it expires, which
// unblocks whatever wait is in progress.
func (machine *flowMachine) run(ctx context.Context) {
	machine.deadline = clock.NewDeadline(machine.manager.clock, machine.manager.timeout)
	defer machine.deadline.Stop()

	flowCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-machine.deadline.Done():
			cancel(errTimedOut)
		case <-flowCtx.Done():
		}
	}()
	defer machine.manager.removeFlow(machine)

	machine.phase(PhaseRequested)
	machine.awaitRequest(flowCtx)
}

func (machine *flowMachine) timedOut() {
	machine.manager.removeFlow(machine)
	machine.advance(StateTimedOut)
	machine.fail(messageTimedOut)
}

// expired ends the flow once the deadline has passed. Checked before
// every value, since a stream may hand back one already buffered
// after expiry.
func (machine *flowMachine) expired() bool {
	if !machine.deadline.Expired() {
		return false
	}
	machine.timedOut()
	return true
}

// interrupted classifies a failed wait. It returns true when the flow
// must end and has already been reported.
func (machine *flowMachine) interrupted(ctx context.Context, err error, ended string) bool {
	switch {
	case errors.Is(context.Cause(ctx), errTimedOut):
		machine.timedOut()
		return true
	case ctx.Err() != nil:
		machine.logger.Debug("verification flow cancelled")
		return true
	case engine.IsLagged(err):
		machine.logger.Debug("verification stream lagged", "error", err)
		return false
	case engine.IsClosed(err):
		machine.manager.removeFlow(machine)
		machine.advance(StateFailed)
		machine.fail(ended)
		return true
	default:
		machine.manager.removeFlow(machine)
		machine.advance(StateFailed)
		machine.fail("Verification stream failed: " + err.Error())
		return true
	}
}

func (machine *flowMachine) awaitRequest(ctx context.Context) {
	changes := machine.request.Changes()
	pending := machine.request.State()
	havePending := true

	weStarted := machine.request.WeStarted()
	startedSAS := false
	unavailableRetries := 0

	for {
		var state engine.RequestState
		if havePending {
			state, havePending = pending, false
		} else {
			var err error
			state, err = changes.Recv(ctx)
			if err != nil {
				if machine.interrupted(ctx, err, messageStreamEnded) {
					return
				}
				continue
			}
		}
		if machine.expired() {
			return
		}

		switch state.Kind {
		case engine.RequestCancelled:
			machine.advance(StateCancelled)
			machine.phase(PhaseCancelled)
			machine.fail(state.Reason)
			return

		case engine.RequestDone:
			machine.advance(StateDone)
			machine.phase(PhaseDone)
			return

		case engine.RequestReady:
			machine.advance(StateReady)
			if !weStarted || startedSAS {
				continue
			}
			startedSAS = true
			sas, err := machine.request.StartSAS(ctx)
			switch {
			case err == nil && sas != nil:
				machine.runSAS(ctx, sas)
				return
			case err == nil || errors.Is(err, engine.ErrSASUnavailable):
				if unavailableRetries == 0 {
					unavailableRetries++
					startedSAS = false
				}
				machine.logger.Debug("SAS not yet available", "retry_allowed", !startedSAS)
			case ctx.Err() != nil:
				if machine.interrupted(ctx, err, messageStreamEnded) {
					return
				}
			default:
				machine.logger.Warn("starting SAS failed", "error", err)
				machine.fail("start_sas failed: " + err.Error())
				startedSAS = false
			}

		case engine.RequestTransitioned:
			if state.SAS == nil || (state.Method != "" && state.Method != engine.MethodSAS) {
				machine.advance(StateFailed)
				machine.fail(messageNonSASMethod)
				return
			}
			machine.runSAS(ctx, state.SAS)
			return
		}
	}
}

func (machine *flowMachine) runSAS(ctx context.Context, sas engine.SAS) {
	machine.manager.addFlow(machine, sas)
	machine.advance(StateKeyExchangeStarted)
	machine.phase(PhaseReady)

	changes := sas.Changes()
	for {
		state, err := changes.Recv(ctx)
		if err != nil {
			if machine.interrupted(ctx, err, messageSASEnded) {
				return
			}
			continue
		}
		if machine.expired() {
			return
		}

		switch state.Kind {
		case engine.SASKeysExchanged:
			if !machine.advance(StateKeysExchanged) {
				continue
			}
			switch {
			case len(state.Emojis) > 0:
				payload := Emojis{
					FlowID:      machine.flowID,
					OtherUser:   sas.OtherUser().String(),
					OtherDevice: sas.OtherDevice().String(),
					Emojis:      make([]string, len(state.Emojis)),
				}
				for index, emoji := range state.Emojis {
					payload.Emojis[index] = emoji.Symbol
				}
				machine.phase(PhaseEmojis)
				dispatch.Call(machine.logger, "verification.OnEmojis", func() { machine.observer.OnEmojis(payload) })
			case state.Decimals != nil:
				machine.abandon(ctx, sas, decimalMessage(*state.Decimals))
				return
			default:
				machine.abandon(ctx, sas, messageNoEmojis)
				return
			}

		case engine.SASConfirmed:
			if machine.advance(StateConfirmed) {
				machine.phase(PhaseConfirmed)
			}

		case engine.SASDone:
			machine.manager.removeFlow(machine)
			machine.advance(StateDone)
			machine.phase(PhaseDone)
			return

		case engine.SASCancelled:
			machine.manager.removeFlow(machine)
			machine.advance(StateCancelled)
			machine.phase(PhaseCancelled)
			machine.fail(state.Reason)
			return
		}
	}
}

// abandon ends a flow whose key exchange cannot be shown to the user.
// The exchange is cancelled so the other side stops waiting too.
func (machine *flowMachine) abandon(ctx context.Context, sas engine.SAS, message string) {
	if err := sas.Cancel(ctx); err != nil {
		machine.logger.Warn("cancelling unusable SAS failed", "error", err)
	}
	machine.manager.removeFlow(machine)
	machine.advance(StateFailed)
	machine.phase(PhaseFailed)
	machine.fail(message)
}

func decimalMessage(decimals [3]uint16) string {
	parts := make([]string, len(decimals))
	for index, value := range decimals {
		parts[index] = fmt.Sprint(value)
	}
	return fmt.Sprintf("SAS is decimal-only (%s); only emoji verification is supported", strings.Join(parts, "-"))
}
