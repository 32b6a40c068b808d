// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package verification runs interactive device verification (the
// emoji short authentication string exchange) on behalf of a foreign
// observer, and keeps an inbox of requests other devices send us.
//
// Each flow is a small state machine on its own goroutine, driven by
// the engine's request and SAS streams and bounded by a single
// deadline. While the emoji exchange is live the flow is recorded in
// the [Manager] so Confirm and Cancel can reach it; the record is
// dropped before the observer hears that the flow ended.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/clock"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/subscription"
)

// DefaultTimeout bounds a whole verification flow.
const DefaultTimeout = 120 * time.Second

const (
	acceptPollAttempts = 5
	acceptPollInterval = 150 * time.Millisecond
)

const (
	categoryFlow  subscription.Category = "verification"
	categoryInbox subscription.Category = "verification_inbox"
)

// Emojis is the short authentication string to show the user.
type Emojis struct {
	FlowID      string
	OtherUser   string
	OtherDevice string
	// Emojis holds the symbols in the order both sides display them.
	Emojis []string
}

// Observer follows one verification flow. flowID is empty for errors
// raised before a flow exists.
type Observer interface {
	OnPhase(flowID string, phase Phase)
	OnEmojis(emojis Emojis)
	OnError(flowID, message string)
}

// Config holds the parameters for New.
type Config struct {
	Verifier engine.Verifier
	Registry *subscription.Registry

	// Me is the logged-in user, used to find our own flows when no
	// other user is known.
	Me ref.UserID

	// Clock defaults to the real clock; Timeout to DefaultTimeout.
	Clock   clock.Clock
	Timeout time.Duration

	Logger *slog.Logger
}

type activeFlow struct {
	owner       *flowMachine
	sas         engine.SAS
	otherUser   ref.UserID
	otherDevice ref.DeviceID
}

type inboxEntry struct {
	user   ref.UserID
	device ref.DeviceID
}

// Manager owns every verification flow and the request inbox.
type Manager struct {
	verifier engine.Verifier
	registry *subscription.Registry
	me       ref.UserID
	clock    clock.Clock
	timeout  time.Duration
	logger   *slog.Logger

	mutex sync.Mutex
	flows map[string]*activeFlow
	inbox map[string]inboxEntry
}

// New returns a Manager.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	source := cfg.Clock
	if source == nil {
		source = clock.Real()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		verifier: cfg.Verifier,
		registry: cfg.Registry,
		me:       cfg.Me,
		clock:    source,
		timeout:  timeout,
		logger:   logger,
		flows:    make(map[string]*activeFlow),
		inbox:    make(map[string]inboxEntry),
	}
}

func (manager *Manager) addFlow(owner *flowMachine, sas engine.SAS) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.flows[owner.flowID] = &activeFlow{
		owner:       owner,
		sas:         sas,
		otherUser:   sas.OtherUser(),
		otherDevice: sas.OtherDevice(),
	}
}

// removeFlow drops owner's record, leaving a newer flow with the same
// id alone.
func (manager *Manager) removeFlow(owner *flowMachine) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if current, found := manager.flows[owner.flowID]; found && current.owner == owner {
		delete(manager.flows, owner.flowID)
	}
}

func (manager *Manager) activeSAS(flowID string) engine.SAS {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if current, found := manager.flows[flowID]; found {
		return current.sas
	}
	return nil
}

// HasFlow reports whether flowID has a live emoji exchange.
func (manager *Manager) HasFlow(flowID string) bool {
	return manager.activeSAS(flowID) != nil
}

// ActiveFlows returns the number of live emoji exchanges.
func (manager *Manager) ActiveFlows() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return len(manager.flows)
}

func (manager *Manager) inboxUser(flowID string) (ref.UserID, bool) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	entry, found := manager.inbox[flowID]
	return entry.user, found
}

// spawn starts the state machine for request and returns its flow id,
// or "" if the registry has shut down.
func (manager *Manager) spawn(request engine.VerificationRequest, observer Observer) string {
	flowID := request.FlowID()
	machine := &flowMachine{
		manager:  manager,
		flowID:   flowID,
		request:  request,
		observer: observer,
		logger:   manager.logger.With("flow_id", flowID),
		state:    StateRequested,
	}
	if manager.registry.RegisterTransient(categoryFlow, machine.run) == 0 {
		machine.fail("Verification unavailable after shutdown")
		return ""
	}
	return flowID
}

func reportEarly(logger *slog.Logger, observer Observer, message string) {
	logger.Warn("verification not started", "reason", message)
	(&flowMachine{observer: observer, logger: logger}).fail(message)
}

// StartSelf asks another of our own devices to verify this one. It
// returns the flow id, or "" after reporting the error to observer.
func (manager *Manager) StartSelf(ctx context.Context, deviceID string, observer Observer) string {
	device, err := ref.ParseDeviceID(deviceID)
	if err != nil {
		reportEarly(manager.logger, observer, "Device not found")
		return ""
	}
	request, err := manager.verifier.RequestDeviceVerification(ctx, device)
	switch {
	case errors.Is(err, engine.ErrDeviceNotFound):
		reportEarly(manager.logger, observer, "Device not found")
		return ""
	case err != nil:
		reportEarly(manager.logger, observer, err.Error())
		return ""
	}
	return manager.spawn(request, observer)
}

// StartUser asks another user to verify us. It returns the flow id,
// or "" after reporting the error to observer.
func (manager *Manager) StartUser(ctx context.Context, userID string, observer Observer) string {
	user, err := ref.ParseUserID(userID)
	if err != nil {
		reportEarly(manager.logger, observer, "Bad user id")
		return ""
	}
	request, err := manager.verifier.RequestUserVerification(ctx, user)
	switch {
	case errors.Is(err, engine.ErrNoIdentity):
		reportEarly(manager.logger, observer, "User has no cross-signing identity")
		return ""
	case err != nil:
		reportEarly(manager.logger, observer, err.Error())
		return ""
	}
	return manager.spawn(request, observer)
}

// resolveUser parses otherUser, or falls back to the inbox record
// for flowID when otherUser is empty.
func (manager *Manager) resolveUser(flowID, otherUser string) (ref.UserID, bool) {
	if otherUser != "" {
		user, err := ref.ParseUserID(otherUser)
		return user, err == nil
	}
	return manager.inboxUser(flowID)
}

// Accept accepts a verification another device started. If the flow
// already has an emoji exchange it is accepted directly; if only the
// request exists it is accepted and a state machine reporting to
// observer is started.
func (manager *Manager) Accept(ctx context.Context, flowID, otherUser string, observer Observer) bool {
	user, ok := manager.resolveUser(flowID, otherUser)
	if !ok {
		manager.logger.Warn("accept: no user for flow", "flow_id", flowID)
		return false
	}

	if sas := manager.activeSAS(flowID); sas != nil {
		return sas.Accept(ctx) == nil
	}

	if request := manager.verifier.FindRequest(ctx, user, flowID); request != nil {
		if err := request.Accept(ctx); err != nil {
			manager.logger.Warn("accepting verification request failed", "flow_id", flowID, "error", err)
			return false
		}
		return manager.spawn(request, observer) != ""
	}

	verification := manager.verifier.FindVerification(ctx, user, flowID)
	if verification == nil {
		manager.logger.Warn("accept: no verification found", "flow_id", flowID, "user_id", user.String())
		return false
	}
	for attempt := 0; ; attempt++ {
		if sas := verification.SAS(); sas != nil {
			return sas.Accept(ctx) == nil
		}
		if attempt == acceptPollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-manager.clock.After(acceptPollInterval):
		}
	}
	manager.logger.Warn("accept: SAS never became available", "flow_id", flowID)
	return false
}

// Confirm tells the other side the emojis match. Returns false if the
// flow has no live emoji exchange.
func (manager *Manager) Confirm(ctx context.Context, flowID string) bool {
	sas := manager.activeSAS(flowID)
	if sas == nil {
		return false
	}
	return sas.Confirm(ctx) == nil
}

// Cancel aborts a flow's emoji exchange, looking it up through the
// engine when this manager is not running it.
func (manager *Manager) Cancel(ctx context.Context, flowID string) bool {
	if sas := manager.activeSAS(flowID); sas != nil {
		return sas.Cancel(ctx) == nil
	}
	user, found := manager.inboxUser(flowID)
	if !found {
		if manager.me.IsZero() {
			return false
		}
		user = manager.me
	}
	verification := manager.verifier.FindVerification(ctx, user, flowID)
	if verification == nil {
		return false
	}
	if sas := verification.SAS(); sas != nil {
		return sas.Cancel(ctx) == nil
	}
	return false
}

// CancelRequest declines or withdraws a verification request.
func (manager *Manager) CancelRequest(ctx context.Context, flowID, otherUser string) bool {
	user, ok := manager.resolveUser(flowID, otherUser)
	if !ok {
		return false
	}
	if request := manager.verifier.FindRequest(ctx, user, flowID); request != nil {
		return request.Cancel(ctx) == nil
	}
	if verification := manager.verifier.FindVerification(ctx, user, flowID); verification != nil {
		if sas := verification.SAS(); sas != nil {
			return sas.Cancel(ctx) == nil
		}
	}
	return false
}

// CheckRequest reports whether the engine still holds a pending
// request from userID for flowID.
func (manager *Manager) CheckRequest(ctx context.Context, userID, flowID string) bool {
	user, err := ref.ParseUserID(userID)
	if err != nil {
		return false
	}
	return manager.verifier.FindRequest(ctx, user, flowID) != nil
}
