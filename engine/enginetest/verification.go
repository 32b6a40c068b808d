// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// Request is a fake engine.VerificationRequest. Push moves it to a new
// state and publishes the change.
type Request struct {
	Flow    string
	Started bool
	States  *Feed[engine.RequestState]

	// StartSASFunc answers StartSAS. Nil means ErrSASUnavailable.
	StartSASFunc func(ctx context.Context) (engine.SAS, error)
	// AcceptErr and CancelErr fail Accept and Cancel.
	AcceptErr error
	CancelErr error

	StartSASCalls atomic.Int64
	Accepts       atomic.Int64
	Cancels       atomic.Int64

	mutex sync.Mutex
	state engine.RequestState
}

// NewRequest returns a Request in state RequestRequested.
func NewRequest(flowID string, weStarted bool) *Request {
	return &Request{
		Flow:    flowID,
		Started: weStarted,
		States:  NewFeed[engine.RequestState](16),
		state:   engine.RequestState{Kind: engine.RequestRequested},
	}
}

// Push sets the current state and publishes it.
func (request *Request) Push(state engine.RequestState) {
	request.mutex.Lock()
	request.state = state
	request.mutex.Unlock()
	request.States.Send(state)
}

func (request *Request) FlowID() string  { return request.Flow }
func (request *Request) WeStarted() bool { return request.Started }

func (request *Request) State() engine.RequestState {
	request.mutex.Lock()
	defer request.mutex.Unlock()
	return request.state
}

func (request *Request) Changes() engine.Stream[engine.RequestState] {
	return request.States.Subscribe()
}

func (request *Request) StartSAS(ctx context.Context) (engine.SAS, error) {
	request.StartSASCalls.Add(1)
	if request.StartSASFunc == nil {
		return nil, engine.ErrSASUnavailable
	}
	return request.StartSASFunc(ctx)
}

func (request *Request) Accept(ctx context.Context) error {
	request.Accepts.Add(1)
	return request.AcceptErr
}

func (request *Request) Cancel(ctx context.Context) error {
	request.Cancels.Add(1)
	return request.CancelErr
}

// SAS is a fake engine.SAS.
type SAS struct {
	Flow   string
	User   ref.UserID
	Device ref.DeviceID
	States *Feed[engine.SASState]

	Accepts  atomic.Int64
	Confirms atomic.Int64
	Cancels  atomic.Int64
}

// NewSAS returns a SAS exchange with user's device.
func NewSAS(flowID string, user ref.UserID, device ref.DeviceID) *SAS {
	return &SAS{Flow: flowID, User: user, Device: device, States: NewFeed[engine.SASState](16)}
}

func (sas *SAS) FlowID() string            { return sas.Flow }
func (sas *SAS) OtherUser() ref.UserID     { return sas.User }
func (sas *SAS) OtherDevice() ref.DeviceID { return sas.Device }

func (sas *SAS) Changes() engine.Stream[engine.SASState] { return sas.States.Subscribe() }

func (sas *SAS) Accept(ctx context.Context) error {
	sas.Accepts.Add(1)
	return nil
}

func (sas *SAS) Confirm(ctx context.Context) error {
	sas.Confirms.Add(1)
	return nil
}

func (sas *SAS) Cancel(ctx context.Context) error {
	sas.Cancels.Add(1)
	return nil
}

// Verification is a fake engine.Verification whose SAS can appear
// after a delay.
type Verification struct {
	Flow string
	sas  atomic.Pointer[SAS]
}

// SetSAS makes sas available through SAS.
func (verification *Verification) SetSAS(sas *SAS) { verification.sas.Store(sas) }

func (verification *Verification) FlowID() string { return verification.Flow }

func (verification *Verification) SAS() engine.SAS {
	if sas := verification.sas.Load(); sas != nil {
		return sas
	}
	return nil
}
