// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"

	"github.com/bureau-foundation/sessionbridge/lib/ref"
)

// ErrSASUnavailable is returned by VerificationRequest.StartSAS when
// the other side is not yet able to begin a SAS exchange.
var ErrSASUnavailable = errors.New("engine: SAS not yet available")

// ErrDeviceNotFound is returned by RequestDeviceVerification when the
// device is not one of ours.
var ErrDeviceNotFound = errors.New("engine: device not found")

// ErrNoIdentity is returned by RequestUserVerification when the user
// has not published a cross-signing identity.
var ErrNoIdentity = errors.New("engine: user has no cross-signing identity")

// RequestStateKind is the phase of a verification request.
type RequestStateKind uint8

const (
	RequestCreated RequestStateKind = iota
	RequestRequested
	RequestReady
	RequestTransitioned
	RequestDone
	RequestCancelled
)

var requestStateNames = [...]string{
	RequestCreated:      "created",
	RequestRequested:    "requested",
	RequestReady:        "ready",
	RequestTransitioned: "transitioned",
	RequestDone:         "done",
	RequestCancelled:    "cancelled",
}

func (kind RequestStateKind) String() string {
	if int(kind) < len(requestStateNames) {
		return requestStateNames[kind]
	}
	return "unknown"
}

// MethodSAS is the only verification method the bridge drives.
const MethodSAS = "m.sas.v1"

// RequestState is one state of a VerificationRequest.
type RequestState struct {
	Kind RequestStateKind
	// Method and SAS are set for RequestTransitioned. SAS is nil when
	// Method is not MethodSAS.
	Method string
	SAS    SAS
	// Reason is set for RequestCancelled.
	Reason string
}

// VerificationRequest is an interactive verification request, either
// sent by us or received.
type VerificationRequest interface {
	FlowID() string
	WeStarted() bool
	State() RequestState
	Changes() Stream[RequestState]

	// StartSAS begins the emoji exchange. Returns ErrSASUnavailable
	// if the other device cannot start yet.
	StartSAS(ctx context.Context) (SAS, error)
	Accept(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// SASStateKind is the phase of a SAS exchange.
type SASStateKind uint8

const (
	SASCreated SASStateKind = iota
	SASStarted
	SASAccepted
	SASKeysExchanged
	SASConfirmed
	SASDone
	SASCancelled
)

var sasStateNames = [...]string{
	SASCreated:       "created",
	SASStarted:       "started",
	SASAccepted:      "accepted",
	SASKeysExchanged: "keys_exchanged",
	SASConfirmed:     "confirmed",
	SASDone:          "done",
	SASCancelled:     "cancelled",
}

func (kind SASStateKind) String() string {
	if int(kind) < len(sasStateNames) {
		return sasStateNames[kind]
	}
	return "unknown"
}

// Emoji is one symbol of an emoji SAS.
type Emoji struct {
	Symbol      string
	Description string
}

// SASState is one state of a SAS exchange.
type SASState struct {
	Kind SASStateKind
	// Emojis is set for SASKeysExchanged when both sides support
	// emoji. Decimals is set when they only support numbers.
	Emojis   []Emoji
	Decimals *[3]uint16
	// Reason is set for SASCancelled.
	Reason string
}

// SAS is a short-authentication-string exchange with one device.
type SAS interface {
	FlowID() string
	OtherUser() ref.UserID
	OtherDevice() ref.DeviceID
	Changes() Stream[SASState]
	Accept(ctx context.Context) error
	Confirm(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// Verification is a started verification of some method.
type Verification interface {
	FlowID() string
	// SAS returns the SAS exchange, or nil if the verification is not
	// (or not yet) a SAS exchange.
	SAS() SAS
}

// IncomingVerification announces a verification request addressed to
// us, by to-device message or in a room.
type IncomingVerification struct {
	FlowID string
	User   ref.UserID
	// Device is zero for requests made in a room.
	Device ref.DeviceID
}

// Verifier is the engine's verification machinery.
type Verifier interface {
	// RequestDeviceVerification asks one of our own devices to verify.
	RequestDeviceVerification(ctx context.Context, device ref.DeviceID) (VerificationRequest, error)

	// RequestUserVerification asks another user to verify.
	RequestUserVerification(ctx context.Context, user ref.UserID) (VerificationRequest, error)

	// FindRequest returns a pending request, or nil.
	FindRequest(ctx context.Context, user ref.UserID, flowID string) VerificationRequest

	// FindVerification returns the verification a flow transitioned
	// into, or nil.
	FindVerification(ctx context.Context, user ref.UserID, flowID string) Verification

	SubscribeVerificationRequests() Stream[IncomingVerification]
}
