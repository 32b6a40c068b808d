// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/broadcast"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/secret"
)

// DefaultProbeTimeout bounds one IsActive probe.
const DefaultProbeTimeout = 10 * time.Second

// sessionChangeCapacity is how many session changes a slow
// subscriber may fall behind before it sees a lag error.
const sessionChangeCapacity = 16

// SessionConfig holds configuration for NewSession.
type SessionConfig struct {
	Client *Client
	// Token is owned by the Session from here on.
	Token        *secret.Token
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Session is an authenticated view of the homeserver. It implements
// engine.Session. All methods are safe for concurrent use.
type Session struct {
	client  *Client
	timeout time.Duration
	logger  *slog.Logger
	changes *broadcast.Channel[engine.SessionChange]

	mutex    sync.Mutex
	token    *secret.Token
	rejected bool
	userID   ref.UserID
	deviceID string
	closed   bool
}

var _ engine.Session = (*Session)(nil)

// NewSession wraps config.Token. The token is not validated until the
// first IsActive call.
func NewSession(config SessionConfig) (*Session, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("messaging: Client is required")
	}
	if config.Token == nil {
		return nil, fmt.Errorf("messaging: Token is required")
	}
	timeout := config.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = config.Client.logger
	}
	return &Session{
		client:  config.Client,
		timeout: timeout,
		logger:  logger,
		changes: broadcast.New[engine.SessionChange](sessionChangeCapacity),
		token:   config.Token,
	}, nil
}

// SubscribeSessionChanges returns a stream of token rejections and
// recoveries observed by IsActive.
func (session *Session) SubscribeSessionChanges() engine.Stream[engine.SessionChange] {
	return session.changes.Subscribe()
}

// IsActive reports whether the homeserver accepts the current token.
// A rejection with M_UNKNOWN_TOKEN publishes SessionUnknownToken once;
// the next accepted probe publishes SessionTokensRefreshed.
func (session *Session) IsActive(ctx context.Context) bool {
	authorization, ok := session.authorization()
	if !ok {
		return false
	}

	probeContext, cancel := context.WithTimeout(ctx, session.timeout)
	defer cancel()

	response, err := session.client.whoAmI(probeContext, authorization)
	if err != nil {
		if IsMatrixError(err, ErrCodeUnknownToken) {
			session.markRejected()
		}
		session.logger.Debug("session probe failed", "error", err)
		return false
	}

	userID, err := ref.ParseUserID(response.UserID)
	if err != nil {
		session.logger.Warn("homeserver returned a malformed user id", "user_id", response.UserID, "error", err)
		return false
	}
	session.markAccepted(userID, response.DeviceID)
	return true
}

// UserID returns the user the homeserver last reported for the token.
// It is zero until a probe succeeds.
func (session *Session) UserID() ref.UserID {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.userID
}

// DeviceID returns the device the homeserver last reported.
func (session *Session) DeviceID() string {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.deviceID
}

// ReplaceToken swaps in a new access token and closes the old one.
// Recovery is reported by the next successful probe.
func (session *Session) ReplaceToken(token *secret.Token) error {
	session.mutex.Lock()
	if session.closed {
		session.mutex.Unlock()
		token.Close()
		return fmt.Errorf("messaging: session is closed")
	}
	previous := session.token
	session.token = token
	session.mutex.Unlock()

	session.logger.Info("access token replaced")
	return previous.Close()
}

// Close ends every change subscription and releases the token.
func (session *Session) Close() error {
	session.mutex.Lock()
	if session.closed {
		session.mutex.Unlock()
		return nil
	}
	session.closed = true
	token := session.token
	session.mutex.Unlock()

	session.changes.Close()
	return token.Close()
}

func (session *Session) authorization() (string, bool) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if session.closed {
		return "", false
	}
	return session.token.Bearer(), true
}

func (session *Session) markRejected() {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if session.rejected || session.closed {
		return
	}
	session.rejected = true
	session.logger.Warn("homeserver rejected the access token")
	session.changes.Send(engine.SessionUnknownToken)
}

func (session *Session) markAccepted(userID ref.UserID, deviceID string) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.userID = userID
	session.deviceID = deviceID
	if !session.rejected || session.closed {
		return
	}
	session.rejected = false
	session.logger.Info("homeserver accepted the access token again", "user_id", userID)
	session.changes.Send(engine.SessionTokensRefreshed)
}
