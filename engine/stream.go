// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bureau-foundation/sessionbridge/lib/broadcast"
)

// Stream is a lazily produced sequence of values. Recv blocks until
// the next value, the end of the stream (broadcast.ErrClosed), or ctx
// is done. *broadcast.Receiver satisfies Stream.
type Stream[V any] interface {
	Recv(ctx context.Context) (V, error)
}

// IsClosed reports whether err marks the end of a stream.
func IsClosed(err error) bool { return errors.Is(err, broadcast.ErrClosed) }

// IsLagged reports whether err is a recoverable lag notice.
func IsLagged(err error) bool { return errors.Is(err, broadcast.ErrLagged) }

// Forward moves stream's values onto a channel so a caller can select
// over it alongside timers and commands. Lag is logged and skipped.
// The channel is closed when the stream closes, fails, or ctx ends.
func Forward[V any](ctx context.Context, logger *slog.Logger, name string, stream Stream[V]) <-chan V {
	values := make(chan V)
	go func() {
		defer close(values)
		for {
			value, err := stream.Recv(ctx)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return
			case IsLagged(err):
				logger.Debug("stream lagged", "stream", name, "error", err)
				continue
			case IsClosed(err):
				logger.Debug("stream closed", "stream", name)
				return
			default:
				logger.Warn("stream failed", "stream", name, "error", err)
				return
			}
			select {
			case values <- value:
			case <-ctx.Done():
				return
			}
		}
	}()
	return values
}
