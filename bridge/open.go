// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/sessionbridge/engine"
	"github.com/bureau-foundation/sessionbridge/lib/cachefile"
	"github.com/bureau-foundation/sessionbridge/lib/config"
	"github.com/bureau-foundation/sessionbridge/lib/memberstore"
)

// Open builds a Bridge for source from cfg, opening the member name
// store and the room-list cache in the state directory. Shutdown
// closes the store.
func Open(cfg *config.Config, source engine.Engine, logger *slog.Logger) (*Bridge, error) {
	if source == nil {
		return nil, errors.New("bridge: engine is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	compression, err := cachefile.ParseCompression(cfg.RoomList.Compression)
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	bridgeConfig := Config{
		Engine:              source,
		ProbeInterval:       cfg.Connection.ProbeInterval,
		VerificationTimeout: cfg.Verification.Timeout,
		RoomListPageSize:    cfg.RoomList.PageSize,
		Logger:              logger,
	}

	if err := cfg.EnsurePaths(); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	store, err := memberstore.Open(memberstore.Config{
		Path:   cfg.MemberDatabasePath(),
		Logger: logger.With("component", "memberstore"),
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	bridgeConfig.Names = store
	bridgeConfig.Cache = cachefile.New(cachefile.Config{
		Path:        cfg.RoomListCachePath(),
		Compression: compression,
		Logger:      logger.With("component", "cachefile"),
	})

	bridge, err := New(bridgeConfig)
	if err != nil {
		store.Close()
		return nil, err
	}
	bridge.closers = append(bridge.closers, store.Close)
	logger.Info("bridge opened",
		"user_id", source.UserID().String(),
		"state_dir", cfg.Paths.State,
		"compression", compression.String(),
	)
	return bridge, nil
}
