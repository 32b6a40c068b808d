// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memberstore caches room member display names in SQLite.
//
// The engine knows every member's profile, but only after it has
// fetched the member list, and a lookup through it may hit the network.
// Typing notices and timeline senders need a name immediately, so the
// bridge records each profile it sees here and reads it back without
// touching the engine.
package memberstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sessionbridge/lib/clock"
	"github.com/bureau-foundation/sessionbridge/lib/ref"
	"github.com/bureau-foundation/sessionbridge/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS members (
	room_id      TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL,
	avatar_url   TEXT NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (room_id, user_id)
) WITHOUT ROWID;
`

const schemaVersion = 1

// Member is one cached profile.
type Member struct {
	Room        ref.RoomID
	User        ref.UserID
	DisplayName string
	AvatarURL   string
	UpdatedAt   time.Time
}

// Config holds the parameters for Open.
type Config struct {
	// Path is the SQLite file. Its directory must exist.
	Path string

	// Clock stamps UpdatedAt. Defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Store is the member cache. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens or creates the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	source := cfg.Clock
	if source == nil {
		source = clock.Real()
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:          cfg.Path,
		Schema:        schema,
		SchemaVersion: schemaVersion,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("memberstore: %w", err)
	}
	return &Store{pool: pool, clock: source, logger: logger}, nil
}

// Close closes the database.
func (store *Store) Close() error { return store.pool.Close() }

// Put records member, replacing any earlier entry for the same room
// and user. Members with an empty display name are ignored.
func (store *Store) Put(ctx context.Context, member Member) error {
	if member.DisplayName == "" {
		return nil
	}
	updated := store.clock.Now().UnixMilli()
	return store.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO members (room_id, user_id, display_name, avatar_url, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (room_id, user_id) DO UPDATE SET
				display_name = excluded.display_name,
				avatar_url   = excluded.avatar_url,
				updated_at   = excluded.updated_at`,
			&sqlitex.ExecOptions{
				Args: []any{member.Room.String(), member.User.String(), member.DisplayName, member.AvatarURL, updated},
			})
		if err != nil {
			return fmt.Errorf("memberstore: put %s in %s: %w", member.User, member.Room, err)
		}
		return nil
	})
}

// Lookup returns the cached member, if any.
func (store *Store) Lookup(ctx context.Context, room ref.RoomID, user ref.UserID) (Member, bool, error) {
	var member Member
	found := false
	err := store.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT display_name, avatar_url, updated_at FROM members
			WHERE room_id = ? AND user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{room.String(), user.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					member = Member{
						Room:        room,
						User:        user,
						DisplayName: stmt.ColumnText(0),
						AvatarURL:   stmt.ColumnText(1),
						UpdatedAt:   time.UnixMilli(stmt.ColumnInt64(2)),
					}
					return nil
				},
			})
	})
	if err != nil {
		return Member{}, false, fmt.Errorf("memberstore: lookup %s in %s: %w", user, room, err)
	}
	return member, found, nil
}

// DisplayNames returns the cached names of users in room. Users with no
// entry are absent from the result.
func (store *Store) DisplayNames(ctx context.Context, room ref.RoomID, users []ref.UserID) (map[ref.UserID]string, error) {
	names := make(map[ref.UserID]string, len(users))
	if len(users) == 0 {
		return names, nil
	}
	err := store.pool.With(ctx, func(conn *sqlite.Conn) error {
		for _, user := range users {
			err := sqlitex.Execute(conn,
				`SELECT display_name FROM members WHERE room_id = ? AND user_id = ?`,
				&sqlitex.ExecOptions{
					Args: []any{room.String(), user.String()},
					ResultFunc: func(stmt *sqlite.Stmt) error {
						names[user] = stmt.ColumnText(0)
						return nil
					},
				})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("memberstore: display names in %s: %w", room, err)
	}
	return names, nil
}

// ForgetRoom drops every member of room and returns how many there
// were.
func (store *Store) ForgetRoom(ctx context.Context, room ref.RoomID) (int, error) {
	var removed int
	err := store.pool.With(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM members WHERE room_id = ?`, &sqlitex.ExecOptions{
			Args: []any{room.String()},
		}); err != nil {
			return err
		}
		removed = conn.Changes()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("memberstore: forget %s: %w", room, err)
	}
	store.logger.Debug("forgot room members", "room_id", room.String(), "count", removed)
	return removed, nil
}
