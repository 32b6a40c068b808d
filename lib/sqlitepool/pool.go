// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for Open.
type Config struct {
	// Path is the database file. Its directory must exist. Use
	// "file::memory:?mode=memory&cache=shared" to share one in-memory
	// database between connections in tests.
	Path string

	// PoolSize defaults to 4. The stores in this module are small and
	// write rarely; more connections only help concurrent readers.
	PoolSize int

	// Schema is applied on first use of a database whose user_version
	// is below SchemaVersion. It must be idempotent
	// (CREATE ... IF NOT EXISTS).
	Schema        string
	SchemaVersion int

	// Logger may be nil.
	Logger *slog.Logger
}

// Pool is a fixed-size pool of prepared SQLite connections. Safe for
// concurrent use.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Open creates the pool. Connections are opened lazily.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepare(conn, cfg.Schema, cfg.SchemaVersion)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}
	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", poolSize)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. Every Take must be paired with Put.
func (pool *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := pool.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns conn to the pool. Put(nil) is a no-op.
func (pool *Pool) Put(conn *sqlite.Conn) {
	if conn != nil {
		pool.inner.Put(conn)
	}
}

// With runs work on a borrowed connection.
func (pool *Pool) With(ctx context.Context, work func(conn *sqlite.Conn) error) error {
	conn, err := pool.Take(ctx)
	if err != nil {
		return err
	}
	defer pool.Put(conn)
	return work(conn)
}

// Close waits for borrowed connections and closes them all.
func (pool *Pool) Close() error {
	if err := pool.inner.Close(); err != nil {
		pool.logger.Error("sqlite pool close failed", "path", pool.path, "error", err)
		return fmt.Errorf("sqlitepool: closing %s: %w", pool.path, err)
	}
	pool.logger.Debug("sqlite pool closed", "path", pool.path)
	return nil
}

func prepare(conn *sqlite.Conn, schema string, version int) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if schema == "" {
		return nil
	}

	current, err := userVersion(conn)
	if err != nil {
		return err
	}
	if current >= version {
		return nil
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlitepool: applying schema: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA user_version=%d", version), nil); err != nil {
		return fmt.Errorf("sqlitepool: recording schema version: %w", err)
	}
	return nil
}

// UserVersion returns the schema version recorded in the database.
func UserVersion(conn *sqlite.Conn) (int, error) { return userVersion(conn) }

func userVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}
