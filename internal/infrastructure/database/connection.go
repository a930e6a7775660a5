// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Config selects and tunes the storage backend.
type Config struct {
	// DSN is the value of DATABASE_URL, e.g. "sqlite:///var/lib/jobwatch/db.sqlite",
	// "sqlite::memory:", "sqlite://:memory:", "sqlite:" or "sqlite://".
	DSN string
}

const defaultBusyTimeout = 5 * time.Second

// InitDB opens the configured backend, applies concurrency pragmas, and
// runs schema migrations to the latest version.
func InitDB(ctx context.Context, cfg Config) (*sql.DB, error) {
	path, inMemory, err := parseSQLiteDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	dsn := sqliteDSN(path, inMemory)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if inMemory {
		// A fresh in-memory database exists only on the connection that
		// created it; a pool would scatter schema and rows across
		// unrelated empty databases.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
	}
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// parseSQLiteDSN accepts the forms documented for DATABASE_URL:
// "sqlite:///path/to/file", "sqlite:relative/path", "sqlite::memory:",
// "sqlite://:memory:", "sqlite:" and "sqlite://" (the latter two both mean
// in-memory, matching the reference's "absence of a path means memory").
func parseSQLiteDSN(raw string) (path string, inMemory bool, err error) {
	if raw == "" {
		return "", false, fmt.Errorf("DATABASE_URL is required")
	}
	rest, ok := strings.CutPrefix(raw, "sqlite://")
	if !ok {
		rest, ok = strings.CutPrefix(raw, "sqlite:")
	}
	if !ok {
		return "", false, fmt.Errorf("unsupported DATABASE_URL scheme: %s", raw)
	}
	if rest == "" || rest == ":memory:" {
		return "", true, nil
	}
	return rest, false, nil
}

func sqliteDSN(path string, inMemory bool) string {
	target := path
	if inMemory {
		target = ":memory:"
	}
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)",
		target, int(defaultBusyTimeout.Milliseconds()),
	)
}
