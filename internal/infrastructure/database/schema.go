// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const schemaVersionKey = "schema_version"

const latestSchemaVersion = 1

func migrate(ctx context.Context, db *sql.DB) error {
	if err := ensureSettingsTable(ctx, db); err != nil {
		return err
	}

	cur, err := getSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	if cur < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
		if err := setSchemaVersion(ctx, db, 1); err != nil {
			return err
		}
		cur = 1
	}

	_ = cur // future migrations compare cur against latestSchemaVersion here
	return nil
}

func ensureSettingsTable(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS settings (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);`
	_, err := db.ExecContext(ctx, ddl)
	return err
}

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	const q = `SELECT value FROM settings WHERE key = ?`
	var val string
	err := db.QueryRowContext(ctx, q, schemaVersionKey).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	var v int
	if _, err := fmt.Sscanf(val, "%d", &v); err != nil {
		return 0, nil
	}
	return v, nil
}

func setSchemaVersion(ctx context.Context, db *sql.DB, v int) error {
	const upsert = `
INSERT INTO settings(key, value) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value;`
	_, err := db.ExecContext(ctx, upsert, schemaVersionKey, fmt.Sprintf("%d", v))
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

func migrateToV1(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS webhooks (
  id           TEXT PRIMARY KEY,
  url          TEXT NOT NULL,
  request_body TEXT NOT NULL DEFAULT '',
  description  TEXT NOT NULL DEFAULT '',
  created_at   TIMESTAMP NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS job_done_watchers (
  id              TEXT PRIMARY KEY,
  job_name        TEXT NOT NULL,
  timeout_seconds INTEGER NOT NULL DEFAULT 0,
  status          TEXT NOT NULL,
  created_at      TIMESTAMP NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_job_done_watchers_job_name_status ON job_done_watchers(job_name, status);`,
		`CREATE TABLE IF NOT EXISTS job_done_trigger_webhooks (
  id                  TEXT PRIMARY KEY,
  webhook_id          TEXT NOT NULL,
  job_done_watcher_id TEXT NOT NULL REFERENCES job_done_watchers(id) ON DELETE CASCADE,
  timeout_seconds     INTEGER NOT NULL DEFAULT 0,
  status              TEXT NOT NULL,
  called_at           TIMESTAMP NULL,
  position            INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS idx_job_done_trigger_webhooks_watcher ON job_done_trigger_webhooks(job_done_watcher_id);`,
		`CREATE TABLE IF NOT EXISTS job_family_watchers (
  id           TEXT PRIMARY KEY,
  job_family   TEXT NOT NULL,
  url          TEXT NOT NULL,
  request_body TEXT NOT NULL DEFAULT '',
  description  TEXT NOT NULL DEFAULT '',
  created_at   TIMESTAMP NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_job_family_watchers_family ON job_family_watchers(job_family);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}
