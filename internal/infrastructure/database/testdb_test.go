// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

// openTestDB returns a fresh, fully-migrated in-memory database. Each call
// gets its own isolated instance: InitDB opens a new pool capped at one
// connection, and a ":memory:" database is private to its connection.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(context.Background(), Config{DSN: "sqlite::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
