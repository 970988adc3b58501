// Package testutil provides shared fixtures for tests that need a real
// database: a migrated SQLite instance plus a builder for seeding
// domain rows with explicit ids.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"botweave/internal/infrastructure/sqlite"
)

// NewTestDB opens a migrated SQLite database in a per-test temp
// directory. It is closed when the test completes.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { _ = db.Close() })
	return db
}
