package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"botweave/internal/domain"
)

// newTestDB opens a database in a fresh temp directory and closes it when
// the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "botweave.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_CreatesPathAndFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "data", "botweave.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "missing parent directories should be created")
	defer db.Close()

	dirInfo, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	require.True(t, dirInfo.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm(), "data directory should be private")
	}

	fileInfo, err := os.Stat(dbPath)
	require.NoError(t, err, "database file should exist after NewDB")
	require.False(t, fileInfo.IsDir())
}

func TestNewDB_MigratesSchema(t *testing.T) {
	db := newTestDB(t)

	rows, err := db.conn.Query("SELECT name FROM sqlite_master WHERE type='table'")
	require.NoError(t, err)
	defer rows.Close()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables[name] = true
	}
	require.NoError(t, rows.Err())

	for _, want := range []string{"users", "bots", "workflows", "user_workflows", "global_variables"} {
		require.True(t, tables[want], "migrations should create the %s table", want)
	}
}

func TestNewDB_ConnectionPragmas(t *testing.T) {
	db := newTestDB(t)

	for pragma, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	} {
		var got string
		require.NoError(t, db.conn.QueryRow("PRAGMA "+pragma).Scan(&got))
		require.Equal(t, want, got, "pragma %s", pragma)
	}
}

func TestNewDB_BacksUpBeforeMigrating(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "botweave.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	bot := &domain.Bot{Name: "echo-bot", Protocol: domain.ProtocolQQ, Enabled: true}
	require.NoError(t, db.Bots().Save(bot))
	require.NoError(t, db.Close())

	// The first open found no file, so nothing was backed up.
	_, err = os.Stat(dbPath + ".bak")
	require.True(t, os.IsNotExist(err), "first open should not leave a backup")

	reopened, err := NewDB(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "reopening an existing database should write a .bak")
	require.Greater(t, info.Size(), int64(0))
}

func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "botweave.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.Error(t, db.conn.Ping(), "connection should be unusable after Close")
}

func TestDB_Repositories(t *testing.T) {
	db := newTestDB(t)

	require.NotNil(t, db.Bots())
	require.NotNil(t, db.Workflows())
	require.NotNil(t, db.Subscriptions())
	require.NotNil(t, db.GlobalVariables())
	require.NotNil(t, db.Users())
}

func TestDB_Connection(t *testing.T) {
	db := newTestDB(t)

	conn := db.Connection()
	require.IsType(t, (*sql.DB)(nil), conn)
	require.NoError(t, conn.Ping())
}

func TestNewDB_SharedFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "botweave.db")

	first, err := NewDB(dbPath)
	require.NoError(t, err)
	defer first.Close()

	second, err := NewDB(dbPath)
	require.NoError(t, err, "WAL journaling should allow a second connection")
	defer second.Close()

	bot := &domain.Bot{Name: "echo-bot", Protocol: domain.ProtocolQQ, Enabled: true}
	require.NoError(t, first.Bots().Save(bot))

	got, err := second.Bots().FindByID(bot.ID)
	require.NoError(t, err, "rows written through one connection should be visible to the other")
	require.Equal(t, "echo-bot", got.Name)
}

func TestNewDB_InvalidPath(t *testing.T) {
	tmpDir := t.TempDir()

	// A regular file where a directory is needed
	blocker := filepath.Join(tmpDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewDB(filepath.Join(blocker, "sub", "test.db"))
	require.Error(t, err, "NewDB should fail when the parent path is a file")
}
