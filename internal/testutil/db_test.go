package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTestDB_CreatesSchema(t *testing.T) {
	db := NewTestDB(t)

	var count int
	err := db.Connection().QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('users', 'bots', 'workflows', 'user_workflows', 'global_variables')`,
	).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 5, count, "expected all five domain tables")
}

func TestNewTestDB_TablesQueryable(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{"users", "bots", "workflows", "user_workflows", "global_variables"}
	for _, table := range tables {
		var count int
		err := db.Connection().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		require.NoError(t, err, "table %s should be queryable", table)
		require.Zero(t, count, "table %s should start empty", table)
	}
}

func TestNewTestDB_Isolated(t *testing.T) {
	first := NewTestDB(t)
	second := NewTestDB(t)

	_, err := first.Connection().Exec(
		`INSERT INTO users (username, nickname, created_at, updated_at) VALUES ('alice', '', 0, 0)`,
	)
	require.NoError(t, err)

	var count int
	err = second.Connection().QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	require.NoError(t, err)
	require.Zero(t, count, "databases must not share state")
}
