package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations applies any pending schema migrations to conn.
func runMigrations(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migration source: %w", err)
	}

	drv := &migrationDriver{conn: conn}
	if err := drv.ensureVersionTable(); err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// migrationDriver adapts the shared *sql.DB to the migrate database.Driver
// interface. The connection is owned by the caller, so Close is a no-op.
type migrationDriver struct {
	conn   *sql.DB
	locked atomic.Bool
}

var _ database.Driver = (*migrationDriver)(nil)

func (d *migrationDriver) Open(string) (database.Driver, error) {
	return nil, errors.New("sqlite: migration driver does not open by URL")
}

func (d *migrationDriver) Close() error { return nil }

func (d *migrationDriver) Lock() error {
	if !d.locked.CompareAndSwap(false, true) {
		return database.ErrLocked
	}
	return nil
}

func (d *migrationDriver) Unlock() error {
	if !d.locked.CompareAndSwap(true, false) {
		return database.ErrNotLocked
	}
	return nil
}

func (d *migrationDriver) Run(migration io.Reader) error {
	stmts, err := io.ReadAll(migration)
	if err != nil {
		return fmt.Errorf("failed to read migration: %w", err)
	}
	if _, err := d.conn.Exec(string(stmts)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

func (d *migrationDriver) SetVersion(version int, dirty bool) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin version transaction: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM schema_migrations`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to clear schema version: %w", err)
	}
	if version >= 0 || (version == database.NilVersion && dirty) {
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`,
			version, dirty,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema version: %w", err)
	}
	return nil
}

func (d *migrationDriver) Version() (int, bool, error) {
	var (
		version int
		dirty   bool
	)
	err := d.conn.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return database.NilVersion, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

func (d *migrationDriver) Drop() error {
	rows, err := d.conn.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`,
	)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating tables: %w", err)
	}

	for _, table := range tables {
		if _, err := d.conn.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// ensureVersionTable creates the schema_migrations bookkeeping table. The
// migrate library expects the database driver to have done this before any
// version queries run.
func (d *migrationDriver) ensureVersionTable() error {
	_, err := d.conn.Exec(
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL, dirty INTEGER NOT NULL)`,
	)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}
