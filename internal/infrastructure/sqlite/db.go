// Package sqlite provides the SQLite-backed persistence layer. It owns the
// database connection, the embedded schema migrations, and the repository
// implementations for the domain interfaces.
package sqlite

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver" // database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embedded sqlite build

	"botweave/internal/domain"
	"botweave/internal/log"
)

// DB wraps a SQLite connection and provides access to the repositories
// backed by it.
type DB struct {
	conn *sql.DB

	bots          *botRepository
	workflows     *workflowRepository
	subscriptions *subscriptionRepository
	globals       *globalVariableRepository
	users         *userRepository
}

// NewDB opens (creating if necessary) the SQLite database at path and runs
// any pending migrations. The parent directory is created with 0700
// permissions. When an existing database file is present, a pre-migration
// backup is written alongside it with a .bak suffix.
//
// The connection uses WAL journaling, enforced foreign keys, and a 5s busy
// timeout, so multiple processes can share the file safely.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := backupFile(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("failed to back up database: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		path,
	)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Debug(log.CatDB, "database ready", "path", path)

	return &DB{
		conn:          conn,
		bots:          newBotRepository(conn),
		workflows:     newWorkflowRepository(conn),
		subscriptions: newSubscriptionRepository(conn),
		globals:       newGlobalVariableRepository(conn),
		users:         newUserRepository(conn),
	}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Connection returns the underlying *sql.DB for callers that need raw
// query access, such as test fixtures.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// Bots returns the bot repository.
func (db *DB) Bots() domain.BotRepository { return db.bots }

// Workflows returns the workflow repository.
func (db *DB) Workflows() domain.WorkflowRepository { return db.workflows }

// Subscriptions returns the subscription repository.
func (db *DB) Subscriptions() domain.SubscriptionRepository { return db.subscriptions }

// GlobalVariables returns the global variable repository.
func (db *DB) GlobalVariables() domain.GlobalVariableRepository { return db.globals }

// Users returns the user repository.
func (db *DB) Users() domain.UserRepository { return db.users }

// backupFile copies src to dst, truncating dst if it already exists.
func backupFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
