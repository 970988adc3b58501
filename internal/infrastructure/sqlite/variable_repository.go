package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"botweave/internal/domain"
)

const globalVariableColumns = `id, key, value, is_secret, updated_at`

// globalVariableRepository implements domain.GlobalVariableRepository
// backed by SQLite.
type globalVariableRepository struct {
	db *sql.DB
}

func newGlobalVariableRepository(db *sql.DB) *globalVariableRepository {
	return &globalVariableRepository{db: db}
}

var _ domain.GlobalVariableRepository = (*globalVariableRepository)(nil)

func scanGlobalVariable(scanner interface{ Scan(...any) error }) (*domain.GlobalVariable, error) {
	var (
		v         domain.GlobalVariable
		updatedAt int64
	)
	err := scanner.Scan(&v.ID, &v.Key, &v.Value, &v.IsSecret, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.UpdatedAt = time.Unix(updatedAt, 0)
	return &v, nil
}

// Upsert inserts or replaces the variable stored under v.Key and sets v.ID
// to the stored record's ID.
func (r *globalVariableRepository) Upsert(v *domain.GlobalVariable) error {
	v.UpdatedAt = time.Now()
	_, err := r.db.Exec(
		`INSERT INTO global_variables (key, value, is_secret, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   is_secret = excluded.is_secret,
		   updated_at = excluded.updated_at`,
		v.Key, v.Value, v.IsSecret, v.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert global variable: %w", err)
	}

	stored, err := r.FindByKey(v.Key)
	if err != nil {
		return err
	}
	v.ID = stored.ID
	return nil
}

// FindByKey retrieves a variable by its key.
func (r *globalVariableRepository) FindByKey(key string) (*domain.GlobalVariable, error) {
	row := r.db.QueryRow(
		`SELECT `+globalVariableColumns+` FROM global_variables WHERE key = ?`, key,
	)
	v, err := scanGlobalVariable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.GlobalVariableNotFoundError{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find global variable: %w", err)
	}
	return v, nil
}

// List retrieves all variables ordered by key ascending.
func (r *globalVariableRepository) List() ([]*domain.GlobalVariable, error) {
	rows, err := r.db.Query(
		`SELECT ` + globalVariableColumns + ` FROM global_variables ORDER BY key ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list global variables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var vars []*domain.GlobalVariable
	for rows.Next() {
		v, err := scanGlobalVariable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan global variable row: %w", err)
		}
		vars = append(vars, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating global variable rows: %w", err)
	}
	return vars, nil
}

// Delete permanently removes the variable stored under key.
func (r *globalVariableRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM global_variables WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete global variable: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.GlobalVariableNotFoundError{Key: key}
	}
	return nil
}
