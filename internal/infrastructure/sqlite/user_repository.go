package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"botweave/internal/domain"
)

const userColumns = `id, username, nickname, created_at, updated_at`

// userRepository implements domain.UserRepository backed by SQLite.
type userRepository struct {
	db *sql.DB
}

func newUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db: db}
}

var _ domain.UserRepository = (*userRepository)(nil)

func scanUser(scanner interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		user      domain.User
		createdAt int64
		updatedAt int64
	)
	err := scanner.Scan(&user.ID, &user.Username, &user.Nickname, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// Save persists a user. New users (ID == 0) are inserted and have their ID
// set; existing users are updated in place.
func (r *userRepository) Save(user *domain.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if user.ID == 0 {
		result, err := r.db.Exec(
			`INSERT INTO users (username, nickname, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			user.Username, user.Nickname, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get inserted user id: %w", err)
		}
		user.ID = id
		return nil
	}

	result, err := r.db.Exec(
		`UPDATE users SET username = ?, nickname = ?, updated_at = ? WHERE id = ?`,
		user.Username, user.Nickname, user.UpdatedAt.Unix(), user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.UserNotFoundError{ID: user.ID}
	}
	return nil
}

// FindByID retrieves a user by its database ID.
func (r *userRepository) FindByID(id int64) (*domain.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.UserNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return user, nil
}

// FindByUsername retrieves a user by username.
func (r *userRepository) FindByUsername(username string) (*domain.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.UserNotFoundError{Username: username}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// List retrieves all users ordered by ID ascending.
func (r *userRepository) List() ([]*domain.User, error) {
	rows, err := r.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

// Delete permanently removes a user.
func (r *userRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.UserNotFoundError{ID: id}
	}
	return nil
}
