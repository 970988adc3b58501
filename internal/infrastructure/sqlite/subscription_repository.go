package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"botweave/internal/domain"
)

const subscriptionColumns = `id, user_id, workflow_id, enabled, created_at`

// subscriptionRepository implements domain.SubscriptionRepository backed
// by SQLite.
type subscriptionRepository struct {
	db *sql.DB
}

func newSubscriptionRepository(db *sql.DB) *subscriptionRepository {
	return &subscriptionRepository{db: db}
}

var _ domain.SubscriptionRepository = (*subscriptionRepository)(nil)

func scanSubscription(scanner interface{ Scan(...any) error }) (*domain.Subscription, error) {
	var (
		sub       domain.Subscription
		createdAt int64
	)
	err := scanner.Scan(&sub.ID, &sub.UserID, &sub.WorkflowID, &sub.Enabled, &createdAt)
	if err != nil {
		return nil, err
	}
	sub.CreatedAt = time.Unix(createdAt, 0)
	return &sub, nil
}

// Subscribe creates (or re-enables) the subscription of user to workflow
// and returns the stored record. The unique (user_id, workflow_id) pair
// makes repeated subscribes idempotent.
func (r *subscriptionRepository) Subscribe(userID, workflowID int64) (*domain.Subscription, error) {
	_, err := r.db.Exec(
		`INSERT INTO user_workflows (user_id, workflow_id, enabled, created_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(user_id, workflow_id) DO UPDATE SET enabled = 1`,
		userID, workflowID, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	return r.find(userID, workflowID)
}

// Unsubscribe removes the subscription of user to workflow.
func (r *subscriptionRepository) Unsubscribe(userID, workflowID int64) error {
	result, err := r.db.Exec(
		`DELETE FROM user_workflows WHERE user_id = ? AND workflow_id = ?`,
		userID, workflowID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.SubscriptionNotFoundError{UserID: userID, WorkflowID: workflowID}
	}
	return nil
}

// IsSubscribed reports whether an enabled subscription links the user to
// the workflow.
func (r *subscriptionRepository) IsSubscribed(userID, workflowID int64) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM user_workflows WHERE user_id = ? AND workflow_id = ? AND enabled = 1`,
		userID, workflowID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return count > 0, nil
}

// ListByWorkflow retrieves the enabled subscriptions of a workflow.
func (r *subscriptionRepository) ListByWorkflow(workflowID int64) ([]*domain.Subscription, error) {
	return r.list(
		`SELECT `+subscriptionColumns+` FROM user_workflows
		 WHERE workflow_id = ? AND enabled = 1 ORDER BY user_id ASC`,
		workflowID,
	)
}

// ListByUser retrieves the enabled subscriptions of a user.
func (r *subscriptionRepository) ListByUser(userID int64) ([]*domain.Subscription, error) {
	return r.list(
		`SELECT `+subscriptionColumns+` FROM user_workflows
		 WHERE user_id = ? AND enabled = 1 ORDER BY workflow_id ASC`,
		userID,
	)
}

func (r *subscriptionRepository) find(userID, workflowID int64) (*domain.Subscription, error) {
	row := r.db.QueryRow(
		`SELECT `+subscriptionColumns+` FROM user_workflows WHERE user_id = ? AND workflow_id = ?`,
		userID, workflowID,
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.SubscriptionNotFoundError{UserID: userID, WorkflowID: workflowID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

func (r *subscriptionRepository) list(query string, arg int64) ([]*domain.Subscription, error) {
	rows, err := r.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}
