package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"botweave/internal/domain"
)

// workflowColumns is the canonical column list for workflow queries. Keep
// in sync with scanWorkflow.
const workflowColumns = `id, name, enabled, priority, config, creator_id, created_at, updated_at`

// workflowRepository implements domain.WorkflowRepository backed by SQLite.
type workflowRepository struct {
	db *sql.DB
}

func newWorkflowRepository(db *sql.DB) *workflowRepository {
	return &workflowRepository{db: db}
}

var _ domain.WorkflowRepository = (*workflowRepository)(nil)

func scanWorkflow(scanner interface{ Scan(...any) error }) (*domain.Workflow, error) {
	var (
		wf        domain.Workflow
		createdAt int64
		updatedAt int64
	)
	err := scanner.Scan(
		&wf.ID, &wf.Name, &wf.Enabled, &wf.Priority, &wf.Config,
		&wf.CreatorID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	wf.CreatedAt = time.Unix(createdAt, 0)
	wf.UpdatedAt = time.Unix(updatedAt, 0)
	return &wf, nil
}

// Save persists a workflow. New workflows (ID == 0) are inserted and have
// their ID set; existing workflows are updated in place.
func (r *workflowRepository) Save(workflow *domain.Workflow) error {
	now := time.Now()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}
	workflow.UpdatedAt = now
	if workflow.Config == "" {
		workflow.Config = "{}"
	}

	if workflow.ID == 0 {
		result, err := r.db.Exec(
			`INSERT INTO workflows (name, enabled, priority, config, creator_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			workflow.Name, workflow.Enabled, workflow.Priority, workflow.Config,
			workflow.CreatorID, workflow.CreatedAt.Unix(), workflow.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert workflow: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get inserted workflow id: %w", err)
		}
		workflow.ID = id
		return nil
	}

	result, err := r.db.Exec(
		`UPDATE workflows SET name = ?, enabled = ?, priority = ?, config = ?, creator_id = ?, updated_at = ?
		 WHERE id = ?`,
		workflow.Name, workflow.Enabled, workflow.Priority, workflow.Config,
		workflow.CreatorID, workflow.UpdatedAt.Unix(), workflow.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.WorkflowNotFoundError{ID: workflow.ID}
	}
	return nil
}

// FindByID retrieves a workflow by its database ID.
func (r *workflowRepository) FindByID(id int64) (*domain.Workflow, error) {
	row := r.db.QueryRow(`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.WorkflowNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find workflow by id: %w", err)
	}
	return wf, nil
}

// List retrieves workflows matching the given filter criteria, ordered by
// priority ascending then ID ascending.
func (r *workflowRepository) List(filter domain.WorkflowFilter) ([]*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE 1 = 1`
	var args []any

	if filter.Enabled != nil {
		query += ` AND enabled = ?`
		args = append(args, *filter.Enabled)
	}

	query += ` ORDER BY priority ASC, id ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var workflows []*domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow rows: %w", err)
	}
	return workflows, nil
}

// Delete permanently removes a workflow. Subscriptions referencing it are
// removed by the foreign key cascade.
func (r *workflowRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &domain.WorkflowNotFoundError{ID: id}
	}
	return nil
}
