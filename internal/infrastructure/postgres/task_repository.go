package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/task"
)

const taskColumns = `id, company_id, title, description, priority, status, assigned_to, created_by, created_at,
	scheduled_for, started_at, completed_at, deadline, dependencies, result, error, metadata, updated_at`

// TaskRepository implements task.Repository.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal task metadata: %w", err)
	}
	deps := t.Dependencies
	if deps == nil {
		deps = []uuid.UUID{}
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, t.ID, t.CompanyID, t.Title, t.Description, t.Priority, t.Status, t.AssignedTo, t.CreatedBy, t.CreatedAt,
		t.ScheduledFor, t.StartedAt, t.CompletedAt, t.Deadline, deps, nullJSON(t.Result), t.Error, metadata, t.UpdatedAt)
	return err
}

func (r *TaskRepository) GetByID(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("task", taskID.String())
		}
		return nil, err
	}
	return t, nil
}

func (r *TaskRepository) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*task.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE assigned_to=$1 ORDER BY created_at ASC`, workerID)
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status=$1 ORDER BY created_at ASC`, status)
}

func (r *TaskRepository) ListPendingByCompany(ctx context.Context, companyID uuid.UUID) ([]*task.Task, error) {
	return r.list(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE company_id=$1 AND status='pending'
		ORDER BY CASE priority
			WHEN 'urgent' THEN 4
			WHEN 'high' THEN 3
			WHEN 'medium' THEN 2
			WHEN 'low' THEN 1
			ELSE 0 END DESC,
			created_at ASC
	`, companyID)
}

func (r *TaskRepository) CurrentForWorker(ctx context.Context, workerID uuid.UUID) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE assigned_to=$1 AND status IN ('pending','in_progress')
		ORDER BY (status='in_progress') DESC, created_at ASC
		LIMIT 1
	`, workerID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// UpdateStatus applies the change only when the stored status may move to
// the target, so concurrent writers cannot both win a transition.
func (r *TaskRepository) UpdateStatus(ctx context.Context, taskID uuid.UUID, change task.StatusChange) error {
	sources := task.SourcesFor(change.Status)
	from := make([]string, 0, len(sources))
	for _, s := range sources {
		from = append(from, string(s))
	}

	var query string
	var args []interface{}
	switch {
	case change.Status == task.StatusInProgress:
		query = `UPDATE tasks SET status=$1, started_at=$2, updated_at=$2 WHERE id=$3 AND status = ANY($4)`
		args = []interface{}{change.Status, change.At, taskID, from}
	case change.Status.Terminal():
		query = `UPDATE tasks SET status=$1, completed_at=$2, updated_at=$2, result=$3, error=$4 WHERE id=$5 AND status = ANY($6)`
		args = []interface{}{change.Status, change.At, nullJSON(change.Result), change.Error, taskID, from}
	default:
		query = `UPDATE tasks SET status=$1, updated_at=$2 WHERE id=$3 AND status = ANY($4)`
		args = []interface{}{change.Status, change.At, taskID, from}
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, taskID); err != nil {
			return err
		}
		return task.ErrInvalidTransition
	}
	return nil
}

func (r *TaskRepository) Reassign(ctx context.Context, taskID uuid.UUID, workerID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET assigned_to=$1, status='pending', started_at=NULL, completed_at=NULL, result=NULL, error=NULL, updated_at=$2
		WHERE id=$3
	`, workerID, at, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task", taskID.String())
	}
	return nil
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...interface{}) ([]*task.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	var result []byte
	var metadata []byte
	if err := row.Scan(&t.ID, &t.CompanyID, &t.Title, &t.Description, &t.Priority, &t.Status, &t.AssignedTo, &t.CreatedBy, &t.CreatedAt,
		&t.ScheduledFor, &t.StartedAt, &t.CompletedAt, &t.Deadline, &t.Dependencies, &result, &t.Error, &metadata, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		t.Result = json.RawMessage(result)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task metadata: %w", err)
		}
	}
	return &t, nil
}

// nullJSON maps an empty payload to SQL NULL.
func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
