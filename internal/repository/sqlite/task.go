package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

var _ repository.TaskRepository = (*DB)(nil)

// sortColumns maps API sort fields to SQL columns. Only these names ever
// reach the ORDER BY clause.
var sortColumns = map[repository.SortField]string{
	repository.SortByCreatedAt:   "created_at",
	repository.SortByUpdatedAt:   "updated_at",
	repository.SortByCompleted:   "completed",
	repository.SortByDescription: "description",
}

const taskColumns = `id, description, completed, owner_id, created_at, updated_at`

// CreateTask inserts a task. task.Owner must already be set by the caller.
func (db *DB) CreateTask(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tasks (id, description, completed, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Description,
		task.Completed,
		task.Owner,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating task: %w", err)
	}
	return nil
}

// GetTask returns the task only if it belongs to ownerID. A task owned by
// someone else is reported exactly like a missing one.
func (db *DB) GetTask(ctx context.Context, id, ownerID string) (*model.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: getting task %s: %w", id, err)
	}
	return task, nil
}

// ListTasks returns the owner's tasks matching filter.
//
// SQLite treats a negative LIMIT as "no limit", which lines up with
// repository.Unbounded.
func (db *DB) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]model.Task, error) {
	if filter.OwnerID == "" {
		return nil, fmt.Errorf("sqlite: listing tasks: owner is required")
	}

	var (
		q    strings.Builder
		args = []any{filter.OwnerID}
	)
	q.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`)

	if filter.Completed != nil {
		q.WriteString(` AND completed = ?`)
		args = append(args, *filter.Completed)
	}

	q.WriteString(` ORDER BY `)
	if filter.SortBy != "" {
		col, ok := sortColumns[filter.SortBy]
		if !ok {
			return nil, fmt.Errorf("sqlite: listing tasks: unsupported sort field %q", filter.SortBy)
		}
		dir := "ASC"
		if filter.SortDesc {
			dir = "DESC"
		}
		q.WriteString(col + " " + dir + ", ")
	}
	q.WriteString(`created_at ASC, id ASC LIMIT ? OFFSET ?`)

	limit := filter.Limit
	if limit <= 0 {
		limit = repository.Unbounded
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}
	args = append(args, limit, skip)

	rows, err := db.conn.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask writes description and completed. The WHERE clause includes
// the owner, so the owner column can never be rewritten through here.
func (db *DB) UpdateTask(ctx context.Context, task *model.Task) error {
	task.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE tasks
		 SET description = ?, completed = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		task.Description,
		task.Completed,
		task.UpdatedAt,
		task.ID,
		task.Owner,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating task %s: %w", task.ID, err)
	}
	return requireAffected(result, "task", task.ID)
}

// DeleteTask removes the owner's task and returns what was deleted.
func (db *DB) DeleteTask(ctx context.Context, id, ownerID string) (*model.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND owner_id = ? RETURNING `+taskColumns,
		id, ownerID,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: deleting task %s: %w", id, err)
	}
	return task, nil
}

func (db *DB) DeleteTasksByOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting tasks of %s: %w", ownerID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	if err := s.Scan(
		&t.ID,
		&t.Description,
		&t.Completed,
		&t.Owner,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
