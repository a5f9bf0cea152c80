package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/planner/internal/schema"
)

const taskColumns = `rowid, id, user_id, title, duration_minutes, priority, deadline,
	done, late, event_id, created_at, updated_at`

// UpsertTask inserts or updates a task. Seq is assigned by the database on
// first insert and never changes.
func (q *Queries) UpsertTask(ctx context.Context, t *schema.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (
		id, user_id, title, duration_minutes, priority, deadline,
		done, late, event_id, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		duration_minutes = excluded.duration_minutes,
		priority = excluded.priority,
		deadline = excluded.deadline,
		done = excluded.done,
		late = excluded.late,
		event_id = excluded.event_id,
		updated_at = excluded.updated_at
	`

	_, err := q.q.ExecContext(ctx, query,
		t.ID,
		t.UserID,
		t.Title,
		t.DurationMinutes,
		t.Priority,
		timeToNullString(t.Deadline),
		boolToInt(t.Done),
		boolToInt(t.Late),
		nullString(t.EventID),
		timeToString(t.CreatedAt),
		timeToString(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a single task by ID.
func (q *Queries) GetTask(ctx context.Context, id string) (*schema.Task, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// DeleteTask removes a task. Idempotent.
func (q *Queries) DeleteTask(ctx context.Context, id string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// TaskFilter configures ListTasks.
type TaskFilter struct {
	// UserID restricts to one user's tasks (required)
	UserID string
	// PendingOnly keeps tasks that are not done, not placed and not late
	PendingOnly bool
	// IncludeDone keeps completed tasks (ignored when PendingOnly is set)
	IncludeDone bool
}

// ListTasks retrieves tasks in insertion order.
func (q *Queries) ListTasks(ctx context.Context, filter TaskFilter) ([]*schema.Task, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	conditions := []string{"user_id = ?"}
	args := []any{filter.UserID}

	switch {
	case filter.PendingOnly:
		conditions = append(conditions, "done = 0", "late = 0", "event_id IS NULL")
	case !filter.IncludeDone:
		conditions = append(conditions, "done = 0")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY rowid ASC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*schema.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// FindPendingByUser returns the user's unplaced, not-late, not-done tasks.
func (q *Queries) FindPendingByUser(ctx context.Context, userID string) ([]*schema.Task, error) {
	return q.ListTasks(ctx, TaskFilter{UserID: userID, PendingOnly: true})
}

// UnbindTasksForEvent clears event_id on every task bound to eventID and
// returns how many were released.
func (q *Queries) UnbindTasksForEvent(ctx context.Context, eventID string) (int, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE tasks SET event_id = NULL WHERE event_id = ?`, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to unbind tasks from %s: %w", eventID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanTask(row rowScanner) (*schema.Task, error) {
	var t schema.Task
	var deadline, eventID sql.NullString
	var done, late int
	var createdAt, updatedAt string

	err := row.Scan(
		&t.Seq,
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.DurationMinutes,
		&t.Priority,
		&deadline,
		&done,
		&late,
		&eventID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Deadline = nullStringToTime(deadline)
	t.Done = done != 0
	t.Late = late != 0
	t.EventID = eventID.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}
