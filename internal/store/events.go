package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/planner/internal/schema"
)

const eventColumns = `id, user_id, title, start_at, end_at, category, status, source,
	sync_status, remote_id, last_synced_at, location, task_id, created_at, updated_at`

// UpsertEvent inserts or updates an event.
func (q *Queries) UpsertEvent(ctx context.Context, e *schema.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	var location sql.NullString
	if e.Location != nil {
		data, err := json.Marshal(e.Location)
		if err != nil {
			return fmt.Errorf("failed to marshal location: %w", err)
		}
		location = sql.NullString{String: string(data), Valid: true}
	}

	query := `
	INSERT INTO events (` + eventColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		start_at = excluded.start_at,
		end_at = excluded.end_at,
		category = excluded.category,
		status = excluded.status,
		source = excluded.source,
		sync_status = excluded.sync_status,
		remote_id = excluded.remote_id,
		last_synced_at = excluded.last_synced_at,
		location = excluded.location,
		task_id = excluded.task_id,
		updated_at = excluded.updated_at
	`

	_, err := q.q.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		e.Title,
		timeToString(e.Start),
		timeToString(e.End),
		nullString(e.Category),
		string(e.Status),
		string(e.Source),
		string(e.SyncStatus),
		nullString(e.RemoteID),
		timeToNullString(e.LastSyncedAt),
		location,
		nullString(e.TaskID),
		timeToString(e.CreatedAt),
		timeToString(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", e.ID, err)
	}
	return nil
}

// GetEvent retrieves a single event by ID.
func (q *Queries) GetEvent(ctx context.Context, id string) (*schema.Event, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("event", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return e, nil
}

// GetEventByRemoteID retrieves a user's event by its remote provider identifier.
func (q *Queries) GetEventByRemoteID(ctx context.Context, userID, remoteID string) (*schema.Event, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE user_id = ? AND remote_id = ?`, userID, remoteID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("remote event", remoteID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get remote event %s: %w", remoteID, err)
	}
	return e, nil
}

// DeleteEvent removes an event. Travel segments touching it cascade away and
// a task bound to it becomes unplaced. Idempotent.
func (q *Queries) DeleteEvent(ctx context.Context, id string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	return nil
}

// SetSyncStatus updates only the sync status of an event.
func (q *Queries) SetSyncStatus(ctx context.Context, id string, status schema.SyncStatus) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE events SET sync_status = ?, updated_at = ? WHERE id = ?`,
		string(status), timeToString(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set sync status on %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("event", id)
	}
	return nil
}

// SetRemoteID records the remote identifier of an event without touching
// its other columns.
func (q *Queries) SetRemoteID(ctx context.Context, id, remoteID string) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE events SET remote_id = ?, updated_at = ? WHERE id = ?`,
		remoteID, timeToString(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set remote id on %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("event", id)
	}
	return nil
}

// EventFilter configures ListEvents.
type EventFilter struct {
	// UserID restricts to one user's events (required)
	UserID string
	// From/To keep events overlapping [From, To) (zero = unbounded)
	From time.Time
	To   time.Time
	// ActiveOnly drops cancelled and pending-deletion events
	ActiveOnly bool
	// ExcludeCancelled drops cancelled events but keeps pending deletions
	ExcludeCancelled bool
	// Source filters by provenance (empty = both)
	Source schema.Provenance
	// NeedsPush keeps events the reconciliation push phase must visit
	NeedsPush bool
}

// ListEvents retrieves events matching the filter, ordered by start then id.
func (q *Queries) ListEvents(ctx context.Context, filter EventFilter) ([]*schema.Event, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	conditions := []string{"user_id = ?"}
	args := []any{filter.UserID}

	if !filter.From.IsZero() {
		conditions = append(conditions, "end_at > ?")
		args = append(args, timeToString(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "start_at < ?")
		args = append(args, timeToString(filter.To))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "status NOT IN (?, ?)")
		args = append(args, string(schema.StatusCancelled), string(schema.StatusPendingDeletion))
	} else if filter.ExcludeCancelled {
		conditions = append(conditions, "status != ?")
		args = append(args, string(schema.StatusCancelled))
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, string(filter.Source))
	}
	if filter.NeedsPush {
		conditions = append(conditions,
			"(status = ? OR (source = ? AND remote_id IS NULL AND status != ?) OR (sync_status = ? AND status != ?))")
		args = append(args,
			string(schema.StatusPendingDeletion),
			string(schema.SourceLocal), string(schema.StatusCancelled),
			string(schema.SyncUnsynced), string(schema.StatusCancelled))
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY start_at ASC, id ASC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FindByUserAndWindow returns the user's active events overlapping [start, end).
func (q *Queries) FindByUserAndWindow(ctx context.Context, userID string, start, end time.Time) ([]*schema.Event, error) {
	return q.ListEvents(ctx, EventFilter{UserID: userID, From: start, To: end, ActiveOnly: true})
}

// CountEventsOnDay counts the user's non-cancelled events starting in [dayStart, dayEnd).
func (q *Queries) CountEventsOnDay(ctx context.Context, userID string, dayStart, dayEnd time.Time) (int, error) {
	var count int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events
		WHERE user_id = ? AND status != ? AND start_at >= ? AND start_at < ?`,
		userID, string(schema.StatusCancelled), timeToString(dayStart), timeToString(dayEnd),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// NextActiveEvent returns the user's first active event starting at or after
// t, skipping excludeID. Returns ErrNotFound when there is none.
func (q *Queries) NextActiveEvent(ctx context.Context, userID string, t time.Time, excludeID string) (*schema.Event, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE user_id = ? AND id != ? AND start_at >= ? AND status NOT IN (?, ?)
		ORDER BY start_at ASC, id ASC
		LIMIT 1`,
		userID, excludeID, timeToString(t),
		string(schema.StatusCancelled), string(schema.StatusPendingDeletion))
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("next event after", timeToString(t))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next event: %w", err)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*schema.Event, error) {
	var e schema.Event
	var start, end, createdAt, updatedAt string
	var category, remoteID, lastSynced, location, taskID sql.NullString
	var status, source, syncStatus string

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Title,
		&start,
		&end,
		&category,
		&status,
		&source,
		&syncStatus,
		&remoteID,
		&lastSynced,
		&location,
		&taskID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Start = parseTime(start)
	e.End = parseTime(end)
	e.Category = category.String
	e.Status = schema.EventStatus(status)
	e.Source = schema.Provenance(source)
	e.SyncStatus = schema.SyncStatus(syncStatus)
	e.RemoteID = remoteID.String
	e.LastSyncedAt = nullStringToTime(lastSynced)
	e.TaskID = taskID.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)

	if location.Valid && location.String != "" && location.String != "null" {
		var loc schema.Location
		if err := json.Unmarshal([]byte(location.String), &loc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal location: %w", err)
		}
		e.Location = &loc
	}

	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*schema.Event, error) {
	var events []*schema.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
