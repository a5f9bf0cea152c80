package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mschirtzinger/planner/internal/schema"
)

// UpsertTravelSegment stores the segment between two events, replacing any
// previous segment for the same pair.
func (q *Queries) UpsertTravelSegment(ctx context.Context, s *schema.TravelSegment) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid travel segment: %w", err)
	}

	var distance sql.NullFloat64
	if s.DistanceKm != nil {
		distance = sql.NullFloat64{Float64: *s.DistanceKm, Valid: true}
	}

	_, err := q.q.ExecContext(ctx, `
	INSERT INTO travel_segments (
		id, user_id, from_event_id, to_event_id, start_at, end_at,
		duration_minutes, mode, distance_km
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(from_event_id, to_event_id) DO UPDATE SET
		start_at = excluded.start_at,
		end_at = excluded.end_at,
		duration_minutes = excluded.duration_minutes,
		mode = excluded.mode,
		distance_km = excluded.distance_km
	`,
		s.ID, s.UserID, s.FromEventID, s.ToEventID,
		timeToString(s.Start), timeToString(s.End),
		s.DurationMinutes, string(s.Mode), distance,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert travel segment %s->%s: %w", s.FromEventID, s.ToEventID, err)
	}
	return nil
}

// ListTravelSegments returns the user's segments overlapping [from, to),
// ordered by start. Zero bounds are unbounded.
func (q *Queries) ListTravelSegments(ctx context.Context, userID string, from, to time.Time) ([]*schema.TravelSegment, error) {
	query := `
	SELECT id, user_id, from_event_id, to_event_id, start_at, end_at,
	       duration_minutes, mode, distance_km
	FROM travel_segments WHERE user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND end_at > ?`
		args = append(args, timeToString(from))
	}
	if !to.IsZero() {
		query += ` AND start_at < ?`
		args = append(args, timeToString(to))
	}
	query += ` ORDER BY start_at ASC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list travel segments: %w", err)
	}
	defer rows.Close()

	var segments []*schema.TravelSegment
	for rows.Next() {
		var s schema.TravelSegment
		var start, end, mode string
		var distance sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.UserID, &s.FromEventID, &s.ToEventID,
			&start, &end, &s.DurationMinutes, &mode, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan travel segment: %w", err)
		}
		s.Start = parseTime(start)
		s.End = parseTime(end)
		s.Mode = schema.TransportMode(mode)
		if distance.Valid {
			d := distance.Float64
			s.DistanceKm = &d
		}
		segments = append(segments, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating travel segments: %w", err)
	}
	return segments, nil
}

// DeleteTravelForEvent drops every segment touching eventID. Used when an
// endpoint is rescheduled; deletion of the event itself cascades.
func (q *Queries) DeleteTravelForEvent(ctx context.Context, eventID string) error {
	_, err := q.q.ExecContext(ctx,
		`DELETE FROM travel_segments WHERE from_event_id = ? OR to_event_id = ?`, eventID, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete travel segments for %s: %w", eventID, err)
	}
	return nil
}
