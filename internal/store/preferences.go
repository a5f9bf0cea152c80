package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mschirtzinger/planner/internal/schema"
)

// GetFocusPreference returns the stored preference or ErrNotFound.
func (q *Queries) GetFocusPreference(ctx context.Context, userID string) (*schema.FocusPreference, error) {
	var p schema.FocusPreference
	var band string
	var enabled int
	err := q.q.QueryRowContext(ctx, `
		SELECT user_id, max_events_per_day, min_focus_minutes, preferred_band, focus_mode_enabled
		FROM focus_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.MaxEventsPerDay, &p.MinFocusMinutes, &band, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("focus preference", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get focus preference for %s: %w", userID, err)
	}
	p.PreferredBand = schema.FocusBand(band)
	p.FocusModeEnabled = enabled != 0
	return &p, nil
}

// UpsertFocusPreference stores a user's focus preference.
func (q *Queries) UpsertFocusPreference(ctx context.Context, p *schema.FocusPreference) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid focus preference: %w", err)
	}
	_, err := q.q.ExecContext(ctx, `
	INSERT INTO focus_preferences (user_id, max_events_per_day, min_focus_minutes, preferred_band, focus_mode_enabled)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		max_events_per_day = excluded.max_events_per_day,
		min_focus_minutes = excluded.min_focus_minutes,
		preferred_band = excluded.preferred_band,
		focus_mode_enabled = excluded.focus_mode_enabled
	`, p.UserID, p.MaxEventsPerDay, p.MinFocusMinutes, string(p.PreferredBand), boolToInt(p.FocusModeEnabled))
	if err != nil {
		return fmt.Errorf("failed to upsert focus preference for %s: %w", p.UserID, err)
	}
	return nil
}
