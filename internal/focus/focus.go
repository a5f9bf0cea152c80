// Package focus computes free time and protected focus windows on a user's
// timeline and enforces the per-day event cap.
package focus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// Store is the slice of the event store the calculator reads.
type Store interface {
	FindByUserAndWindow(ctx context.Context, userID string, start, end time.Time) ([]*schema.Event, error)
	CountEventsOnDay(ctx context.Context, userID string, dayStart, dayEnd time.Time) (int, error)
	GetFocusPreference(ctx context.Context, userID string) (*schema.FocusPreference, error)
	UpsertFocusPreference(ctx context.Context, p *schema.FocusPreference) error
}

// Config bounds the working day.
type Config struct {
	// DayStartHour and DayEndHour bound the working window (default 8-20)
	DayStartHour int
	DayEndHour   int
	// Location is the timezone days are computed in (default UTC)
	Location *time.Location
}

// DefaultConfig returns the 08:00-20:00 UTC working window.
func DefaultConfig() Config {
	return Config{DayStartHour: 8, DayEndHour: 20, Location: time.UTC}
}

// Calculator answers focus and free-time queries for one store.
type Calculator struct {
	store Store
	cfg   Config
}

// New creates a Calculator. Zero config fields take their defaults.
func New(s Store, cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.DayStartHour == 0 && cfg.DayEndHour == 0 {
		cfg.DayStartHour, cfg.DayEndHour = def.DayStartHour, def.DayEndHour
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Calculator{store: s, cfg: cfg}
}

// WithStore returns a calculator reading from s, typically a transaction.
func (c *Calculator) WithStore(s Store) *Calculator {
	return &Calculator{store: s, cfg: c.cfg}
}

// Location returns the timezone the calculator works in.
func (c *Calculator) Location() *time.Location {
	return c.cfg.Location
}

// Window returns the working window of day.
func (c *Calculator) Window(day time.Time) schema.Slot {
	d := day.In(c.cfg.Location)
	return schema.Slot{Start: atHour(d, c.cfg.DayStartHour), End: atHour(d, c.cfg.DayEndHour)}
}

// Preferences returns the user's focus preference, or the defaults when the
// user never saved one. Defaults are not persisted.
func (c *Calculator) Preferences(ctx context.Context, userID string) (*schema.FocusPreference, error) {
	p, err := c.store.GetFocusPreference(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return schema.DefaultFocusPreference(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePreferences validates and stores a user's preference.
func (c *Calculator) UpdatePreferences(ctx context.Context, p *schema.FocusPreference) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid focus preference: %w", err)
	}
	return c.store.UpsertFocusPreference(ctx, p)
}

// FreeGaps returns the free sub-intervals of day's working window.
func (c *Calculator) FreeGaps(ctx context.Context, userID string, day time.Time) ([]schema.Slot, error) {
	window := c.Window(day)
	events, err := c.store.FindByUserAndWindow(ctx, userID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	busy := make([]schema.Slot, 0, len(events))
	for _, e := range events {
		busy = append(busy, e.Slot())
	}
	return FreeGaps(window, busy), nil
}

// OptimizedFocusSlots returns the free gaps inside the user's preferred band
// that are at least their minimum focus duration long.
func (c *Calculator) OptimizedFocusSlots(ctx context.Context, userID string, day time.Time) ([]schema.Slot, error) {
	pref, err := c.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.focusSlots(ctx, pref, day)
}

func (c *Calculator) focusSlots(ctx context.Context, pref *schema.FocusPreference, day time.Time) ([]schema.Slot, error) {
	gaps, err := c.FreeGaps(ctx, pref.UserID, day)
	if err != nil {
		return nil, err
	}
	return FocusSlots(gaps, pref, day.In(c.cfg.Location)), nil
}

// IsBlockedByFocus reports whether [start, end) overlaps one of the user's
// focus slots on start's day. Always false when focus mode is disabled.
func (c *Calculator) IsBlockedByFocus(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	pref, err := c.Preferences(ctx, userID)
	if err != nil {
		return false, err
	}
	if !pref.FocusModeEnabled {
		return false, nil
	}

	slots, err := c.focusSlots(ctx, pref, start)
	if err != nil {
		return false, err
	}
	candidate := schema.Slot{Start: start, End: end}
	for _, s := range slots {
		if candidate.Overlaps(s) {
			return true, nil
		}
	}
	return false, nil
}

// ValidateDailyLoad returns an *OverloadedError when the user's non-cancelled
// events on when's day already meet their per-day maximum.
func (c *Calculator) ValidateDailyLoad(ctx context.Context, userID string, when time.Time) error {
	pref, err := c.Preferences(ctx, userID)
	if err != nil {
		return err
	}
	dayStart, dayEnd := DayBounds(when, c.cfg.Location)
	count, err := c.store.CountEventsOnDay(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}
	if count >= pref.MaxEventsPerDay {
		return &OverloadedError{UserID: userID, Day: dayStart, Count: count, Max: pref.MaxEventsPerDay}
	}
	return nil
}
