package schema

import (
	"fmt"
	"strings"
)

// FocusBand is the preferred part of the day for deep work.
type FocusBand string

const (
	BandMorning   FocusBand = "morning"
	BandAfternoon FocusBand = "afternoon"
	BandEvening   FocusBand = "evening"
)

// Hours returns the band's [start, end) hour range.
func (b FocusBand) Hours() (start, end int) {
	switch b {
	case BandAfternoon:
		return 14, 17
	case BandEvening:
		return 18, 21
	default:
		return 9, 12
	}
}

// ParseFocusBand parses a band name, case-insensitively.
func ParseFocusBand(s string) (FocusBand, error) {
	switch b := FocusBand(strings.ToLower(strings.TrimSpace(s))); b {
	case BandMorning, BandAfternoon, BandEvening:
		return b, nil
	}
	return "", fmt.Errorf("unknown focus band %q (want morning, afternoon or evening)", s)
}

// Default focus policy values.
const (
	DefaultMaxEventsPerDay = 5
	DefaultMinFocusMinutes = 60
)

// FocusPreference is a user's scheduling policy.
type FocusPreference struct {
	UserID           string    `json:"user_id"`
	MaxEventsPerDay  int       `json:"max_events_per_day"`
	MinFocusMinutes  int       `json:"min_focus_minutes"`
	PreferredBand    FocusBand `json:"preferred_band"`
	FocusModeEnabled bool      `json:"focus_mode_enabled"`
}

// DefaultFocusPreference returns the policy used before a user saves their own.
func DefaultFocusPreference(userID string) *FocusPreference {
	return &FocusPreference{
		UserID:           userID,
		MaxEventsPerDay:  DefaultMaxEventsPerDay,
		MinFocusMinutes:  DefaultMinFocusMinutes,
		PreferredBand:    BandMorning,
		FocusModeEnabled: true,
	}
}

// Validate checks the preference values.
func (p *FocusPreference) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if p.MaxEventsPerDay <= 0 {
		return fmt.Errorf("max events per day must be positive (got %d)", p.MaxEventsPerDay)
	}
	if p.MinFocusMinutes <= 0 {
		return fmt.Errorf("min focus duration must be positive (got %d)", p.MinFocusMinutes)
	}
	if _, err := ParseFocusBand(string(p.PreferredBand)); err != nil {
		return err
	}
	return nil
}
