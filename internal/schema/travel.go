package schema

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TransportMode is how the user moves between two located events.
type TransportMode string

const (
	ModeWalking TransportMode = "walking"
	ModeCycling TransportMode = "cycling"
	ModeDriving TransportMode = "driving"
	ModeTransit TransportMode = "transit"
)

// ParseTransportMode parses a mode name, case-insensitively.
func ParseTransportMode(s string) (TransportMode, error) {
	switch m := TransportMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeWalking, ModeCycling, ModeDriving, ModeTransit:
		return m, nil
	}
	return "", fmt.Errorf("unknown transport mode %q", s)
}

// TravelSegment is the transit interval between two consecutive located events.
type TravelSegment struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	FromEventID     string        `json:"from_event_id"`
	ToEventID       string        `json:"to_event_id"`
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	DurationMinutes int           `json:"duration_minutes"`
	Mode            TransportMode `json:"mode"`
	DistanceKm      *float64      `json:"distance_km,omitempty"`
}

// NewTravelSegment builds a segment of the given length ending at end.
func NewTravelSegment(userID, fromID, toID string, end time.Time, minutes int, mode TransportMode) *TravelSegment {
	return &TravelSegment{
		ID:              NewID(),
		UserID:          userID,
		FromEventID:     fromID,
		ToEventID:       toID,
		Start:           end.Add(-time.Duration(minutes) * time.Minute),
		End:             end,
		DurationMinutes: minutes,
		Mode:            mode,
	}
}

// Validate checks the segment's fields.
func (s *TravelSegment) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if s.FromEventID == "" || s.ToEventID == "" {
		return fmt.Errorf("both endpoint events are required")
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("duration must be positive (got %d)", s.DurationMinutes)
	}
	if !s.Start.Before(s.End) {
		return fmt.Errorf("start must be before end")
	}
	return nil
}

// Location is a place an event happens at. Coordinates are optional.
type Location struct {
	Name      string   `json:"name,omitempty"`
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// Known reports whether the location identifies a place at all.
func (l *Location) Known() bool {
	return l.HasCoordinates() || (l != nil && strings.TrimSpace(l.Address) != "")
}

// SamePlace reports whether two known locations denote the same place.
// Coordinates win over addresses when both sides have them.
func (l *Location) SamePlace(o *Location) bool {
	if !l.Known() || !o.Known() {
		return false
	}
	if l.HasCoordinates() && o.HasCoordinates() {
		const eps = 1e-6
		return math.Abs(*l.Latitude-*o.Latitude) < eps && math.Abs(*l.Longitude-*o.Longitude) < eps
	}
	return strings.EqualFold(normalizeAddress(l.Address), normalizeAddress(o.Address))
}

// Distinct reports whether both locations are known and differ.
func Distinct(a, b *Location) bool {
	return a.Known() && b.Known() && !a.SamePlace(b)
}

func normalizeAddress(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
