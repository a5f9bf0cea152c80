package schema

import "time"

// Slot is a half-open [Start, End) interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Minutes returns the slot length in whole minutes.
func (s Slot) Minutes() int {
	return int(s.Duration() / time.Minute)
}

// Overlaps reports whether two half-open intervals intersect.
// Touching intervals (s.End == o.Start) do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Contains reports whether o lies entirely within s.
func (s Slot) Contains(o Slot) bool {
	return !o.Start.Before(s.Start) && !o.End.After(s.End)
}

// Empty reports whether the slot has no positive length.
func (s Slot) Empty() bool {
	return !s.Start.Before(s.End)
}
