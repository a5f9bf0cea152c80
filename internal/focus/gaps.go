package focus

import (
	"sort"
	"time"

	"github.com/mschirtzinger/planner/internal/schema"
)

// FreeGaps returns the maximal free sub-intervals of window given the busy
// intervals, in chronological order. Busy intervals may overlap each other
// and may extend past the window; the input slice is not modified.
func FreeGaps(window schema.Slot, busy []schema.Slot) []schema.Slot {
	sorted := make([]schema.Slot, len(busy))
	copy(sorted, busy)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	gaps := []schema.Slot{}
	cursor := window.Start
	for _, b := range sorted {
		if !b.End.After(window.Start) {
			continue
		}
		if !b.Start.Before(window.End) {
			break
		}
		if b.Start.After(cursor) {
			gaps = append(gaps, schema.Slot{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		gaps = append(gaps, schema.Slot{Start: cursor, End: window.End})
	}
	return gaps
}

// FocusSlots intersects gaps with the preference's band on day and drops
// intervals shorter than the minimum focus duration.
func FocusSlots(gaps []schema.Slot, pref *schema.FocusPreference, day time.Time) []schema.Slot {
	startHour, endHour := pref.PreferredBand.Hours()
	band := schema.Slot{Start: atHour(day, startHour), End: atHour(day, endHour)}
	minimum := time.Duration(pref.MinFocusMinutes) * time.Minute

	slots := []schema.Slot{}
	for _, g := range gaps {
		s := schema.Slot{Start: latest(g.Start, band.Start), End: earliest(g.End, band.End)}
		if s.Empty() {
			continue
		}
		if s.Duration() >= minimum {
			slots = append(slots, s)
		}
	}
	return slots
}

// DayBounds returns local midnight of t's day and the following midnight.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func atHour(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
