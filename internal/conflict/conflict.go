// Package conflict finds overlapping events on a user's timeline.
//
// Two events conflict when their half-open intervals intersect:
// a.Start < b.End && b.Start < a.End. Touching intervals do not conflict.
// Provenance does not matter; LOCAL/LOCAL and REMOTE/REMOTE overlaps are
// reported the same way as mixed pairs.
package conflict

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mschirtzinger/planner/internal/schema"
)

// Side is one event of a conflicting pair, as shown to the user.
type Side struct {
	EventID string            `json:"event_id"`
	Title   string            `json:"title"`
	Start   time.Time         `json:"start"`
	End     time.Time         `json:"end"`
	Source  schema.Provenance `json:"source"`
}

// Pair is an unordered pair of overlapping events. A is the event that
// starts first (ties broken by ID).
type Pair struct {
	A Side `json:"a"`
	B Side `json:"b"`
}

// Report is the result of a detection run.
type Report struct {
	UserID    string `json:"user_id"`
	Conflicts []Pair `json:"conflicts"`
}

// HasConflicts reports whether any pair was found.
func (r *Report) HasConflicts() bool {
	return r != nil && len(r.Conflicts) > 0
}

// String renders the report as one line per pair.
func (r *Report) String() string {
	if !r.HasConflicts() {
		return "no conflicts"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d conflict(s)", len(r.Conflicts))
	for _, p := range r.Conflicts {
		fmt.Fprintf(&b, "\n  %q (%s, %s-%s) overlaps %q (%s, %s-%s)",
			p.A.Title, p.A.Source, p.A.Start.Format("Jan 2 15:04"), p.A.End.Format("15:04"),
			p.B.Title, p.B.Source, p.B.Start.Format("Jan 2 15:04"), p.B.End.Format("15:04"))
	}
	return b.String()
}

// Detect returns every overlapping pair among the active events. Cancelled
// and pending-deletion events are ignored, as is a duplicate of the same ID.
// Detect does not modify its input.
func Detect(userID string, events []*schema.Event) *Report {
	active := make([]*schema.Event, 0, len(events))
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if e == nil || !e.Active() || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		active = append(active, e)
	}

	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].Start.Equal(active[j].Start) {
			return active[i].Start.Before(active[j].Start)
		}
		return active[i].ID < active[j].ID
	})

	report := &Report{UserID: userID, Conflicts: []Pair{}}
	for i := 0; i < len(active); i++ {
		a := active[i]
		for j := i + 1; j < len(active); j++ {
			b := active[j]
			// Sorted by start: nothing further can overlap a.
			if !b.Start.Before(a.End) {
				break
			}
			if a.Slot().Overlaps(b.Slot()) {
				report.Conflicts = append(report.Conflicts, Pair{A: side(a), B: side(b)})
			}
		}
	}
	return report
}

func side(e *schema.Event) Side {
	return Side{
		EventID: e.ID,
		Title:   e.Title,
		Start:   e.Start,
		End:     e.End,
		Source:  e.Source,
	}
}
