package schema

import (
	"fmt"
	"sort"
	"time"
)

// Task is a unit of work waiting to be bound to a timeline slot.
type Task struct {
	// ===== Identification =====
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// ===== Content =====
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Priority        int    `json:"priority"` // lower value = more urgent

	// ===== Scheduling =====
	Deadline *time.Time `json:"deadline,omitempty"`
	Done     bool       `json:"done"`
	Late     bool       `json:"late"`
	EventID  string     `json:"event_id,omitempty"` // set once placed

	// Seq is the store insertion order, used as the final ordering tie-break.
	Seq int64 `json:"-"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the task's fields.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.DurationMinutes <= 0 {
		return fmt.Errorf("duration must be positive (got %d)", t.DurationMinutes)
	}
	if t.Priority < 0 {
		return fmt.Errorf("priority must not be negative (got %d)", t.Priority)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.ID == "" {
		t.ID = NewID()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
}

// Touch sets UpdatedAt to the current time.
func (t *Task) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

// Duration returns the estimated duration.
func (t *Task) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// Placed reports whether the task is bound to an event.
func (t *Task) Placed() bool {
	return t.EventID != ""
}

// Pending reports whether the task is waiting for placement:
// not done, not placed and not late.
func (t *Task) Pending() bool {
	return !t.Done && !t.Placed() && !t.Late
}

// SortForPlacement orders tasks by deadline (none last), then priority,
// then insertion order. The sort is stable so equal Seq values keep
// their input order.
func SortForPlacement(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.Deadline != nil && b.Deadline == nil:
			return true
		case a.Deadline == nil && b.Deadline != nil:
			return false
		case a.Deadline != nil && b.Deadline != nil && !a.Deadline.Equal(*b.Deadline):
			return a.Deadline.Before(*b.Deadline)
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Seq < b.Seq
	})
}
