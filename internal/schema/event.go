package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusPlanned         EventStatus = "planned"
	StatusConfirmed       EventStatus = "confirmed"
	StatusPendingDeletion EventStatus = "pending_deletion"
	StatusCancelled       EventStatus = "cancelled"
	StatusDone            EventStatus = "done"
)

// Provenance records where an event originated.
type Provenance string

const (
	SourceLocal  Provenance = "local"
	SourceRemote Provenance = "remote"
)

// SyncStatus tracks whether the local copy of an event matches the remote calendar.
type SyncStatus string

const (
	SyncUnsynced SyncStatus = "unsynced"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
)

// CategoryFocus marks a protected deep-work block.
const CategoryFocus = "focus"

// Event is a scheduled interval on a user's timeline.
type Event struct {
	// ===== Identification =====
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// ===== Content =====
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Category string    `json:"category,omitempty"`

	// ===== Lifecycle & Sync =====
	Status       EventStatus `json:"status"`
	Source       Provenance  `json:"source"`
	SyncStatus   SyncStatus  `json:"sync_status"`
	RemoteID     string      `json:"remote_id,omitempty"`
	LastSyncedAt *time.Time  `json:"last_synced_at,omitempty"`

	// ===== References =====
	Location *Location `json:"location,omitempty"`
	TaskID   string    `json:"task_id,omitempty"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the event's fields and the start < end invariant.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(e.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(e.Title))
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return fmt.Errorf("start and end are required")
	}
	if !e.Start.Before(e.End) {
		return fmt.Errorf("start must be before end (got %s >= %s)",
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	switch e.Status {
	case StatusPlanned, StatusConfirmed, StatusPendingDeletion, StatusCancelled, StatusDone:
	default:
		return fmt.Errorf("invalid status %q", e.Status)
	}
	switch e.Source {
	case SourceLocal, SourceRemote:
	default:
		return fmt.Errorf("invalid source %q", e.Source)
	}
	switch e.SyncStatus {
	case SyncUnsynced, SyncSynced, SyncConflict:
	default:
		return fmt.Errorf("invalid sync status %q", e.SyncStatus)
	}
	if e.Source == SourceRemote && e.SyncStatus == SyncSynced && e.RemoteID == "" {
		return fmt.Errorf("synced remote event requires remote_id")
	}
	return nil
}

// SetDefaults fills lifecycle fields for a freshly created local event.
func (e *Event) SetDefaults() {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.Status == "" {
		e.Status = StatusPlanned
	}
	if e.Source == "" {
		e.Source = SourceLocal
	}
	if e.SyncStatus == "" {
		e.SyncStatus = SyncUnsynced
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
}

// Touch sets UpdatedAt to the current time.
func (e *Event) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// Active reports whether the event still occupies its slot.
// Cancelled events and events awaiting remote deletion do not.
func (e *Event) Active() bool {
	return e.Status != StatusCancelled && e.Status != StatusPendingDeletion
}

// Slot returns the event's [start, end) interval.
func (e *Event) Slot() Slot {
	return Slot{Start: e.Start, End: e.End}
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}
