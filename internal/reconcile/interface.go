// Package reconcile runs the per-user reconciliation cycle between the local
// timeline and a remote calendar.
//
// A cycle has two independently committed units of work. The first pulls the
// remote window into the store and runs conflict detection over the user's
// active events; a non-empty report aborts the cycle before anything is
// pushed. The second pushes local changes one event at a time, turning each
// failure into a CONFLICT sync status on that event and moving on.
package reconcile

import (
	"context"
	"io"
)

// Reconciler keeps a user's local timeline and remote calendar in step.
//
// Reconcile returns either a *Result or an error; a schedule conflict is
// reported as a *ConflictError (see AsConflict), a missing credential as
// ErrAccountNotLinked, and a provider failure during the pull as a
// remote.UnavailableError or remote.RejectedError.
type Reconciler interface {
	// Reconcile runs one full pull, conflict check and push cycle.
	Reconcile(ctx context.Context, userID string) (*Result, error)

	// Pull fetches the remote window and applies it locally without
	// checking conflicts or pushing. Returns created+updated events.
	Pull(ctx context.Context, userID string) (int, error)

	// MarkForSync flags an event for the next push.
	MarkForSync(ctx context.Context, eventID string) error

	// SyncEvent pushes one event immediately.
	SyncEvent(ctx context.Context, eventID string) error

	// ImportICS stores the events of an iCalendar stream as local,
	// unsynced events. Re-importing the same stream updates in place.
	ImportICS(ctx context.Context, userID string, r io.Reader) (int, error)
}

// Result holds the statistics of one completed cycle.
type Result struct {
	UserID   string    `json:"user_id"`
	Pulled   int       `json:"pulled"`
	Pushed   int       `json:"pushed"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure is one event the push phase could not propagate.
type Failure struct {
	EventID   string `json:"event_id"`
	Op        string `json:"op"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}
