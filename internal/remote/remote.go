// Package remote defines the external calendar client the sync cycle talks
// to and the failure taxonomy its calls report.
package remote

import (
	"context"
	"time"

	"github.com/mschirtzinger/planner/internal/schema"
)

// Event is an event as the remote calendar reports it.
type Event struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Start    time.Time        `json:"start"`
	End      time.Time        `json:"end"`
	Location *schema.Location `json:"location,omitempty"`
}

// Client talks to one user's remote calendar. Every method fails with an
// *UnavailableError or a *RejectedError when the provider refuses the call.
type Client interface {
	// List returns the remote events overlapping [from, to).
	List(ctx context.Context, acct *schema.Account, from, to time.Time) ([]Event, error)

	// Push creates e remotely and returns the provider's identifier.
	Push(ctx context.Context, acct *schema.Account, e *schema.Event) (string, error)

	// Update overwrites the remote copy of e, addressed by e.RemoteID.
	Update(ctx context.Context, acct *schema.Account, e *schema.Event) error

	// Delete removes the remote event with the given identifier.
	Delete(ctx context.Context, acct *schema.Account, remoteID string) error
}

// ReadOnly is implemented by clients that can only list. The push phase is
// skipped for them.
type ReadOnly interface {
	ReadOnly() bool
}

// IsReadOnly reports whether c declares itself read-only.
func IsReadOnly(c Client) bool {
	ro, ok := c.(ReadOnly)
	return ok && ro.ReadOnly()
}

// FromLocal converts a local event into its remote representation.
func FromLocal(e *schema.Event) Event {
	return Event{ID: e.RemoteID, Title: e.Title, Start: e.Start, End: e.End, Location: e.Location}
}
