// Package allocate places pending tasks on a user's timeline.
//
// Placement is first-fit and focus-aware: candidates are tried in
// chronological order from a cursor, skipping existing events and protected
// focus windows, and a task whose candidate would end after its deadline is
// marked late instead of placed. Reshuffle refills the slot freed by a
// cancelled event with the best-ranked pending task that fits, leaving room
// for travel to the next event.
//
// All mutations for one user are serialized; different users proceed in
// parallel.
package allocate

import (
	"context"
	"log/slog"
	"time"

	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
	"github.com/mschirtzinger/planner/internal/travel"
)

// Live-feed message kinds published by the allocator.
const (
	KindTaskPlaced     = "task_placed"
	KindTaskLate       = "task_late"
	KindEventCancelled = "event_cancelled"
)

// Publisher receives allocation notifications.
type Publisher interface {
	Publish(userID, kind string, data any)
}

// Config holds configuration for the allocator.
type Config struct {
	// Mode is the transport mode for travel estimates
	Mode schema.TransportMode

	// Step is how far the cursor advances past a focus-blocked candidate
	Step time.Duration

	// Horizon bounds how far ahead of the cursor auto-placement searches
	Horizon time.Duration

	// TravelWindow is how far ahead RecalculateTravel walks
	TravelWindow time.Duration

	// Now returns the current time (default time.Now)
	Now func() time.Time

	Logger    *slog.Logger
	Publisher Publisher
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:         schema.ModeDriving,
		Step:         15 * time.Minute,
		Horizon:      60 * 24 * time.Hour,
		TravelWindow: 7 * 24 * time.Hour,
		Now:          time.Now,
		Logger:       slog.Default(),
	}
}

// Allocator places tasks and reshuffles freed slots.
type Allocator struct {
	db     *store.DB
	focus  *focus.Calculator
	travel travel.Estimator
	config *Config
	locks  *userLocks
}

// New creates an Allocator. A nil config uses DefaultConfig; zero fields of
// a non-nil config take their defaults.
func New(db *store.DB, fc *focus.Calculator, est travel.Estimator, config *Config) *Allocator {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Mode == "" {
		config.Mode = def.Mode
	}
	if config.Step <= 0 {
		config.Step = def.Step
	}
	if config.Horizon <= 0 {
		config.Horizon = def.Horizon
	}
	if config.TravelWindow <= 0 {
		config.TravelWindow = def.TravelWindow
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if est == nil {
		est = travel.Heuristic{}
	}
	return &Allocator{db: db, focus: fc, travel: est, config: config, locks: newUserLocks()}
}

// Placement is the outcome of allocating one task.
type Placement struct {
	Task  *schema.Task  `json:"task"`
	Event *schema.Event `json:"event,omitempty"`
	// Late is set when the task could not meet its deadline
	Late bool `json:"late"`
	// Reason explains why an unplaced task was left pending
	Reason string `json:"reason,omitempty"`
}

// Placed reports whether an event was created.
func (p *Placement) Placed() bool {
	return p.Event != nil
}

// inUserTx serializes fn with every other mutation for userID and runs it
// in a single transaction.
func (a *Allocator) inUserTx(ctx context.Context, userID string, fn func(q *store.Queries, fc *focus.Calculator) error) error {
	unlock := a.locks.lock(userID)
	defer unlock()

	return a.db.WithTx(ctx, func(q *store.Queries) error {
		return fn(q, a.focus.WithStore(q))
	})
}

func (a *Allocator) publish(userID, kind string, data any) {
	if a.config.Publisher != nil {
		a.config.Publisher.Publish(userID, kind, data)
	}
}

func (a *Allocator) publishPlacement(p *Placement) {
	switch {
	case p.Placed():
		a.publish(p.Task.UserID, KindTaskPlaced, p)
	case p.Late:
		a.publish(p.Task.UserID, KindTaskLate, p)
	}
}
