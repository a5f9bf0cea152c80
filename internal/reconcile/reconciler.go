package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mschirtzinger/planner/internal/conflict"
	"github.com/mschirtzinger/planner/internal/remote"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// Live-feed message kinds published by the reconciler.
const (
	KindSyncCompleted = "sync_completed"
	KindSyncConflict  = "sync_conflict"
)

// Publisher receives cycle notifications.
type Publisher interface {
	Publish(userID, kind string, data any)
}

// RetryPolicy bounds retries of retryable remote failures during a pull.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Factor   float64
}

// Config holds configuration for the reconciler.
type Config struct {
	// Window is how far ahead of now the pull reaches
	Window time.Duration

	// Lookback is how far behind now the pull reaches
	Lookback time.Duration

	Retry RetryPolicy

	// Now returns the current time (default time.Now)
	Now func() time.Time

	Logger    *slog.Logger
	Publisher Publisher
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Window:   30 * 24 * time.Hour,
		Lookback: 365 * 24 * time.Hour,
		Retry:    RetryPolicy{Attempts: 3, Backoff: 2 * time.Second, Factor: 2},
		Now:      time.Now,
		Logger:   slog.Default(),
	}
}

// reconciler implements the Reconciler interface.
type reconciler struct {
	db     *store.DB
	client remote.Client
	config *Config
}

// New creates a Reconciler over db talking to client. A nil config uses
// DefaultConfig; zero fields of a non-nil config take their defaults.
func New(db *store.DB, client remote.Client, config *Config) Reconciler {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.Lookback <= 0 {
		config.Lookback = def.Lookback
	}
	if config.Retry.Attempts <= 0 {
		config.Retry = def.Retry
	}
	if config.Retry.Factor < 1 {
		config.Retry.Factor = 1
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	return &reconciler{db: db, client: client, config: config}
}

// Reconcile implements Reconciler.Reconcile.
func (r *reconciler) Reconcile(ctx context.Context, userID string) (*Result, error) {
	acct, err := r.linkedAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	log := r.config.Logger.With("user", userID)

	// Unit of work 1: pull and conflict check, committed together.
	var pulled int
	var report *conflict.Report
	listing, err := r.list(ctx, acct)
	if err != nil {
		return nil, err
	}
	err = r.db.WithTx(ctx, func(q *store.Queries) error {
		pulled, err = r.applyPull(ctx, q, userID, listing)
		if err != nil {
			return err
		}
		active, err := q.ListEvents(ctx, store.EventFilter{UserID: userID, ActiveOnly: true})
		if err != nil {
			return err
		}
		report = conflict.Detect(userID, active)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply pull: %w", err)
	}

	if report.HasConflicts() {
		log.Warn("reconciliation aborted on schedule conflict",
			"pulled", pulled, "conflicts", len(report.Conflicts))
		r.publish(userID, KindSyncConflict, report)
		return nil, &ConflictError{Report: report}
	}

	// Unit of work 2: push, one event at a time.
	res := &Result{UserID: userID, Pulled: pulled}
	if remote.IsReadOnly(r.client) {
		log.Debug("remote calendar is read-only, skipping push")
	} else if err := r.pushAll(ctx, acct, res); err != nil {
		return nil, err
	}

	log.Info("reconciliation completed",
		"pulled", res.Pulled, "pushed", res.Pushed, "failures", len(res.Failures))
	r.publish(userID, KindSyncCompleted, res)
	return res, nil
}

// Pull implements Reconciler.Pull.
func (r *reconciler) Pull(ctx context.Context, userID string) (int, error) {
	acct, err := r.linkedAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	listing, err := r.list(ctx, acct)
	if err != nil {
		return 0, err
	}
	var pulled int
	err = r.db.WithTx(ctx, func(q *store.Queries) error {
		pulled, err = r.applyPull(ctx, q, userID, listing)
		return err
	})
	return pulled, err
}

func (r *reconciler) linkedAccount(ctx context.Context, userID string) (*schema.Account, error) {
	acct, err := r.db.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user %s", ErrAccountNotLinked, userID)
	}
	if err != nil {
		return nil, err
	}
	if !acct.Linked() {
		return nil, fmt.Errorf("%w: user %s", ErrAccountNotLinked, userID)
	}
	return acct, nil
}

// pullWindow returns the interval the pull covers and orphan detection
// trusts.
func (r *reconciler) pullWindow() schema.Slot {
	now := r.config.Now()
	return schema.Slot{Start: now.Add(-r.config.Lookback), End: now.Add(r.config.Window)}
}

// list fetches the remote window, retrying retryable failures with
// exponential backoff.
func (r *reconciler) list(ctx context.Context, acct *schema.Account) ([]remote.Event, error) {
	window := r.pullWindow()
	policy := r.config.Retry
	backoff := policy.Backoff

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		events, err := r.client.List(ctx, acct, window.Start, window.End)
		if err == nil {
			return events, nil
		}
		lastErr = err
		if !remote.IsRetryable(err) || attempt == policy.Attempts {
			break
		}

		r.config.Logger.Warn("remote list failed, retrying",
			"user", acct.ID, "attempt", attempt, "backoff", backoff, "code", remote.Code(err), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * policy.Factor)
	}
	return nil, lastErr
}

// applyPull stores the remote listing: unknown remote ids become REMOTE
// SYNCED events, known ones are overwritten when title, interval or location
// changed (unless a local edit is waiting to be pushed), and REMOTE events
// missing from the listing are deleted.
func (r *reconciler) applyPull(ctx context.Context, q *store.Queries, userID string, listing []remote.Event) (int, error) {
	now := r.config.Now().UTC()
	seen := make(map[string]bool, len(listing))
	pulled := 0

	for _, re := range listing {
		if re.ID == "" {
			continue
		}
		seen[re.ID] = true

		local, err := q.GetEventByRemoteID(ctx, userID, re.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			e := &schema.Event{
				UserID:       userID,
				Title:        re.Title,
				Start:        re.Start.UTC(),
				End:          re.End.UTC(),
				Location:     re.Location,
				Source:       schema.SourceRemote,
				SyncStatus:   schema.SyncSynced,
				RemoteID:     re.ID,
				LastSyncedAt: &now,
			}
			e.SetDefaults()
			if err := q.UpsertEvent(ctx, e); err != nil {
				r.config.Logger.Warn("skipping invalid remote event",
					"user", userID, "remote_id", re.ID, "error", err)
				continue
			}
			pulled++
		case err != nil:
			return pulled, err
		default:
			if local.SyncStatus == schema.SyncUnsynced || !local.Active() {
				continue
			}
			if !changed(local, re) {
				continue
			}
			local.Title = re.Title
			local.Start, local.End = re.Start.UTC(), re.End.UTC()
			local.Location = re.Location
			local.SyncStatus = schema.SyncSynced
			local.LastSyncedAt = &now
			local.Touch()
			if err := q.UpsertEvent(ctx, local); err != nil {
				r.config.Logger.Warn("skipping invalid remote update",
					"user", userID, "remote_id", re.ID, "error", err)
				continue
			}
			if err := q.DeleteTravelForEvent(ctx, local.ID); err != nil {
				return pulled, err
			}
			pulled++
		}
	}

	window := r.pullWindow()
	remotes, err := q.ListEvents(ctx, store.EventFilter{
		UserID: userID, Source: schema.SourceRemote, From: window.Start, To: window.End,
	})
	if err != nil {
		return pulled, err
	}
	for _, e := range remotes {
		if e.RemoteID == "" || seen[e.RemoteID] || e.SyncStatus == schema.SyncUnsynced {
			continue
		}
		if err := q.DeleteEvent(ctx, e.ID); err != nil {
			return pulled, err
		}
		r.config.Logger.Debug("deleted event removed remotely", "user", userID, "event", e.ID)
	}
	return pulled, nil
}

func changed(local *schema.Event, re remote.Event) bool {
	return local.Title != re.Title ||
		!local.Start.Equal(re.Start) ||
		!local.End.Equal(re.End) ||
		!sameLocation(local.Location, re.Location)
}

func sameLocation(a, b *schema.Location) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name == b.Name && a.Address == b.Address &&
		sameFloat(a.Latitude, b.Latitude) && sameFloat(a.Longitude, b.Longitude)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *reconciler) publish(userID, kind string, data any) {
	if r.config.Publisher != nil {
		r.config.Publisher.Publish(userID, kind, data)
	}
}
