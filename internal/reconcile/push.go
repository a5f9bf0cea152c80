package reconcile

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/planner/internal/remote"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// pushAll visits every event the push phase must propagate. A failing event
// is marked CONFLICT and recorded in res; the others carry on. Only a store
// failure that prevents recording the outcome aborts the phase.
func (r *reconciler) pushAll(ctx context.Context, acct *schema.Account, res *Result) error {
	events, err := r.db.ListEvents(ctx, store.EventFilter{UserID: acct.ID, NeedsPush: true})
	if err != nil {
		return fmt.Errorf("failed to list events to push: %w", err)
	}

	for _, e := range events {
		op, err := r.pushOne(ctx, acct, e)
		if err == nil {
			if op != "skip" {
				res.Pushed++
			}
			continue
		}

		r.config.Logger.Warn("push failed, marking event as conflict",
			"user", acct.ID, "event", e.ID, "op", op, "code", remote.Code(err), "error", err)
		res.Failures = append(res.Failures, Failure{
			EventID:   e.ID,
			Op:        op,
			Error:     err.Error(),
			Retryable: remote.IsRetryable(err),
		})
		if serr := r.db.SetSyncStatus(ctx, e.ID, schema.SyncConflict); serr != nil {
			return fmt.Errorf("failed to mark event %s as conflict: %w", e.ID, serr)
		}
	}
	return nil
}

// pushOne propagates one event and records the outcome locally. It returns
// the operation attempted.
func (r *reconciler) pushOne(ctx context.Context, acct *schema.Account, e *schema.Event) (string, error) {
	now := r.config.Now().UTC()

	switch {
	case e.Status == schema.StatusPendingDeletion:
		if e.RemoteID != "" {
			if err := r.client.Delete(ctx, acct, e.RemoteID); err != nil {
				return "delete", err
			}
		}
		return "delete", r.db.DeleteEvent(ctx, e.ID)

	case e.Status == schema.StatusCancelled:
		return "skip", nil

	case e.RemoteID == "":
		id, err := r.client.Push(ctx, acct, e)
		if err != nil {
			return "push", err
		}
		// Stored first so a failed record below leads to an update, not a
		// second remote copy.
		if err := r.db.SetRemoteID(ctx, e.ID, id); err != nil {
			return "record", err
		}
		e.RemoteID = id

	default:
		if err := r.client.Update(ctx, acct, e); err != nil {
			return "update", err
		}
	}

	e.SyncStatus = schema.SyncSynced
	e.LastSyncedAt = &now
	e.Touch()
	if err := r.db.UpsertEvent(ctx, e); err != nil {
		return "record", err
	}
	return "push", nil
}

// MarkForSync implements Reconciler.MarkForSync.
func (r *reconciler) MarkForSync(ctx context.Context, eventID string) error {
	return r.db.SetSyncStatus(ctx, eventID, schema.SyncUnsynced)
}

// SyncEvent implements Reconciler.SyncEvent. A failure marks the event
// CONFLICT and is returned.
func (r *reconciler) SyncEvent(ctx context.Context, eventID string) error {
	e, err := r.db.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	acct, err := r.linkedAccount(ctx, e.UserID)
	if err != nil {
		return err
	}
	if remote.IsReadOnly(r.client) {
		return &remote.RejectedError{Op: "push", Err: remote.ErrNotSupported}
	}

	op, err := r.pushOne(ctx, acct, e)
	if err != nil {
		if serr := r.db.SetSyncStatus(ctx, e.ID, schema.SyncConflict); serr != nil {
			r.config.Logger.Error("failed to mark event as conflict", "event", e.ID, "error", serr)
		}
		return fmt.Errorf("failed to %s event %s: %w", op, e.ID, err)
	}
	return nil
}
