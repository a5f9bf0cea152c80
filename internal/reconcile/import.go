package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/mschirtzinger/planner/internal/remote/ics"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// importNamespace seeds the stable ids of imported events.
var importNamespace = uuid.MustParse("6f1c1a5e-6d0b-4b8e-9a53-4a3c1f0d2b71")

// ImportICS implements Reconciler.ImportICS. Occurrences are expanded over
// the pull window.
func (r *reconciler) ImportICS(ctx context.Context, userID string, rd io.Reader) (int, error) {
	window := r.pullWindow()
	items, err := ics.Parse(rd, window.Start, window.End)
	if err != nil {
		return 0, err
	}

	imported := 0
	err = r.db.WithTx(ctx, func(q *store.Queries) error {
		for _, it := range items {
			id := uuid.NewSHA1(importNamespace, []byte(userID+"\x00"+it.ID)).String()

			e, err := q.GetEvent(ctx, id)
			switch {
			case errors.Is(err, store.ErrNotFound):
				e = &schema.Event{ID: id, UserID: userID}
			case err != nil:
				return err
			default:
				if e.Title == it.Title && e.Start.Equal(it.Start) && e.End.Equal(it.End) && sameLocation(e.Location, it.Location) {
					continue
				}
			}

			e.Title = it.Title
			e.Start, e.End = it.Start.UTC(), it.End.UTC()
			e.Location = it.Location
			e.SyncStatus = schema.SyncUnsynced
			e.SetDefaults()
			e.Touch()
			if err := q.UpsertEvent(ctx, e); err != nil {
				return fmt.Errorf("failed to import %q: %w", it.ID, err)
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.config.Logger.Info("imported calendar file", "user", userID, "events", imported, "parsed", len(items))
	return imported, nil
}
