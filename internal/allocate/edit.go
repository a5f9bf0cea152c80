package allocate

import (
	"context"
	"fmt"
	"time"

	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// TaskUpdate lists the task fields to change. Nil fields are left alone.
type TaskUpdate struct {
	Title           *string    `json:"title,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Priority        *int       `json:"priority,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	// ClearDeadline removes the deadline; it wins over Deadline
	ClearDeadline bool `json:"clear_deadline,omitempty"`
}

// UpdateTask edits a task.
//
// Changing the deadline or the duration of a late task makes it pending
// again. A placed task keeps its slot: its duration cannot change, and a new
// deadline must not fall before the end of its event. Renaming a placed
// task renames its event and flags it for the next push.
func (a *Allocator) UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) (*schema.Task, error) {
	t, err := a.db.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	err = a.inUserTx(ctx, t.UserID, func(q *store.Queries, _ *focus.Calculator) error {
		t, err = q.GetTask(ctx, taskID)
		if err != nil {
			return err
		}

		rescheduled := false
		if upd.DurationMinutes != nil && *upd.DurationMinutes != t.DurationMinutes {
			if t.Placed() {
				return fmt.Errorf("%w: cancel its event before changing the duration", ErrTaskPlaced)
			}
			t.DurationMinutes = *upd.DurationMinutes
			rescheduled = true
		}

		deadline := t.Deadline
		switch {
		case upd.ClearDeadline:
			deadline = nil
		case upd.Deadline != nil:
			d := upd.Deadline.UTC()
			deadline = &d
		}
		if !sameDeadline(deadline, t.Deadline) {
			t.Deadline = deadline
			rescheduled = true
		}

		if upd.Priority != nil {
			t.Priority = *upd.Priority
		}
		renamed := upd.Title != nil && *upd.Title != t.Title
		if renamed {
			t.Title = *upd.Title
		}

		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTask, err)
		}

		if t.Placed() {
			e, err := q.GetEvent(ctx, t.EventID)
			if err != nil {
				return err
			}
			if pastDeadline(t, e.Slot()) {
				return fmt.Errorf("%w: event %s ends after the new deadline", ErrTaskPlaced, e.ID)
			}
			if renamed {
				e.Title = t.Title
				e.SyncStatus = schema.SyncUnsynced
				e.Touch()
				if err := q.UpsertEvent(ctx, e); err != nil {
					return err
				}
			}
		}

		if rescheduled && t.Late {
			t.Late = false
			a.config.Logger.Info("late task is pending again", "user", t.UserID, "task", t.ID)
		}
		t.Touch()
		return q.UpsertTask(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func sameDeadline(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
