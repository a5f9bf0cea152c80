package allocate

import (
	"context"
	"fmt"
	"time"

	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// Allocate places one task. With both start and end set the task goes into
// exactly that slot, subject to the daily event cap and to overlapping
// events; with neither set it is auto-placed from the current time.
// A slot that would end after the task's deadline marks the task late.
func (a *Allocator) Allocate(ctx context.Context, taskID string, start, end *time.Time) (*Placement, error) {
	if (start == nil) != (end == nil) {
		return nil, fmt.Errorf("%w: start and end must be given together", ErrInvalidSlot)
	}

	t, err := a.db.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var p *Placement
	err = a.inUserTx(ctx, t.UserID, func(q *store.Queries, fc *focus.Calculator) error {
		// Reload under the user lock.
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Done {
			return ErrTaskDone
		}
		if task.Placed() {
			return ErrTaskPlaced
		}
		if task.Late {
			return ErrTaskLate
		}

		if start != nil {
			p, err = a.placeExplicit(ctx, q, fc, task, schema.Slot{Start: *start, End: *end})
			return err
		}
		p, err = a.placeFirstFit(ctx, q, fc, task, a.config.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	a.publishPlacement(p)
	return p, nil
}

// AutoSchedule places every pending task of the user in placement order,
// starting at cursor. A nil cursor starts at the later of now and the start
// of today's working window. Tasks whose deadline already passed are marked
// late without a search.
func (a *Allocator) AutoSchedule(ctx context.Context, userID string, cursor *time.Time) ([]*Placement, error) {
	now := a.config.Now()
	from := now
	if cursor != nil {
		from = *cursor
	} else if dayStart := a.focus.Window(now).Start; dayStart.After(now) {
		from = dayStart
	}

	var out []*Placement
	err := a.inUserTx(ctx, userID, func(q *store.Queries, fc *focus.Calculator) error {
		tasks, err := q.FindPendingByUser(ctx, userID)
		if err != nil {
			return err
		}
		schema.SortForPlacement(tasks)

		for _, task := range tasks {
			if task.Deadline != nil && task.Deadline.Before(now) {
				if err := markLate(ctx, q, task); err != nil {
					return err
				}
				out = append(out, &Placement{Task: task, Late: true, Reason: "deadline passed"})
				continue
			}

			p, err := a.placeFirstFit(ctx, q, fc, task, from)
			if err != nil {
				return err
			}
			out = append(out, p)
			if p.Placed() {
				from = p.Event.End
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range out {
		a.publishPlacement(p)
	}
	return out, nil
}

func (a *Allocator) placeExplicit(ctx context.Context, q *store.Queries, fc *focus.Calculator, task *schema.Task, slot schema.Slot) (*Placement, error) {
	if slot.Empty() {
		return nil, fmt.Errorf("%w: start must be before end", ErrInvalidSlot)
	}
	if pastDeadline(task, slot) {
		if err := markLate(ctx, q, task); err != nil {
			return nil, err
		}
		return &Placement{Task: task, Late: true, Reason: "slot ends after deadline"}, nil
	}
	if err := fc.ValidateDailyLoad(ctx, task.UserID, slot.Start); err != nil {
		return nil, err
	}

	busy, err := q.ListEvents(ctx, store.EventFilter{
		UserID: task.UserID, From: slot.Start, To: slot.End, ExcludeCancelled: true,
	})
	if err != nil {
		return nil, err
	}
	if len(busy) > 0 {
		return nil, &SlotTakenError{EventID: busy[0].ID, Title: busy[0].Title}
	}

	return bind(ctx, q, task, slot)
}

// placeFirstFit walks forward from cursor. A candidate overlapping an event
// jumps past that event; one overlapping a focus window advances by Step.
// Days whose event cap is met are skipped entirely.
func (a *Allocator) placeFirstFit(ctx context.Context, q *store.Queries, fc *focus.Calculator, task *schema.Task, cursor time.Time) (*Placement, error) {
	limit := cursor.Add(a.config.Horizon)

	events, err := q.ListEvents(ctx, store.EventFilter{
		UserID: task.UserID, From: cursor, To: limit.Add(task.Duration()), ExcludeCancelled: true,
	})
	if err != nil {
		return nil, err
	}

	for !cursor.After(limit) {
		candidate := schema.Slot{Start: cursor, End: cursor.Add(task.Duration())}

		if pastDeadline(task, candidate) {
			if err := markLate(ctx, q, task); err != nil {
				return nil, err
			}
			return &Placement{Task: task, Late: true, Reason: "no free slot before deadline"}, nil
		}

		if next, ok := collision(candidate, events); ok {
			cursor = next
			continue
		}

		if err := fc.ValidateDailyLoad(ctx, task.UserID, candidate.Start); focus.IsOverloaded(err) {
			_, dayEnd := focus.DayBounds(candidate.Start, fc.Location())
			cursor = fc.Window(dayEnd).Start
			continue
		} else if err != nil {
			return nil, err
		}

		blocked, err := fc.IsBlockedByFocus(ctx, task.UserID, candidate.Start, candidate.End)
		if err != nil {
			return nil, err
		}
		if blocked {
			cursor = cursor.Add(a.config.Step)
			continue
		}

		return bind(ctx, q, task, candidate)
	}

	return &Placement{Task: task, Reason: "no free slot within horizon"}, nil
}

// collision returns the latest end among events overlapping candidate.
func collision(candidate schema.Slot, events []*schema.Event) (time.Time, bool) {
	var next time.Time
	hit := false
	for _, e := range events {
		if e.Slot().Overlaps(candidate) && e.End.After(next) {
			next = e.End
			hit = true
		}
	}
	return next, hit
}

func pastDeadline(task *schema.Task, slot schema.Slot) bool {
	return task.Deadline != nil && slot.End.After(*task.Deadline)
}

// bind creates the task's event in slot and links both sides.
func bind(ctx context.Context, q *store.Queries, task *schema.Task, slot schema.Slot) (*Placement, error) {
	e := &schema.Event{
		UserID: task.UserID,
		Title:  task.Title,
		Start:  slot.Start.UTC(),
		End:    slot.End.UTC(),
		TaskID: task.ID,
	}
	e.SetDefaults()
	if err := q.UpsertEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create event for task %s: %w", task.ID, err)
	}

	task.EventID = e.ID
	task.Late = false
	task.Touch()
	if err := q.UpsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to link task %s: %w", task.ID, err)
	}
	return &Placement{Task: task, Event: e}, nil
}

func markLate(ctx context.Context, q *store.Queries, task *schema.Task) error {
	task.Late = true
	task.Touch()
	if err := q.UpsertTask(ctx, task); err != nil {
		return fmt.Errorf("failed to mark task %s late: %w", task.ID, err)
	}
	return nil
}
