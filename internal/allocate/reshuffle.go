package allocate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// ReshuffleResult describes what Reshuffle did with a freed slot.
type ReshuffleResult struct {
	Cancelled *schema.Event `json:"cancelled"`
	// Freed is the usable interval before travel is taken off
	Freed schema.Slot `json:"freed"`
	// Boundary is the next active event, if any
	Boundary *schema.Event `json:"boundary,omitempty"`
	// Placement is nil when no pending task fit
	Placement *Placement            `json:"placement,omitempty"`
	Travel    *schema.TravelSegment `json:"travel,omitempty"`
	// Released lists the tasks unbound from the cancelled event
	Released int `json:"released"`
}

// Reshuffle cancels an event and refills the time it frees.
//
// The freed interval runs from the event's start (or now, if later) to the
// start of the next active event, or to the event's own end when there is
// none, and never past the end of that day's working window. An event that
// already ended frees nothing. When the cancelled event and that next event are at distinct known
// places, the estimated travel time is taken off the end of the interval.
// The best-ranked pending task that fits is placed at the start of the
// interval, and the travel segment is stored ending at the next event's
// start. The event ends up CANCELLED whether or not a task was placed.
func (a *Allocator) Reshuffle(ctx context.Context, eventID string) (*ReshuffleResult, error) {
	e, err := a.db.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var res *ReshuffleResult
	err = a.inUserTx(ctx, e.UserID, func(q *store.Queries, fc *focus.Calculator) error {
		var err error
		res, err = a.reshuffle(ctx, q, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.publish(res.Cancelled.UserID, KindEventCancelled, res)
	if res.Placement != nil {
		a.publishPlacement(res.Placement)
	}
	return res, nil
}

func (a *Allocator) reshuffle(ctx context.Context, q *store.Queries, eventID string) (*ReshuffleResult, error) {
	cancelled, err := q.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	res := &ReshuffleResult{Cancelled: cancelled}

	freed, boundary, err := a.freedSlot(ctx, q, cancelled)
	if err != nil {
		return nil, err
	}
	res.Freed, res.Boundary = freed, boundary

	usable := freed.Duration()
	var travelMinutes int
	var distance *float64
	if boundary != nil && schema.Distinct(cancelled.Location, boundary.Location) {
		est := a.travel.Estimate(ctx, cancelled.Location, boundary.Location, a.config.Mode)
		travelMinutes, distance = est.Minutes, est.DistanceKm
		usable -= time.Duration(travelMinutes) * time.Minute
	}

	if usable > 0 {
		task, err := a.bestFit(ctx, q, cancelled, freed.Start, usable)
		if err != nil {
			return nil, err
		}
		if task != nil {
			p, err := bind(ctx, q, task, schema.Slot{Start: freed.Start, End: freed.Start.Add(task.Duration())})
			if err != nil {
				return nil, err
			}
			res.Placement = p

			if travelMinutes > 0 {
				p.Event.Location = cancelled.Location
				if err := q.UpsertEvent(ctx, p.Event); err != nil {
					return nil, err
				}
				seg := schema.NewTravelSegment(cancelled.UserID, p.Event.ID, boundary.ID,
					boundary.Start, travelMinutes, a.config.Mode)
				seg.DistanceKm = distance
				if err := q.UpsertTravelSegment(ctx, seg); err != nil {
					return nil, err
				}
				res.Travel = seg
			}
		}
	}

	released, err := q.UnbindTasksForEvent(ctx, cancelled.ID)
	if err != nil {
		return nil, err
	}
	res.Released = released
	if err := q.DeleteTravelForEvent(ctx, cancelled.ID); err != nil {
		return nil, err
	}

	cancelled.Status = schema.StatusCancelled
	cancelled.TaskID = ""
	cancelled.Touch()
	if err := q.UpsertEvent(ctx, cancelled); err != nil {
		return nil, fmt.Errorf("failed to cancel event %s: %w", cancelled.ID, err)
	}

	a.config.Logger.Info("reshuffled cancelled event",
		"user", cancelled.UserID, "event", cancelled.ID,
		"freed_minutes", freed.Minutes(), "travel_minutes", travelMinutes,
		"placed", res.Placement != nil)
	return res, nil
}

// freedSlot returns the interval a cancellation makes available and the
// next active event bounding it. Other events still occupying part of the
// interval shrink it to its first free gap.
func (a *Allocator) freedSlot(ctx context.Context, q *store.Queries, cancelled *schema.Event) (schema.Slot, *schema.Event, error) {
	boundary, err := q.NextActiveEvent(ctx, cancelled.UserID, cancelled.Start, cancelled.ID)
	if errors.Is(err, store.ErrNotFound) {
		boundary = nil
	} else if err != nil {
		return schema.Slot{}, nil, err
	}

	now := a.config.Now()
	if !cancelled.End.After(now) {
		return schema.Slot{Start: now, End: now}, boundary, nil
	}

	freed := cancelled.Slot()
	if boundary != nil {
		freed.End = boundary.Start
	}
	// Past the event's own end the freed time stops at the working day's end.
	limit := a.focus.Window(cancelled.Start).End
	if cancelled.End.After(limit) {
		limit = cancelled.End
	}
	if freed.End.After(limit) {
		freed.End = limit
	}
	if freed.Start.Before(now) {
		freed.Start = now
	}
	if freed.Empty() {
		return schema.Slot{Start: freed.Start, End: freed.Start}, boundary, nil
	}

	others, err := q.ListEvents(ctx, store.EventFilter{
		UserID: cancelled.UserID, From: freed.Start, To: freed.End, ExcludeCancelled: true,
	})
	if err != nil {
		return schema.Slot{}, nil, err
	}
	busy := make([]schema.Slot, 0, len(others))
	for _, o := range others {
		if o.ID != cancelled.ID {
			busy = append(busy, o.Slot())
		}
	}
	gaps := focus.FreeGaps(freed, busy)
	if len(gaps) == 0 || !gaps[0].Start.Equal(freed.Start) {
		return schema.Slot{Start: freed.Start, End: freed.Start}, boundary, nil
	}
	return gaps[0], boundary, nil
}

// bestFit returns the best-ranked pending task, other than the one bound to
// the cancelled event, that fits in usable and would meet its deadline when
// started at start.
func (a *Allocator) bestFit(ctx context.Context, q *store.Queries, cancelled *schema.Event, start time.Time, usable time.Duration) (*schema.Task, error) {
	tasks, err := q.FindPendingByUser(ctx, cancelled.UserID)
	if err != nil {
		return nil, err
	}
	schema.SortForPlacement(tasks)
	for _, t := range tasks {
		if t.EventID == cancelled.ID || t.ID == cancelled.TaskID {
			continue
		}
		if t.Duration() > usable {
			continue
		}
		if pastDeadline(t, schema.Slot{Start: start, End: start.Add(t.Duration())}) {
			continue
		}
		return t, nil
	}
	return nil, nil
}
