package allocate

import (
	"context"
	"fmt"
	"time"

	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

// RecalculateTravel rebuilds the travel segments between the user's
// consecutive active events from the start of today through TravelWindow.
// A segment starts when its predecessor ends and is only stored for events
// at distinct known places. An empty mode uses the configured one.
func (a *Allocator) RecalculateTravel(ctx context.Context, userID string, mode schema.TransportMode) ([]*schema.TravelSegment, error) {
	if mode == "" {
		mode = a.config.Mode
	}
	from, _ := focus.DayBounds(a.config.Now(), a.focus.Location())
	to := from.Add(a.config.TravelWindow)

	var out []*schema.TravelSegment
	err := a.inUserTx(ctx, userID, func(q *store.Queries, _ *focus.Calculator) error {
		events, err := q.FindByUserAndWindow(ctx, userID, from, to)
		if err != nil {
			return err
		}
		for _, e := range events {
			if err := q.DeleteTravelForEvent(ctx, e.ID); err != nil {
				return err
			}
		}

		for i := 1; i < len(events); i++ {
			prev, next := events[i-1], events[i]
			if !schema.Distinct(prev.Location, next.Location) {
				continue
			}
			est := a.travel.Estimate(ctx, prev.Location, next.Location, mode)
			seg := schema.NewTravelSegment(userID, prev.ID, next.ID,
				prev.End.Add(time.Duration(est.Minutes)*time.Minute), est.Minutes, mode)
			seg.DistanceKm = est.DistanceKm
			if err := q.UpsertTravelSegment(ctx, seg); err != nil {
				return err
			}
			if seg.End.After(next.Start) {
				a.config.Logger.Warn("not enough time to travel between events",
					"user", userID, "from", prev.ID, "to", next.ID,
					"travel_minutes", est.Minutes, "gap_minutes", int(next.Start.Sub(prev.End)/time.Minute))
			}
			out = append(out, seg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddEvent stores a new event unless its day already holds the user's
// maximum number of events.
func (a *Allocator) AddEvent(ctx context.Context, e *schema.Event) error {
	e.SetDefaults()
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	return a.inUserTx(ctx, e.UserID, func(q *store.Queries, fc *focus.Calculator) error {
		if err := fc.ValidateDailyLoad(ctx, e.UserID, e.Start); err != nil {
			return err
		}
		return q.UpsertEvent(ctx, e)
	})
}

// Reschedule moves an event to a new slot. The slot must not overlap another
// non-cancelled event, and moving to another day must not exceed that day's
// event cap. Travel segments touching the event are dropped and the event is
// flagged for the next push.
func (a *Allocator) Reschedule(ctx context.Context, eventID string, start, end time.Time) (*schema.Event, error) {
	slot := schema.Slot{Start: start, End: end}
	if slot.Empty() {
		return nil, fmt.Errorf("%w: start must be before end", ErrInvalidSlot)
	}

	e, err := a.db.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	err = a.inUserTx(ctx, e.UserID, func(q *store.Queries, fc *focus.Calculator) error {
		e, err = q.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		oldDay, _ := focus.DayBounds(e.Start, fc.Location())
		newDay, _ := focus.DayBounds(slot.Start, fc.Location())
		if !oldDay.Equal(newDay) {
			if err := fc.ValidateDailyLoad(ctx, e.UserID, slot.Start); err != nil {
				return err
			}
		}
		busy, err := q.ListEvents(ctx, store.EventFilter{
			UserID: e.UserID, From: slot.Start, To: slot.End, ExcludeCancelled: true,
		})
		if err != nil {
			return err
		}
		for _, b := range busy {
			if b.ID != e.ID {
				return &SlotTakenError{EventID: b.ID, Title: b.Title}
			}
		}

		if err := q.DeleteTravelForEvent(ctx, e.ID); err != nil {
			return err
		}
		e.Start, e.End = slot.Start.UTC(), slot.End.UTC()
		e.SyncStatus = schema.SyncUnsynced
		e.Touch()
		return q.UpsertEvent(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
