package allocate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/planner/internal/conflict"
	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
	"github.com/mschirtzinger/planner/internal/travel"
)

const user = "u1"

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func ptr[T any](v T) *T { return &v }

// fixedEstimator returns the same travel time for every pair.
type fixedEstimator struct{ minutes int }

func (f fixedEstimator) Estimate(context.Context, *schema.Location, *schema.Location, schema.TransportMode) travel.Estimate {
	return travel.Estimate{Minutes: f.minutes, Source: "fixed"}
}

// recorder is a Publisher that keeps every message kind.
type recorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recorder) Publish(_, kind string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

type harness struct {
	db    *store.DB
	alloc *Allocator
	pub   *recorder
}

func newHarness(t *testing.T, now time.Time, est travel.Estimator) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	pub := &recorder{}
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Publisher = pub
	return &harness{
		db:    db,
		alloc: New(db, focus.New(db, focus.DefaultConfig()), est, cfg),
		pub:   pub,
	}
}

func (h *harness) setFocus(t *testing.T, enabled bool) {
	t.Helper()
	p := schema.DefaultFocusPreference(user)
	p.FocusModeEnabled = enabled
	if err := h.db.UpsertFocusPreference(context.Background(), p); err != nil {
		t.Fatalf("UpsertFocusPreference() failed: %v", err)
	}
}

func (h *harness) addEvent(t *testing.T, title string, start, end time.Time, loc *schema.Location) *schema.Event {
	t.Helper()
	e := &schema.Event{UserID: user, Title: title, Start: start, End: end, Location: loc}
	e.SetDefaults()
	if err := h.db.UpsertEvent(context.Background(), e); err != nil {
		t.Fatalf("UpsertEvent() failed: %v", err)
	}
	return e
}

func (h *harness) addTask(t *testing.T, title string, minutes, priority int, deadline *time.Time) *schema.Task {
	t.Helper()
	task := &schema.Task{UserID: user, Title: title, DurationMinutes: minutes, Priority: priority, Deadline: deadline}
	task.SetDefaults()
	if err := h.db.UpsertTask(context.Background(), task); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}
	return task
}

func (h *harness) events(t *testing.T) []*schema.Event {
	t.Helper()
	events, err := h.db.ListEvents(context.Background(), store.EventFilter{UserID: user})
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	return events
}

func assertSlot(t *testing.T, e *schema.Event, start, end time.Time) {
	t.Helper()
	if e == nil {
		t.Fatalf("no event, want [%s, %s)", start.Format("15:04"), end.Format("15:04"))
	}
	if !e.Start.Equal(start) || !e.End.Equal(end) {
		t.Errorf("event at [%s, %s), want [%s, %s)",
			e.Start.Format("15:04"), e.End.Format("15:04"), start.Format("15:04"), end.Format("15:04"))
	}
}

func TestAutoSchedule_EmptyTimeline(t *testing.T) {
	h := newHarness(t, at(7, 0), nil)
	h.setFocus(t, false)
	task := h.addTask(t, "write report", 60, 1, nil)

	out, err := h.alloc.AutoSchedule(context.Background(), user, ptr(at(9, 0)))
	if err != nil {
		t.Fatalf("AutoSchedule() failed: %v", err)
	}
	if len(out) != 1 || !out[0].Placed() {
		t.Fatalf("AutoSchedule() = %+v, want one placement", out)
	}
	assertSlot(t, out[0].Event, at(9, 0), at(10, 0))

	got, err := h.db.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.EventID != out[0].Event.ID {
		t.Errorf("task.EventID = %q, want %q", got.EventID, out[0].Event.ID)
	}
	if out[0].Event.TaskID != task.ID {
		t.Errorf("event.TaskID = %q, want %q", out[0].Event.TaskID, task.ID)
	}
	if len(h.pub.kinds) != 1 || h.pub.kinds[0] != KindTaskPlaced {
		t.Errorf("published %v, want [%s]", h.pub.kinds, KindTaskPlaced)
	}
}

func TestAutoSchedule_DefaultCursorIsWorkingDayStart(t *testing.T) {
	h := newHarness(t, at(6, 10), nil)
	h.setFocus(t, false)
	h.addTask(t, "early", 30, 1, nil)

	out, err := h.alloc.AutoSchedule(context.Background(), user, nil)
	if err != nil {
		t.Fatalf("AutoSchedule() failed: %v", err)
	}
	assertSlot(t, out[0].Event, at(8, 0), at(8, 30))
}

func TestAllocate_FirstFitSkipsEvents(t *testing.T) {
	tests := []struct {
		name       string
		minutes    int
		start, end time.Time
	}{
		{"fits in the half-hour gap", 30, at(10, 0), at(10, 30)},
		{"too long for the gap", 45, at(11, 0), at(11, 45)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, at(9, 0), nil)
			h.setFocus(t, false)
			h.addEvent(t, "standup", at(9, 0), at(10, 0), nil)
			h.addEvent(t, "review", at(10, 30), at(11, 0), nil)
			task := h.addTask(t, "task", tt.minutes, 1, nil)

			p, err := h.alloc.Allocate(context.Background(), task.ID, nil, nil)
			if err != nil {
				t.Fatalf("Allocate() failed: %v", err)
			}
			assertSlot(t, p.Event, tt.start, tt.end)
		})
	}
}

func TestAllocate_FocusWindowIsSkipped(t *testing.T) {
	h := newHarness(t, at(9, 0), nil)
	h.setFocus(t, true) // morning band, 09:00-12:00
	task := h.addTask(t, "errand", 60, 1, nil)

	p, err := h.alloc.Allocate(context.Background(), task.ID, nil, nil)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	assertSlot(t, p.Event, at(12, 0), at(13, 0))
}

func TestAllocate_DeadlinePassedMarksLate(t *testing.T) {
	h := newHarness(t, at(9, 0), nil)
	h.setFocus(t, false)
	task := h.addTask(t, "tax return", 60, 1, ptr(at(9, 0).Add(-24*time.Hour)))

	p, err := h.alloc.Allocate(context.Background(), task.ID, nil, nil)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	if p.Placed() || !p.Late {
		t.Fatalf("Allocate() = %+v, want late and unplaced", p)
	}
	if events := h.events(t); len(events) != 0 {
		t.Errorf("%d events created, want none", len(events))
	}

	got, _ := h.db.GetTask(context.Background(), task.ID)
	if !got.Late || got.Placed() {
		t.Errorf("stored task late=%v placed=%v", got.Late, got.Placed())
	}
	pending, _ := h.db.FindPendingByUser(context.Background(), user)
	if len(pending) != 0 {
		t.Errorf("late task still pending")
	}
}

func TestAllocate_NeverEndsPastDeadline(t *testing.T) {
	h := newHarness(t, at(9, 0), nil)
	h.setFocus(t, false)
	h.addEvent(t, "busy", at(9, 0), at(11, 0), nil)
	// Fits only at 11:00-12:00, deadline is 11:30.
	task := h.addTask(t, "tight", 60, 1, ptr(at(11, 30)))

	p, err := h.alloc.Allocate(context.Background(), task.ID, nil, nil)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	if p.Placed() || !p.Late {
		t.Fatalf("Allocate() = %+v, want late", p)
	}
}

func TestAllocate_ExplicitSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("placed as requested", func(t *testing.T) {
		h := newHarness(t, at(7, 0), nil)
		task := h.addTask(t, "call", 30, 1, nil)
		p, err := h.alloc.Allocate(ctx, task.ID, ptr(at(15, 0)), ptr(at(15, 45)))
		if err != nil {
			t.Fatalf("Allocate() failed: %v", err)
		}
		assertSlot(t, p.Event, at(15, 0), at(15, 45))

		if _, err := h.alloc.Allocate(ctx, task.ID, nil, nil); !errors.Is(err, ErrTaskPlaced) {
			t.Errorf("second Allocate() = %v, want ErrTaskPlaced", err)
		}
	})

	t.Run("overlap rejected", func(t *testing.T) {
		h := newHarness(t, at(7, 0), nil)
		busy := h.addEvent(t, "meeting", at(15, 0), at(16, 0), nil)
		task := h.addTask(t, "call", 30, 1, nil)

		_, err := h.alloc.Allocate(ctx, task.ID, ptr(at(15, 30)), ptr(at(16, 30)))
		var ste *SlotTakenError
		if !errors.As(err, &ste) || ste.EventID != busy.ID {
			t.Fatalf("Allocate() = %v, want SlotTakenError for %s", err, busy.ID)
		}
	})

	t.Run("overloaded day rejected", func(t *testing.T) {
		h := newHarness(t, at(7, 0), nil)
		for i := 0; i < schema.DefaultMaxEventsPerDay; i++ {
			h.addEvent(t, "e", at(8+i, 0), at(8+i, 30), nil)
		}
		task := h.addTask(t, "call", 30, 1, nil)

		_, err := h.alloc.Allocate(ctx, task.ID, ptr(at(17, 0)), ptr(at(17, 30)))
		if !focus.IsOverloaded(err) {
			t.Fatalf("Allocate() = %v, want overloaded", err)
		}
	})

	t.Run("half a slot is invalid", func(t *testing.T) {
		h := newHarness(t, at(7, 0), nil)
		task := h.addTask(t, "call", 30, 1, nil)
		if _, err := h.alloc.Allocate(ctx, task.ID, ptr(at(9, 0)), nil); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("Allocate() = %v, want ErrInvalidSlot", err)
		}
	})

	t.Run("slot past deadline marks late", func(t *testing.T) {
		h := newHarness(t, at(7, 0), nil)
		task := h.addTask(t, "call", 30, 1, ptr(at(12, 0)))
		p, err := h.alloc.Allocate(ctx, task.ID, ptr(at(13, 0)), ptr(at(13, 30)))
		if err != nil {
			t.Fatalf("Allocate() failed: %v", err)
		}
		if p.Placed() || !p.Late {
			t.Errorf("Allocate() = %+v, want late", p)
		}
	})
}

func TestAutoSchedule_Ordering(t *testing.T) {
	h := newHarness(t, at(7, 0), nil)
	h.setFocus(t, false)
	a := h.addTask(t, "A no deadline, p1", 60, 1, nil)
	b := h.addTask(t, "B deadline, p3", 60, 3, ptr(at(48, 0)))
	c := h.addTask(t, "C no deadline, p0", 60, 0, nil)
	d := h.addTask(t, "D no deadline, p0, later", 60, 0, nil)

	out, err := h.alloc.AutoSchedule(context.Background(), user, ptr(at(9, 0)))
	if err != nil {
		t.Fatalf("AutoSchedule() failed: %v", err)
	}

	want := []struct {
		id    string
		start time.Time
	}{{b.ID, at(9, 0)}, {c.ID, at(10, 0)}, {d.ID, at(11, 0)}, {a.ID, at(12, 0)}}
	if len(out) != len(want) {
		t.Fatalf("AutoSchedule() returned %d placements, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i].Task.ID != w.id {
			t.Errorf("placement %d is %q, want %s", i, out[i].Task.Title, w.id)
			continue
		}
		assertSlot(t, out[i].Event, w.start, w.start.Add(time.Hour))
	}
}

func TestAutoSchedule_SkipsOverloadedDay(t *testing.T) {
	h := newHarness(t, at(7, 0), nil)
	h.setFocus(t, false)
	for i := 0; i < schema.DefaultMaxEventsPerDay; i++ {
		h.addEvent(t, "e", at(8+i, 0), at(8+i, 30), nil)
	}
	h.addTask(t, "spill", 30, 1, nil)

	out, err := h.alloc.AutoSchedule(context.Background(), user, ptr(at(9, 0)))
	if err != nil {
		t.Fatalf("AutoSchedule() failed: %v", err)
	}
	assertSlot(t, out[0].Event, at(24+8, 0), at(24+8, 30))
}

func TestAutoSchedule_NeverOverlaps(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for round := 0; round < 10; round++ {
		h := newHarness(t, at(7, 0), nil)
		h.setFocus(t, round%2 == 0)

		cursor := at(8, 0)
		for i := 0; i < 4; i++ {
			start := cursor.Add(time.Duration(rng.Intn(8)) * 15 * time.Minute)
			end := start.Add(time.Duration(1+rng.Intn(8)) * 15 * time.Minute)
			h.addEvent(t, "fixed", start, end, nil)
			cursor = end
		}
		for i := 0; i < 6; i++ {
			h.addTask(t, "task", 15*(1+rng.Intn(6)), rng.Intn(3), nil)
		}

		if _, err := h.alloc.AutoSchedule(context.Background(), user, ptr(at(8, 0))); err != nil {
			t.Fatalf("round %d: AutoSchedule() failed: %v", round, err)
		}
		if r := conflict.Detect(user, h.events(t)); r.HasConflicts() {
			t.Fatalf("round %d: placement produced overlaps:\n%s", round, r)
		}
	}
}

func TestAllocate_ConcurrentSameUser(t *testing.T) {
	h := newHarness(t, at(9, 0), nil)
	h.setFocus(t, false)

	var tasks []*schema.Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, h.addTask(t, "parallel", 60, 1, nil))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(tasks))
	for _, task := range tasks {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := h.alloc.Allocate(context.Background(), id, nil, nil); err != nil {
				errs <- err
			}
		}(task.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Allocate() failed: %v", err)
	}

	events := h.events(t)
	if len(events) != len(tasks) {
		t.Fatalf("%d events, want %d", len(events), len(tasks))
	}
	if r := conflict.Detect(user, events); r.HasConflicts() {
		t.Fatalf("concurrent allocation overlapped:\n%s", r)
	}
}

func coords(lat, lon float64) *schema.Location {
	return &schema.Location{Name: "somewhere", Latitude: &lat, Longitude: &lon}
}

func TestReshuffle_PlacesTaskAndTravel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, at(7, 0), fixedEstimator{minutes: 20})

	office := coords(48.8566, 2.3522)
	client := coords(48.8800, 2.3000)
	cancelled := h.addEvent(t, "workshop", at(10, 0), at(11, 0), office)
	boundary := h.addEvent(t, "client visit", at(13, 0), at(14, 0), client)

	bound := h.addTask(t, "workshop prep", 60, 0, nil)
	bound.EventID = cancelled.ID
	if err := h.db.UpsertTask(ctx, bound); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}
	h.addTask(t, "too long", 200, 0, nil)
	fit := h.addTask(t, "fits", 70, 1, nil)

	res, err := h.alloc.Reshuffle(ctx, cancelled.ID)
	if err != nil {
		t.Fatalf("Reshuffle() failed: %v", err)
	}

	if res.Boundary == nil || res.Boundary.ID != boundary.ID {
		t.Fatalf("boundary = %+v, want %s", res.Boundary, boundary.ID)
	}
	if res.Placement == nil || res.Placement.Task.ID != fit.ID {
		t.Fatalf("placement = %+v, want task %s", res.Placement, fit.ID)
	}
	assertSlot(t, res.Placement.Event, at(10, 0), at(11, 10))

	if res.Travel == nil {
		t.Fatal("no travel segment")
	}
	if res.Travel.DurationMinutes != 20 || !res.Travel.End.Equal(at(13, 0)) || !res.Travel.Start.Equal(at(12, 40)) {
		t.Errorf("travel = [%s, %s) %d min", res.Travel.Start.Format("15:04"), res.Travel.End.Format("15:04"), res.Travel.DurationMinutes)
	}
	if res.Travel.FromEventID != res.Placement.Event.ID || res.Travel.ToEventID != boundary.ID {
		t.Errorf("travel links %s -> %s", res.Travel.FromEventID, res.Travel.ToEventID)
	}
	segs, _ := h.db.ListTravelSegments(ctx, user, time.Time{}, time.Time{})
	if len(segs) != 1 {
		t.Errorf("%d stored segments, want 1", len(segs))
	}

	got, _ := h.db.GetEvent(ctx, cancelled.ID)
	if got.Status != schema.StatusCancelled {
		t.Errorf("cancelled event status = %s", got.Status)
	}
	released, _ := h.db.GetTask(ctx, bound.ID)
	if released.Placed() || res.Released != 1 {
		t.Errorf("bound task still placed (released=%d)", res.Released)
	}
}

func TestReshuffle_TravelShrinksSlot(t *testing.T) {
	h := newHarness(t, at(7, 0), fixedEstimator{minutes: 20})
	cancelled := h.addEvent(t, "a", at(10, 0), at(11, 0), coords(1, 1))
	h.addEvent(t, "b", at(11, 0), at(12, 0), coords(2, 2))
	h.addTask(t, "fifty", 50, 0, nil)

	res, err := h.alloc.Reshuffle(context.Background(), cancelled.ID)
	if err != nil {
		t.Fatalf("Reshuffle() failed: %v", err)
	}
	if res.Placement != nil {
		t.Errorf("placed %q in a 40-minute slot", res.Placement.Task.Title)
	}
	got, _ := h.db.GetEvent(context.Background(), cancelled.ID)
	if got.Status != schema.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}

func TestReshuffle_NoBoundaryUsesOwnInterval(t *testing.T) {
	h := newHarness(t, at(7, 0), fixedEstimator{minutes: 20})
	cancelled := h.addEvent(t, "last", at(16, 0), at(17, 0), nil)
	h.addTask(t, "ninety", 90, 0, nil)
	sixty := h.addTask(t, "sixty", 60, 1, nil)

	res, err := h.alloc.Reshuffle(context.Background(), cancelled.ID)
	if err != nil {
		t.Fatalf("Reshuffle() failed: %v", err)
	}
	if res.Placement == nil || res.Placement.Task.ID != sixty.ID {
		t.Fatalf("placement = %+v, want sixty", res.Placement)
	}
	assertSlot(t, res.Placement.Event, at(16, 0), at(17, 0))
	if res.Travel != nil {
		t.Error("travel computed without a boundary")
	}

	want := []string{KindEventCancelled, KindTaskPlaced}
	if len(h.pub.kinds) != 2 || h.pub.kinds[0] != want[0] || h.pub.kinds[1] != want[1] {
		t.Errorf("published %v, want %v", h.pub.kinds, want)
	}
}

func TestReshuffle_FreedSlotIsBounded(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		wantFreed schema.Slot
		wantTask  string
	}{
		{
			name:      "event already over",
			now:       at(15, 0),
			wantFreed: schema.Slot{Start: at(15, 0), End: at(15, 0)},
		},
		{
			name:      "next event tomorrow",
			now:       at(7, 0),
			wantFreed: schema.Slot{Start: at(10, 0), End: at(20, 0)},
			wantTask:  "nine hours",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.now, fixedEstimator{minutes: 20})
			cancelled := h.addEvent(t, "standup", at(10, 0), at(11, 0), nil)
			h.addEvent(t, "tomorrow", at(37, 0), at(38, 0), nil)
			h.addTask(t, "too long", 610, 0, nil)
			h.addTask(t, "nine hours", 540, 1, nil)

			res, err := h.alloc.Reshuffle(context.Background(), cancelled.ID)
			if err != nil {
				t.Fatalf("Reshuffle() failed: %v", err)
			}
			if !res.Freed.Start.Equal(tt.wantFreed.Start) || !res.Freed.End.Equal(tt.wantFreed.End) {
				t.Errorf("freed = [%s, %s), want [%s, %s)",
					res.Freed.Start.Format(time.DateTime), res.Freed.End.Format(time.DateTime),
					tt.wantFreed.Start.Format(time.DateTime), tt.wantFreed.End.Format(time.DateTime))
			}

			if tt.wantTask == "" {
				if res.Placement != nil {
					t.Errorf("placed %q at %s", res.Placement.Task.Title, res.Placement.Event.Start.Format(time.DateTime))
				}
			} else {
				if res.Placement == nil || res.Placement.Task.Title != tt.wantTask {
					t.Fatalf("placement = %+v, want %q", res.Placement, tt.wantTask)
				}
				if res.Placement.Event.End.After(at(20, 0)) {
					t.Errorf("placed past the working day: ends %s", res.Placement.Event.End.Format(time.DateTime))
				}
			}

			got, _ := h.db.GetEvent(context.Background(), cancelled.ID)
			if got.Status != schema.StatusCancelled {
				t.Errorf("status = %s, want cancelled", got.Status)
			}
		})
	}
}

func TestRecalculateTravel(t *testing.T) {
	h := newHarness(t, at(7, 0), fixedEstimator{minutes: 25})
	a := h.addEvent(t, "home", at(9, 0), at(10, 0), coords(1, 1))
	b := h.addEvent(t, "office", at(11, 0), at(12, 0), coords(2, 2))
	h.addEvent(t, "office again", at(13, 0), at(14, 0), coords(2, 2))
	h.addEvent(t, "nowhere", at(15, 0), at(16, 0), nil)

	segs, err := h.alloc.RecalculateTravel(context.Background(), user, "")
	if err != nil {
		t.Fatalf("RecalculateTravel() failed: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("RecalculateTravel() = %d segments, want 1", len(segs))
	}
	s := segs[0]
	if s.FromEventID != a.ID || s.ToEventID != b.ID || !s.Start.Equal(at(10, 0)) || !s.End.Equal(at(10, 25)) {
		t.Errorf("segment = %+v", s)
	}

	// Moving an endpoint drops its segments.
	if _, err := h.alloc.Reschedule(context.Background(), b.ID, at(18, 0), at(19, 0)); err != nil {
		t.Fatalf("Reschedule() failed: %v", err)
	}
	stored, _ := h.db.ListTravelSegments(context.Background(), user, time.Time{}, time.Time{})
	if len(stored) != 0 {
		t.Errorf("%d segments left after reschedule, want 0", len(stored))
	}
}

func TestReschedule_Overlap(t *testing.T) {
	h := newHarness(t, at(7, 0), nil)
	a := h.addEvent(t, "a", at(9, 0), at(10, 0), nil)
	h.addEvent(t, "b", at(11, 0), at(12, 0), nil)

	if _, err := h.alloc.Reschedule(context.Background(), a.ID, at(11, 30), at(12, 30)); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("Reschedule() = %v, want ErrSlotTaken", err)
	}
	// Sliding within its own slot is fine.
	e, err := h.alloc.Reschedule(context.Background(), a.ID, at(9, 30), at(10, 30))
	if err != nil {
		t.Fatalf("Reschedule() failed: %v", err)
	}
	if e.SyncStatus != schema.SyncUnsynced {
		t.Errorf("sync status = %s, want unsynced", e.SyncStatus)
	}
}

func TestUpdateTask_LateTaskBecomesPlaceable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, at(9, 0), nil)
	h.setFocus(t, false)
	task := h.addTask(t, "expense report", 60, 1, ptr(at(9, 0).Add(-24*time.Hour)))

	p, err := h.alloc.Allocate(ctx, task.ID, nil, nil)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	if !p.Late {
		t.Fatalf("Allocate() = %+v, want late", p)
	}
	if _, err := h.alloc.Allocate(ctx, task.ID, ptr(at(14, 0)), ptr(at(15, 0))); !errors.Is(err, ErrTaskLate) {
		t.Fatalf("Allocate() on late task = %v, want ErrTaskLate", err)
	}

	// Priority alone does not revive it.
	got, err := h.alloc.UpdateTask(ctx, task.ID, TaskUpdate{Priority: ptr(0)})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if !got.Late || got.Priority != 0 {
		t.Errorf("after priority edit late=%v priority=%d", got.Late, got.Priority)
	}

	got, err = h.alloc.UpdateTask(ctx, task.ID, TaskUpdate{Deadline: ptr(at(18, 0))})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if got.Late || !got.Pending() {
		t.Fatalf("after deadline edit late=%v pending=%v", got.Late, got.Pending())
	}
	pending, _ := h.db.FindPendingByUser(ctx, user)
	if len(pending) != 1 || pending[0].ID != task.ID {
		t.Errorf("pending = %d tasks, want the edited one", len(pending))
	}

	p, err = h.alloc.Allocate(ctx, task.ID, nil, nil)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	assertSlot(t, p.Event, at(9, 0), at(10, 0))
}

func TestUpdateTask_DurationClearsLate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, at(9, 0), nil)
	h.setFocus(t, false)
	h.addEvent(t, "busy", at(9, 0), at(11, 0), nil)
	task := h.addTask(t, "tight", 60, 1, ptr(at(11, 30)))

	if p, err := h.alloc.Allocate(ctx, task.ID, nil, nil); err != nil || !p.Late {
		t.Fatalf("Allocate() = %+v, %v, want late", p, err)
	}

	got, err := h.alloc.UpdateTask(ctx, task.ID, TaskUpdate{DurationMinutes: ptr(30)})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if got.Late {
		t.Fatal("task still late after shortening")
	}
	p, err := h.alloc.Allocate(ctx, task.ID, nil, nil)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	assertSlot(t, p.Event, at(11, 0), at(11, 30))
}

func TestUpdateTask_PlacedTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, at(7, 0), nil)
	task := h.addTask(t, "call", 30, 1, nil)
	p, err := h.alloc.Allocate(ctx, task.ID, ptr(at(15, 0)), ptr(at(15, 30)))
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}

	tests := []struct {
		name    string
		upd     TaskUpdate
		wantErr bool
		errIs   error
	}{
		{name: "longer", upd: TaskUpdate{DurationMinutes: ptr(45)}, wantErr: true, errIs: ErrTaskPlaced},
		{name: "deadline before event end", upd: TaskUpdate{Deadline: ptr(at(15, 15))}, wantErr: true, errIs: ErrTaskPlaced},
		{name: "empty title", upd: TaskUpdate{Title: ptr("")}, wantErr: true},
		{name: "renamed", upd: TaskUpdate{Title: ptr("call back")}},
		{name: "same duration", upd: TaskUpdate{DurationMinutes: ptr(30)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.alloc.UpdateTask(ctx, task.ID, tt.upd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateTask() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.errIs != nil && !errors.Is(err, tt.errIs) {
				t.Errorf("UpdateTask() = %v, want %v", err, tt.errIs)
			}
		})
	}

	e, err := h.db.GetEvent(ctx, p.Event.ID)
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if e.Title != "call back" || e.SyncStatus != schema.SyncUnsynced {
		t.Errorf("event title=%q sync=%s, want renamed and unsynced", e.Title, e.SyncStatus)
	}
	assertSlot(t, e, at(15, 0), at(15, 30))
	stored, _ := h.db.GetTask(ctx, task.ID)
	if stored.DurationMinutes != 30 || stored.Deadline != nil {
		t.Errorf("stored task = %+v, want unchanged length and no deadline", stored)
	}
}

func TestDailyCap_AddAndReschedule(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, at(7, 0), nil)
	var first *schema.Event
	for i := 0; i < schema.DefaultMaxEventsPerDay; i++ {
		e := h.addEvent(t, "meeting", at(8+i, 0), at(8+i, 30), nil)
		if first == nil {
			first = e
		}
	}

	full := &schema.Event{UserID: user, Title: "one more", Start: at(18, 0), End: at(18, 30)}
	if err := h.alloc.AddEvent(ctx, full); !focus.IsOverloaded(err) {
		t.Errorf("AddEvent() on a full day = %v, want overloaded", err)
	}

	tomorrow := &schema.Event{UserID: user, Title: "tomorrow", Start: at(33, 0), End: at(34, 0)}
	if err := h.alloc.AddEvent(ctx, tomorrow); err != nil {
		t.Fatalf("AddEvent() failed: %v", err)
	}
	if tomorrow.ID == "" || tomorrow.Source != schema.SourceLocal {
		t.Errorf("added event = %+v, want defaults applied", tomorrow)
	}

	if _, err := h.alloc.Reschedule(ctx, tomorrow.ID, at(18, 0), at(19, 0)); !focus.IsOverloaded(err) {
		t.Errorf("Reschedule() into a full day = %v, want overloaded", err)
	}
	if _, err := h.alloc.Reschedule(ctx, first.ID, at(17, 0), at(17, 30)); err != nil {
		t.Errorf("Reschedule() within the same day failed: %v", err)
	}
}
