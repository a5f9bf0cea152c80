package focus

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func slot(h1, m1, h2, m2 int) schema.Slot {
	return schema.Slot{Start: at(h1, m1), End: at(h2, m2)}
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	events []*schema.Event
	prefs  map[string]*schema.FocusPreference
}

func newFakeStore(events ...*schema.Event) *fakeStore {
	return &fakeStore{events: events, prefs: map[string]*schema.FocusPreference{}}
}

func (f *fakeStore) FindByUserAndWindow(_ context.Context, userID string, start, end time.Time) ([]*schema.Event, error) {
	var out []*schema.Event
	for _, e := range f.events {
		if e.UserID == userID && e.Active() && e.Start.Before(end) && e.End.After(start) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) CountEventsOnDay(_ context.Context, userID string, dayStart, dayEnd time.Time) (int, error) {
	n := 0
	for _, e := range f.events {
		if e.UserID == userID && e.Status != schema.StatusCancelled &&
			!e.Start.Before(dayStart) && e.Start.Before(dayEnd) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetFocusPreference(_ context.Context, userID string) (*schema.FocusPreference, error) {
	p, ok := f.prefs[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpsertFocusPreference(_ context.Context, p *schema.FocusPreference) error {
	f.prefs[p.UserID] = p
	return nil
}

func ev(id string, s schema.Slot) *schema.Event {
	return &schema.Event{
		ID: id, UserID: "u1", Title: id, Start: s.Start, End: s.End,
		Status: schema.StatusPlanned, Source: schema.SourceLocal, SyncStatus: schema.SyncUnsynced,
	}
}

func TestFreeGaps(t *testing.T) {
	window := slot(8, 0, 20, 0)

	tests := []struct {
		name string
		busy []schema.Slot
		want []schema.Slot
	}{
		{
			name: "single event",
			busy: []schema.Slot{slot(10, 0, 11, 0)},
			want: []schema.Slot{slot(8, 0, 10, 0), slot(11, 0, 20, 0)},
		},
		{
			name: "empty day",
			want: []schema.Slot{slot(8, 0, 20, 0)},
		},
		{
			name: "overlapping and unsorted busy blocks",
			busy: []schema.Slot{slot(13, 0, 14, 0), slot(10, 0, 12, 0), slot(11, 0, 12, 30)},
			want: []schema.Slot{slot(8, 0, 10, 0), slot(12, 30, 13, 0), slot(14, 0, 20, 0)},
		},
		{
			name: "blocks spilling outside the window are clipped",
			busy: []schema.Slot{slot(6, 0, 9, 0), slot(19, 0, 22, 0)},
			want: []schema.Slot{slot(9, 0, 19, 0)},
		},
		{
			name: "adjacent blocks leave no zero-length gap",
			busy: []schema.Slot{slot(8, 0, 10, 0), slot(10, 0, 20, 0)},
			want: []schema.Slot{},
		},
		{
			name: "blocks entirely outside the window",
			busy: []schema.Slot{slot(6, 0, 7, 0), slot(21, 0, 22, 0)},
			want: []schema.Slot{slot(8, 0, 20, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FreeGaps(window, tt.busy)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FreeGaps() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestFreeGaps_CoversWindow checks that gaps plus clipped busy time tile the
// window exactly and that repeated runs agree.
func TestFreeGaps_CoversWindow(t *testing.T) {
	window := slot(8, 0, 20, 0)
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 100; round++ {
		var busy []schema.Slot
		n := rng.Intn(8)
		for i := 0; i < n; i++ {
			start := at(6, 0).Add(time.Duration(rng.Intn(64)) * 15 * time.Minute)
			busy = append(busy, schema.Slot{Start: start, End: start.Add(time.Duration(1+rng.Intn(8)) * 15 * time.Minute)})
		}

		gaps := FreeGaps(window, busy)
		if diff := cmp.Diff(gaps, FreeGaps(window, busy)); diff != "" {
			t.Fatalf("round %d: FreeGaps not idempotent:\n%s", round, diff)
		}

		// Walk the window minute by minute: each minute is either in exactly
		// one gap or in some busy block, never both.
		for m := window.Start; m.Before(window.End); m = m.Add(time.Minute) {
			minute := schema.Slot{Start: m, End: m.Add(time.Minute)}
			inGaps := 0
			for _, g := range gaps {
				if g.Overlaps(minute) {
					inGaps++
				}
			}
			inBusy := false
			for _, b := range busy {
				if b.Overlaps(minute) {
					inBusy = true
					break
				}
			}
			if inBusy && inGaps > 0 {
				t.Fatalf("round %d: minute %s is both busy and free", round, m.Format("15:04"))
			}
			if !inBusy && inGaps != 1 {
				t.Fatalf("round %d: free minute %s covered by %d gaps", round, m.Format("15:04"), inGaps)
			}
		}

		if !sort.SliceIsSorted(gaps, func(i, j int) bool { return gaps[i].Start.Before(gaps[j].Start) }) {
			t.Fatalf("round %d: gaps not chronological", round)
		}
	}
}

func TestCalculator_FreeGaps(t *testing.T) {
	fs := newFakeStore(ev("meeting", slot(10, 0, 11, 0)))
	calc := New(fs, Config{})

	got, err := calc.FreeGaps(context.Background(), "u1", at(15, 0))
	if err != nil {
		t.Fatalf("FreeGaps() failed: %v", err)
	}
	want := []schema.Slot{slot(8, 0, 10, 0), slot(11, 0, 20, 0)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FreeGaps() mismatch (-want +got):\n%s", diff)
	}
}

func TestCalculator_OptimizedFocusSlots(t *testing.T) {
	tests := []struct {
		name   string
		band   schema.FocusBand
		minMin int
		want   []schema.Slot
	}{
		{"morning keeps hour-long pieces", schema.BandMorning, 60, []schema.Slot{slot(9, 0, 10, 0), slot(11, 0, 12, 0)}},
		{"morning drops short pieces", schema.BandMorning, 90, []schema.Slot{}},
		{"afternoon band", schema.BandAfternoon, 60, []schema.Slot{slot(14, 0, 17, 0)}},
		{"evening clipped by working window", schema.BandEvening, 60, []schema.Slot{slot(18, 0, 20, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore(ev("meeting", slot(10, 0, 11, 0)))
			p := schema.DefaultFocusPreference("u1")
			p.PreferredBand = tt.band
			p.MinFocusMinutes = tt.minMin
			fs.prefs["u1"] = p

			got, err := New(fs, Config{}).OptimizedFocusSlots(context.Background(), "u1", day)
			if err != nil {
				t.Fatalf("OptimizedFocusSlots() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("OptimizedFocusSlots() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCalculator_IsBlockedByFocus(t *testing.T) {
	ctx := context.Background()

	t.Run("focus mode disabled never blocks", func(t *testing.T) {
		fs := newFakeStore()
		p := schema.DefaultFocusPreference("u1")
		p.FocusModeEnabled = false
		fs.prefs["u1"] = p
		calc := New(fs, Config{})

		for h := 0; h < 24; h++ {
			blocked, err := calc.IsBlockedByFocus(ctx, "u1", at(h, 0), at(h, 30))
			if err != nil {
				t.Fatalf("IsBlockedByFocus() failed: %v", err)
			}
			if blocked {
				t.Errorf("IsBlockedByFocus(%02d:00) = true with focus mode disabled", h)
			}
		}
	})

	t.Run("default preference protects the morning", func(t *testing.T) {
		calc := New(newFakeStore(), Config{})

		tests := []struct {
			name string
			s    schema.Slot
			want bool
		}{
			{"inside band", slot(9, 30, 10, 0), true},
			{"ends as band starts", slot(8, 0, 9, 0), false},
			{"afternoon", slot(13, 0, 14, 0), false},
		}
		for _, tt := range tests {
			blocked, err := calc.IsBlockedByFocus(ctx, "u1", tt.s.Start, tt.s.End)
			if err != nil {
				t.Fatalf("IsBlockedByFocus() failed: %v", err)
			}
			if blocked != tt.want {
				t.Errorf("%s: IsBlockedByFocus() = %v, want %v", tt.name, blocked, tt.want)
			}
		}
	})
}

func TestCalculator_ValidateDailyLoad(t *testing.T) {
	ctx := context.Background()

	var events []*schema.Event
	for i := 0; i < 4; i++ {
		events = append(events, ev(string(rune('a'+i)), slot(8+i, 0, 8+i, 30)))
	}
	cancelled := ev("cancelled", slot(15, 0, 16, 0))
	cancelled.Status = schema.StatusCancelled
	events = append(events, cancelled)

	fs := newFakeStore(events...)
	calc := New(fs, Config{})

	if err := calc.ValidateDailyLoad(ctx, "u1", at(17, 0)); err != nil {
		t.Fatalf("ValidateDailyLoad() with 4 of 5 = %v, want nil", err)
	}

	fs.events = append(fs.events, ev("fifth", slot(16, 0, 17, 0)))
	err := calc.ValidateDailyLoad(ctx, "u1", at(17, 0))
	if !IsOverloaded(err) {
		t.Fatalf("ValidateDailyLoad() = %v, want overloaded", err)
	}
	var oe *OverloadedError
	if !errors.As(err, &oe) {
		t.Fatalf("error is not *OverloadedError: %T", err)
	}
	if oe.Count != 5 || oe.Max != schema.DefaultMaxEventsPerDay {
		t.Errorf("OverloadedError = %+v, want count 5 max %d", oe, schema.DefaultMaxEventsPerDay)
	}

	// The next day is unaffected.
	if err := calc.ValidateDailyLoad(ctx, "u1", at(24+9, 0)); err != nil {
		t.Errorf("ValidateDailyLoad() next day = %v, want nil", err)
	}
}

func TestCalculator_PreferencesDefaultNotPersisted(t *testing.T) {
	fs := newFakeStore()
	calc := New(fs, Config{})

	p, err := calc.Preferences(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Preferences() failed: %v", err)
	}
	if p.MaxEventsPerDay != 5 || p.MinFocusMinutes != 60 || p.PreferredBand != schema.BandMorning || !p.FocusModeEnabled {
		t.Errorf("Preferences() = %+v, want defaults", p)
	}
	if len(fs.prefs) != 0 {
		t.Error("default preference was persisted")
	}

	bad := schema.DefaultFocusPreference("u1")
	bad.MinFocusMinutes = 0
	if err := calc.UpdatePreferences(context.Background(), bad); err == nil {
		t.Error("UpdatePreferences() accepted zero min focus duration")
	}
}

func TestDayBounds_Timezone(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 UTC on Mar 2 is already Mar 3 in Paris.
	start, end := DayBounds(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC), paris)
	if start.Day() != 3 || end.Sub(start) != 24*time.Hour {
		t.Errorf("DayBounds() = %v..%v", start, end)
	}
}
