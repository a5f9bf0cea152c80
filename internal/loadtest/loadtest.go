// Package loadtest drives the allocator and the focus calculator with many
// concurrent callers to measure latency and to check that the per-user
// timelines stay overlap-free under contention.
package loadtest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mschirtzinger/planner/internal/allocate"
	"github.com/mschirtzinger/planner/internal/conflict"
	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
	"github.com/mschirtzinger/planner/internal/travel"
)

// Options shapes the generated workload.
type Options struct {
	Users         int
	TasksPerUser  int
	EventsPerUser int
	// Day is the first day of the generated timelines (default tomorrow, UTC)
	Day time.Time
	// Seed makes task lengths and priorities reproducible
	Seed int64
}

// DefaultOptions returns a small workload.
func DefaultOptions() Options {
	return Options{Users: 10, TasksPerUser: 20, EventsPerUser: 3, Seed: 42}
}

// Fixture is a populated database with the services under test.
type Fixture struct {
	DB        *store.DB
	Focus     *focus.Calculator
	Allocator *allocate.Allocator
	UserIDs   []string
	TaskIDs   map[string][]string
	Day       time.Time
}

// LatencyStats captures call latencies.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	TotalCalls int
	Errors     int
}

// NewFixture creates a database at dbPath and fills it according to opts.
func NewFixture(dbPath string, opts Options) (*Fixture, error) {
	if opts.Users <= 0 || opts.TasksPerUser < 0 || opts.EventsPerUser < 0 {
		return nil, fmt.Errorf("invalid workload %+v", opts)
	}
	if opts.Day.IsZero() {
		opts.Day = time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	fc := focus.New(db, focus.DefaultConfig())
	now := fc.Window(opts.Day).Start
	alloc := allocate.New(db, fc, travel.Heuristic{}, &allocate.Config{
		Now:    func() time.Time { return now },
		Logger: slog.New(slog.DiscardHandler),
	})

	f := &Fixture{
		DB:        db,
		Focus:     fc,
		Allocator: alloc,
		TaskIDs:   make(map[string][]string, opts.Users),
		Day:       opts.Day,
	}
	if err := f.populate(context.Background(), opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return f, nil
}

func (f *Fixture) populate(ctx context.Context, opts Options) error {
	rng := rand.New(rand.NewSource(opts.Seed))
	lengths := []int{15, 30, 30, 45, 60, 90}
	// Weighted toward the default priority.
	priorities := []int{0, 1, 2, 2, 2, 2, 3, 4}

	for u := 0; u < opts.Users; u++ {
		userID := fmt.Sprintf("load-%03d", u)
		f.UserIDs = append(f.UserIDs, userID)

		acct := &schema.Account{ID: userID, Name: userID, SyncEnabled: true, CreatedAt: opts.Day}
		if err := f.DB.UpsertAccount(ctx, acct); err != nil {
			return err
		}

		for i := 0; i < opts.EventsPerUser; i++ {
			start := f.Focus.Window(opts.Day).Start.Add(time.Duration(1+2*i) * time.Hour)
			e := &schema.Event{
				UserID: userID,
				Title:  fmt.Sprintf("Meeting %d", i),
				Start:  start,
				End:    start.Add(30 * time.Minute),
			}
			e.SetDefaults()
			if err := f.DB.UpsertEvent(ctx, e); err != nil {
				return fmt.Errorf("failed to insert event for %s: %w", userID, err)
			}
		}

		for i := 0; i < opts.TasksPerUser; i++ {
			t := &schema.Task{
				UserID:          userID,
				Title:           fmt.Sprintf("Task %d", i),
				DurationMinutes: lengths[rng.Intn(len(lengths))],
				Priority:        priorities[rng.Intn(len(priorities))],
			}
			t.SetDefaults()
			if err := f.DB.UpsertTask(ctx, t); err != nil {
				return fmt.Errorf("failed to insert task for %s: %w", userID, err)
			}
			f.TaskIDs[userID] = append(f.TaskIDs[userID], t.ID)
		}
	}
	return nil
}

// Close closes the fixture database.
func (f *Fixture) Close() error {
	return f.DB.Close()
}

// RunAllocation places every generated task with perUser concurrent callers
// for each user, all users at once. Tasks of one user are dealt round-robin
// to that user's callers.
func (f *Fixture) RunAllocation(ctx context.Context, perUser int) (*LatencyStats, error) {
	if perUser <= 0 {
		perUser = 1
	}

	var mu sync.Mutex
	var durations []time.Duration
	errCount := 0

	var g errgroup.Group
	for _, userID := range f.UserIDs {
		tasks := f.TaskIDs[userID]
		for w := 0; w < perUser; w++ {
			g.Go(func() error {
				local := make([]time.Duration, 0, len(tasks)/perUser+1)
				failed := 0
				for i := w; i < len(tasks); i += perUser {
					start := time.Now()
					_, err := f.Allocator.Allocate(ctx, tasks[i], nil, nil)
					local = append(local, time.Since(start))
					if err != nil {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						failed++
					}
				}
				mu.Lock()
				durations = append(durations, local...)
				errCount += failed
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(durations) == 0 {
		return nil, fmt.Errorf("no allocations ran")
	}

	stats := computeLatencyStats(durations)
	stats.Errors = errCount
	return stats, nil
}

// RunGapQueries runs readers concurrent FreeGaps callers, each issuing
// queries lookups against users in turn.
func (f *Fixture) RunGapQueries(ctx context.Context, readers, queries int) (*LatencyStats, error) {
	results := make([][]time.Duration, readers)
	errs := make([]int, readers)

	var g errgroup.Group
	for r := 0; r < readers; r++ {
		g.Go(func() error {
			local := make([]time.Duration, 0, queries)
			for j := 0; j < queries; j++ {
				userID := f.UserIDs[(r+j)%len(f.UserIDs)]
				start := time.Now()
				_, err := f.Focus.FreeGaps(ctx, userID, f.Day)
				local = append(local, time.Since(start))
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					errs[r]++
				}
			}
			results[r] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []time.Duration
	errCount := 0
	for r := range results {
		all = append(all, results[r]...)
		errCount += errs[r]
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no queries ran")
	}
	stats := computeLatencyStats(all)
	stats.Errors = errCount
	return stats, nil
}

// Verify checks every user's timeline: no two active events overlap and no
// task is bound to more than one event.
func (f *Fixture) Verify(ctx context.Context) error {
	for _, userID := range f.UserIDs {
		events, err := f.DB.ListEvents(ctx, store.EventFilter{UserID: userID, ActiveOnly: true})
		if err != nil {
			return err
		}
		if report := conflict.Detect(userID, events); report.HasConflicts() {
			return fmt.Errorf("%s: %s", userID, report)
		}

		bound := make(map[string]string)
		for _, e := range events {
			if e.TaskID == "" {
				continue
			}
			if other, ok := bound[e.TaskID]; ok {
				return fmt.Errorf("%s: task %s bound to both %s and %s", userID, e.TaskID, other, e.ID)
			}
			bound[e.TaskID] = e.ID
		}
	}
	return nil
}

// Placed counts the generated tasks that ended up on a timeline.
func (f *Fixture) Placed(ctx context.Context) (int, error) {
	placed := 0
	for _, userID := range f.UserIDs {
		tasks, err := f.DB.ListTasks(ctx, store.TaskFilter{UserID: userID})
		if err != nil {
			return 0, err
		}
		for _, t := range tasks {
			if t.Placed() {
				placed++
			}
		}
	}
	return placed, nil
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(sorted)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		TotalCalls: len(sorted),
	}
}

// Rows renders the statistics as label/value pairs.
func (s *LatencyStats) Rows() [][]string {
	return [][]string{
		{"Calls", fmt.Sprint(s.TotalCalls)},
		{"Errors", fmt.Sprint(s.Errors)},
		{"Min", s.Min.String()},
		{"P50", s.P50.String()},
		{"Mean", s.Mean.String()},
		{"P95", s.P95.String()},
		{"P99", s.P99.String()},
		{"Max", s.Max.String()},
	}
}
