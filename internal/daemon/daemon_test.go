package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mschirtzinger/planner/internal/conflict"
	"github.com/mschirtzinger/planner/internal/reconcile"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func addAccount(t *testing.T, db *store.DB, id string, linked, enabled bool) {
	t.Helper()
	acct := &schema.Account{ID: id, Name: id, SyncEnabled: enabled}
	if linked {
		acct.Credential = "token-" + id
	}
	if err := db.UpsertAccount(context.Background(), acct); err != nil {
		t.Fatalf("UpsertAccount(%s) failed: %v", id, err)
	}
}

// fakeReconciler scripts Reconcile per user.
type fakeReconciler struct {
	reconcile.Reconciler

	mu        sync.Mutex
	calls     []string
	behaviour map[string]func() (*reconcile.Result, error)

	delay          time.Duration
	running, peak  atomic.Int32
	startedSignals chan string
}

func (f *fakeReconciler) Reconcile(ctx context.Context, userID string) (*reconcile.Result, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, userID)
	fn := f.behaviour[userID]
	f.mu.Unlock()

	if f.startedSignals != nil {
		select {
		case f.startedSignals <- userID:
		default:
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fn != nil {
		return fn()
	}
	return &reconcile.Result{UserID: userID}, nil
}

func TestNew(t *testing.T) {
	db := setupTestDB(t)
	rec := &fakeReconciler{}

	tests := []struct {
		name    string
		db      *store.DB
		rec     reconcile.Reconciler
		config  *Config
		wantErr bool
	}{
		{name: "defaults", db: db, rec: rec},
		{name: "custom schedule", db: db, rec: rec, config: &Config{Schedule: "0 9 * * 1-5"}},
		{name: "nil database", rec: rec, wantErr: true},
		{name: "nil reconciler", db: db, wantErr: true},
		{name: "bad schedule", db: db, rec: rec, config: &Config{Schedule: "every quarter hour"}, wantErr: true},
		{name: "six fields", db: db, rec: rec, config: &Config{Schedule: "0 */15 * * * *"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.db, tt.rec, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDaemon_Next(t *testing.T) {
	d, err := New(setupTestDB(t), &fakeReconciler{}, &Config{Schedule: "0 9 * * *", Location: time.UTC})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	got := d.Next(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	want := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}

	d, err = New(setupTestDB(t), &fakeReconciler{}, &Config{Location: time.UTC})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	got = d.Next(time.Date(2026, 3, 2, 10, 7, 0, 0, time.UTC))
	want = time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("default Next() = %v, want %v", got, want)
	}
}

func TestRunBatch_PerUserIsolation(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []string{"ok", "panics", "conflicted", "unavailable"} {
		addAccount(t, db, id, true, true)
	}
	addAccount(t, db, "disabled", true, false)
	addAccount(t, db, "unlinked", false, true)

	report := &conflict.Report{UserID: "conflicted", Conflicts: []conflict.Pair{{}}}
	rec := &fakeReconciler{behaviour: map[string]func() (*reconcile.Result, error){
		"panics": func() (*reconcile.Result, error) { panic("boom") },
		"conflicted": func() (*reconcile.Result, error) {
			return nil, &reconcile.ConflictError{Report: report}
		},
		"unavailable": func() (*reconcile.Result, error) {
			return nil, fmt.Errorf("list: %w", errors.New("503"))
		},
	}}

	d, err := New(db, rec, &Config{Workers: 2, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	batch, err := d.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch() failed: %v", err)
	}
	if len(batch.Outcomes) != 4 {
		t.Fatalf("batch ran %d users, want 4 eligible", len(batch.Outcomes))
	}

	byUser := map[string]Outcome{}
	for _, o := range batch.Outcomes {
		byUser[o.UserID] = o
	}
	if !byUser["ok"].OK() {
		t.Errorf("ok outcome = %+v", byUser["ok"])
	}
	if o := byUser["panics"]; !o.Panicked || o.OK() || o.Error != "panic: boom" {
		t.Errorf("panicking outcome = %+v", o)
	}
	if o := byUser["conflicted"]; o.Conflict != report {
		t.Errorf("conflicted outcome = %+v", o)
	}
	if o := byUser["unavailable"]; o.Error == "" || o.OK() {
		t.Errorf("failed outcome = %+v", o)
	}

	ok, conflicted, failed := batch.Counts()
	if ok != 1 || conflicted != 1 || failed != 2 {
		t.Errorf("Counts() = %d/%d/%d, want 1/1/2", ok, conflicted, failed)
	}
}

func TestRunBatch_WorkerLimit(t *testing.T) {
	db := setupTestDB(t)
	for i := 0; i < 6; i++ {
		addAccount(t, db, fmt.Sprintf("user-%d", i), true, true)
	}
	rec := &fakeReconciler{delay: 20 * time.Millisecond}

	d, err := New(db, rec, &Config{Workers: 2, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := d.RunBatch(context.Background()); err != nil {
		t.Fatalf("RunBatch() failed: %v", err)
	}

	if got := len(rec.calls); got != 6 {
		t.Errorf("reconciled %d users, want 6", got)
	}
	if peak := rec.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestDaemon_StartStop(t *testing.T) {
	db := setupTestDB(t)
	addAccount(t, db, "u1", true, true)
	rec := &fakeReconciler{startedSignals: make(chan string, 1)}

	d, err := New(db, rec, &Config{
		RunOnStart: true,
		ImportDir:  filepath.Join(t.TempDir(), "import"),
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Start(ctx) }()

	select {
	case user := <-rec.startedSignals:
		if user != "u1" {
			t.Errorf("reconciled %q, want u1", user)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunOnStart batch did not run")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
