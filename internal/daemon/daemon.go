package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mschirtzinger/planner/internal/conflict"
	"github.com/mschirtzinger/planner/internal/reconcile"
	"github.com/mschirtzinger/planner/internal/store"
)

// DefaultSchedule runs a batch every fifteen minutes.
const DefaultSchedule = "*/15 * * * *"

// Config holds configuration for the daemon.
type Config struct {
	// Schedule is a standard five-field cron expression
	Schedule string

	// Workers bounds how many user cycles run at once
	Workers int

	// CycleTimeout bounds a single user's cycle (0 = no limit)
	CycleTimeout time.Duration

	// Location interprets Schedule (default time.Local)
	Location *time.Location

	// RunOnStart triggers a batch as soon as Start is called
	RunOnStart bool

	// ImportDir enables the ICS drop-folder watcher when non-empty
	ImportDir string

	// DebounceInterval is how long a dropped file must stay quiet before import
	DebounceInterval time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Schedule:         DefaultSchedule,
		Workers:          4,
		CycleTimeout:     5 * time.Minute,
		Location:         time.Local,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           slog.Default(),
	}
}

// Outcome is how one user's cycle ended.
type Outcome struct {
	UserID   string            `json:"user_id"`
	Result   *reconcile.Result `json:"result,omitempty"`
	Conflict *conflict.Report  `json:"conflict,omitempty"`
	Error    string            `json:"error,omitempty"`
	Panicked bool              `json:"panicked,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// OK reports whether the cycle completed.
func (o Outcome) OK() bool {
	return o.Result != nil
}

// BatchReport summarizes one batch.
type BatchReport struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Outcomes []Outcome `json:"outcomes"`
}

// Counts returns completed, conflicted and failed cycle counts.
func (r *BatchReport) Counts() (ok, conflicted, failed int) {
	for _, o := range r.Outcomes {
		switch {
		case o.OK():
			ok++
		case o.Conflict != nil:
			conflicted++
		default:
			failed++
		}
	}
	return ok, conflicted, failed
}

// Daemon drives periodic reconciliation for all eligible users.
type Daemon struct {
	db       *store.DB
	rec      reconcile.Reconciler
	config   *Config
	schedule cron.Schedule

	batchMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates a daemon. A nil config uses DefaultConfig; zero fields of a
// non-nil config take their defaults. The schedule is validated here.
func New(db *store.DB, rec reconcile.Reconciler, config *Config) (*Daemon, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if rec == nil {
		return nil, fmt.Errorf("reconciler cannot be nil")
	}

	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Schedule == "" {
		config.Schedule = def.Schedule
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.Location == nil {
		config.Location = def.Location
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = def.DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}

	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
	}

	return &Daemon{db: db, rec: rec, config: config, schedule: schedule}, nil
}

// Next returns the next batch time after t.
func (d *Daemon) Next(t time.Time) time.Time {
	return d.schedule.Next(t.In(d.config.Location))
}

// Start schedules batches and, when configured, watches the import
// directory. It blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	log := d.config.Logger
	log.Info("starting daemon", "schedule", d.config.Schedule, "workers", d.config.Workers)

	var watcher *DropWatcher
	if d.config.ImportDir != "" {
		w, err := NewDropWatcher(d.rec, d.config.ImportDir, d.config.DebounceInterval, log)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		watcher = w
		log.Info("watching import directory", "dir", d.config.ImportDir)
	}

	c := cron.New(
		cron.WithLocation(d.config.Location),
		cron.WithLogger(cronLogger{log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
	)
	c.Schedule(d.schedule, cron.FuncJob(func() {
		d.runScheduled(ctx)
	}))
	c.Start()

	if d.config.RunOnStart {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runScheduled(ctx)
		}()
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	// Wait for running batches before closing anything they may use.
	<-c.Stop().Done()
	d.wg.Wait()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Warn("error stopping watcher", "error", err)
		}
	}
	log.Info("daemon stopped")
	return nil
}

func (d *Daemon) runScheduled(ctx context.Context) {
	report, err := d.RunBatch(ctx)
	if err != nil {
		d.config.Logger.Error("batch failed", "error", err)
		return
	}
	ok, conflicted, failed := report.Counts()
	d.config.Logger.Info("batch finished",
		"users", len(report.Outcomes), "ok", ok, "conflicted", conflicted, "failed", failed,
		"elapsed", report.Finished.Sub(report.Started))
}

// RunBatch runs one cycle for every eligible account. Only a failure to
// enumerate accounts is returned as an error; per-user failures are
// recorded in the report.
func (d *Daemon) RunBatch(ctx context.Context) (*BatchReport, error) {
	d.batchMu.Lock()
	defer d.batchMu.Unlock()

	accounts, err := d.db.ListAccounts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible accounts: %w", err)
	}

	report := &BatchReport{Started: time.Now(), Outcomes: make([]Outcome, len(accounts))}

	var g errgroup.Group
	g.SetLimit(d.config.Workers)
	for i, acct := range accounts {
		if ctx.Err() != nil {
			report.Outcomes[i] = Outcome{UserID: acct.ID, Error: ctx.Err().Error()}
			continue
		}
		g.Go(func() error {
			report.Outcomes[i] = d.RunUser(ctx, acct.ID)
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = time.Now()
	return report, nil
}

// RunUser runs one user's cycle. Errors and panics are captured in the
// outcome and logged with the user's id.
func (d *Daemon) RunUser(ctx context.Context, userID string) (out Outcome) {
	log := d.config.Logger.With("user", userID)
	start := time.Now()
	out.UserID = userID

	defer func() {
		out.Duration = time.Since(start)
		if p := recover(); p != nil {
			out.Result = nil
			out.Panicked = true
			out.Error = fmt.Sprintf("panic: %v", p)
			log.Error("reconciliation panicked", "panic", p)
		}
	}()

	if d.config.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.CycleTimeout)
		defer cancel()
	}

	res, err := d.rec.Reconcile(ctx, userID)
	if err != nil {
		if report, ok := reconcile.AsConflict(err); ok {
			out.Conflict = report
			out.Error = err.Error()
			log.Warn("reconciliation stopped on schedule conflict", "conflicts", len(report.Conflicts))
			return out
		}
		out.Error = err.Error()
		log.Error("reconciliation failed", "error", err)
		return out
	}
	out.Result = res
	return out
}

// cronLogger routes scheduler diagnostics to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
