package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mschirtzinger/planner/internal/allocate"
	"github.com/mschirtzinger/planner/internal/config"
	"github.com/mschirtzinger/planner/internal/focus"
	"github.com/mschirtzinger/planner/internal/logging"
	"github.com/mschirtzinger/planner/internal/reconcile"
	"github.com/mschirtzinger/planner/internal/remote"
	"github.com/mschirtzinger/planner/internal/remote/ics"
	"github.com/mschirtzinger/planner/internal/remote/rest"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
	"github.com/mschirtzinger/planner/internal/travel"
)

// publisher receives live-feed notifications from the allocator and the
// reconciler.
type publisher interface {
	Publish(userID, kind string, data any)
}

// app is the wired set of components a command works with.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	loc    *time.Location
	mode   schema.TransportMode

	db        *store.DB
	focus     *focus.Calculator
	estimator travel.Estimator
	alloc     *allocate.Allocator
	rec       reconcile.Reconciler

	closers []io.Closer
}

// loadConfig reads and validates the configuration and sets up logging.
func loadConfig() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, closer, nil
}

// openApp loads the configuration and wires every component. pub may be nil.
func openApp(pub publisher) (*app, error) {
	cfg, logger, logCloser, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return wireApp(cfg, logger, logCloser, pub)
}

// wireApp opens the store and builds the services on top of it.
func wireApp(cfg *config.Config, logger *slog.Logger, logCloser io.Closer, pub publisher) (*app, error) {
	loc, _ := cfg.Location()
	mode, _ := schema.ParseTransportMode(cfg.Travel.DefaultMode)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		loc:     loc,
		mode:    mode,
		db:      db,
		closers: []io.Closer{db, logCloser},
	}

	a.focus = focus.New(db, focus.Config{
		DayStartHour: cfg.Focus.DayStart,
		DayEndHour:   cfg.Focus.DayEnd,
		Location:     loc,
	})
	a.estimator = newEstimator(cfg, logger)

	allocCfg := allocate.DefaultConfig()
	allocCfg.Mode = mode
	allocCfg.Logger = logger.With("component", "allocate")
	if pub != nil {
		allocCfg.Publisher = pub
	}
	a.alloc = allocate.New(db, a.focus, a.estimator, allocCfg)

	recCfg := reconcile.DefaultConfig()
	recCfg.Window = cfg.SyncWindow()
	recCfg.Logger = logger.With("component", "reconcile")
	if pub != nil {
		recCfg.Publisher = pub
	}
	a.rec = reconcile.New(db, newRemote(cfg), recCfg)

	return a, nil
}

// Close releases the store and the log output.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// now returns the current time in the configured timezone.
func (a *app) now() time.Time {
	return time.Now().In(a.loc)
}

func newRemote(cfg *config.Config) remote.Client {
	client := &http.Client{Timeout: cfg.Sync.RemoteTimeout}
	if cfg.Remote.Kind == config.RemoteICS {
		return ics.New(client, cfg.Sync.RemoteTimeout)
	}
	return rest.New(cfg.Remote.BaseURL, client, cfg.Sync.RemoteTimeout)
}

func newEstimator(cfg *config.Config, logger *slog.Logger) travel.Estimator {
	if cfg.Travel.APIKey == "" {
		return travel.Heuristic{}
	}
	return travel.NewMatrix(travel.MatrixConfig{
		BaseURL: cfg.Travel.BaseURL,
		APIKey:  cfg.Travel.APIKey,
		Timeout: cfg.Travel.Timeout,
		Logger:  logger.With("component", "travel"),
	})
}

// mustOpen opens the app or exits.
func mustOpen(pub publisher) *app {
	a, err := openApp(pub)
	if err != nil {
		fatalf("%v", err)
	}
	return a
}
