// Package config loads and saves the planner's YAML configuration.
//
// The file is read through viper so every key can be overridden from the
// environment: sync.workers becomes PLANNER_SYNC_WORKERS. A missing file is
// created with defaults on first load.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/planner/internal/schema"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLANNER"

// Remote calendar kinds.
const (
	RemoteREST = "rest"
	RemoteICS  = "ics"
)

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path" toml:"path"`
}

// SyncConfig drives the reconciliation daemon.
type SyncConfig struct {
	// Cron is a standard five-field schedule
	Cron          string        `yaml:"cron" mapstructure:"cron" toml:"cron"`
	Workers       int           `yaml:"workers" mapstructure:"workers" toml:"workers"`
	WindowDays    int           `yaml:"window_days" mapstructure:"window_days" toml:"window_days"`
	RemoteTimeout time.Duration `yaml:"remote_timeout" mapstructure:"remote_timeout" toml:"remote_timeout"`
}

// RemoteConfig selects the remote calendar client.
type RemoteConfig struct {
	// Kind is "rest" or "ics"
	Kind    string `yaml:"kind" mapstructure:"kind" toml:"kind"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" toml:"base_url"`
}

// TravelConfig configures the travel-time provider. Without an API key the
// heuristic estimator is used.
type TravelConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key" toml:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url" toml:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout" toml:"timeout"`
	DefaultMode string        `yaml:"default_mode" mapstructure:"default_mode" toml:"default_mode"`
}

// FocusConfig bounds the working day.
type FocusConfig struct {
	DayStart int `yaml:"day_start" mapstructure:"day_start" toml:"day_start"`
	DayEnd   int `yaml:"day_end" mapstructure:"day_end" toml:"day_end"`
}

// DashboardConfig configures the HTTP server.
type DashboardConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr" toml:"addr"`
}

// ImportConfig configures the ICS drop folder. Empty disables it.
type ImportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir" toml:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" toml:"level"`
	// File enables rotated file output
	File string `yaml:"file" mapstructure:"file" toml:"file"`
}

// Config is the top-level application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database" toml:"database"`
	Timezone  string          `yaml:"timezone" mapstructure:"timezone" toml:"timezone"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync" toml:"sync"`
	Remote    RemoteConfig    `yaml:"remote" mapstructure:"remote" toml:"remote"`
	Travel    TravelConfig    `yaml:"travel" mapstructure:"travel" toml:"travel"`
	Focus     FocusConfig     `yaml:"focus" mapstructure:"focus" toml:"focus"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard" toml:"dashboard"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import" toml:"import"`
	Log       LogConfig       `yaml:"log" mapstructure:"log" toml:"log"`
}

// DefaultDir returns the directory holding the default config and database.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "planner")
	}
	return ".planner"
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(DefaultDir(), "planner.db")},
		Timezone: "UTC",
		Sync: SyncConfig{
			Cron:          "*/15 * * * *",
			Workers:       4,
			WindowDays:    30,
			RemoteTimeout: 10 * time.Second,
		},
		Remote: RemoteConfig{Kind: RemoteREST},
		Travel: TravelConfig{
			Timeout:     5 * time.Second,
			DefaultMode: string(schema.ModeDriving),
		},
		Focus:     FocusConfig{DayStart: 8, DayEnd: 20},
		Dashboard: DashboardConfig{Addr: "127.0.0.1:8080"},
		Log:       LogConfig{Level: "info"},
	}
}

// Normalize fills in missing or zero values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Sync.Cron == "" {
		c.Sync.Cron = def.Sync.Cron
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = def.Sync.Workers
	}
	if c.Sync.WindowDays <= 0 {
		c.Sync.WindowDays = def.Sync.WindowDays
	}
	if c.Sync.RemoteTimeout <= 0 {
		c.Sync.RemoteTimeout = def.Sync.RemoteTimeout
	}
	if c.Remote.Kind == "" {
		c.Remote.Kind = def.Remote.Kind
	}
	if c.Travel.Timeout <= 0 {
		c.Travel.Timeout = def.Travel.Timeout
	}
	if c.Travel.DefaultMode == "" {
		c.Travel.DefaultMode = def.Travel.DefaultMode
	}
	if c.Focus.DayStart == 0 && c.Focus.DayEnd == 0 {
		c.Focus = def.Focus
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = def.Dashboard.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate rejects values the rest of the system cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.Sync.Cron); err != nil {
		errs = append(errs, fmt.Errorf("sync.cron %q: %w", c.Sync.Cron, err))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if c.Focus.DayStart < 0 || c.Focus.DayEnd > 24 || c.Focus.DayStart >= c.Focus.DayEnd {
		errs = append(errs, fmt.Errorf("focus.day_start/day_end must satisfy 0 <= start < end <= 24 (got %d-%d)",
			c.Focus.DayStart, c.Focus.DayEnd))
	}
	if c.Sync.Workers <= 0 {
		errs = append(errs, fmt.Errorf("sync.workers must be positive (got %d)", c.Sync.Workers))
	}
	switch c.Remote.Kind {
	case RemoteREST, RemoteICS:
	default:
		errs = append(errs, fmt.Errorf("remote.kind %q: want %s or %s", c.Remote.Kind, RemoteREST, RemoteICS))
	}
	if _, err := schema.ParseTransportMode(c.Travel.DefaultMode); err != nil {
		errs = append(errs, fmt.Errorf("travel.default_mode: %w", err))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// SyncWindow returns sync.window_days as a duration.
func (c *Config) SyncWindow() time.Duration {
	return time.Duration(c.Sync.WindowDays) * 24 * time.Hour
}

// Load reads configuration from path (DefaultPath when empty), applying
// PLANNER_* environment overrides. A missing file is created with
// defaults first.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Save(path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file omits it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("sync.cron", d.Sync.Cron)
	v.SetDefault("sync.workers", d.Sync.Workers)
	v.SetDefault("sync.window_days", d.Sync.WindowDays)
	v.SetDefault("sync.remote_timeout", d.Sync.RemoteTimeout)
	v.SetDefault("remote.kind", d.Remote.Kind)
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("travel.api_key", d.Travel.APIKey)
	v.SetDefault("travel.base_url", d.Travel.BaseURL)
	v.SetDefault("travel.timeout", d.Travel.Timeout)
	v.SetDefault("travel.default_mode", d.Travel.DefaultMode)
	v.SetDefault("focus.day_start", d.Focus.DayStart)
	v.SetDefault("focus.day_end", d.Focus.DayEnd)
	v.SetDefault("dashboard.addr", d.Dashboard.Addr)
	v.SetDefault("import.dir", d.Import.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".planner-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteTOML renders the configuration as TOML. The travel API key is masked.
func (c *Config) WriteTOML(w io.Writer) error {
	shown := *c
	if shown.Travel.APIKey != "" {
		shown.Travel.APIKey = "********"
	}
	return toml.NewEncoder(w).Encode(shown)
}
