package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Sync.Cron != "*/15 * * * *" || cfg.Sync.Workers != 4 || cfg.Focus.DayStart != 8 || cfg.Focus.DayEnd != 20 {
		t.Errorf("defaults = %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `timezone: Europe/Paris
sync:
  workers: 2
  remote_timeout: 3s
remote:
  kind: ics
  base_url: https://calendar.example.com
import:
  dir: /tmp/drop
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	t.Setenv("PLANNER_FOCUS_DAY_START", "7")
	t.Setenv("PLANNER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"timezone from file", cfg.Timezone, "Europe/Paris"},
		{"workers from file", cfg.Sync.Workers, 2},
		{"duration from file", cfg.Sync.RemoteTimeout, 3 * time.Second},
		{"remote kind from file", cfg.Remote.Kind, RemoteICS},
		{"import dir from file", cfg.Import.Dir, "/tmp/drop"},
		{"cron defaulted", cfg.Sync.Cron, "*/15 * * * *"},
		{"window defaulted", cfg.Sync.WindowDays, 30},
		{"day start from env", cfg.Focus.DayStart, 7},
		{"day end defaulted", cfg.Focus.DayEnd, 20},
		{"log level from env", cfg.Log.Level, "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestSave_PreservesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Travel.Timeout = 1500 * time.Millisecond
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if !strings.Contains(string(data), "timeout: 1.5s") {
		t.Errorf("saved YAML does not carry a readable duration:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Travel.Timeout != 1500*time.Millisecond {
		t.Errorf("travel.timeout = %v", loaded.Travel.Timeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad cron", func(c *Config) { c.Sync.Cron = "every minute" }, "sync.cron"},
		{"seconds field not accepted", func(c *Config) { c.Sync.Cron = "0 */15 * * * *" }, "sync.cron"},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"inverted day", func(c *Config) { c.Focus.DayStart, c.Focus.DayEnd = 18, 9 }, "focus.day_start"},
		{"day past midnight", func(c *Config) { c.Focus.DayEnd = 25 }, "focus.day_start"},
		{"unknown remote kind", func(c *Config) { c.Remote.Kind = "caldav" }, "remote.kind"},
		{"unknown travel mode", func(c *Config) { c.Travel.DefaultMode = "teleport" }, "travel.default_mode"},
		{"unknown log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteTOML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Travel.APIKey = "secret-key"

	var buf bytes.Buffer
	if err := cfg.WriteTOML(&buf); err != nil {
		t.Fatalf("WriteTOML() failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[sync]", `cron = "*/15 * * * *"`, "[focus]", "day_start = 8"} {
		if !strings.Contains(out, want) {
			t.Errorf("TOML output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret-key") {
		t.Error("TOML output leaks the travel API key")
	}
	if cfg.Travel.APIKey != "secret-key" {
		t.Error("WriteTOML modified the config")
	}
}
