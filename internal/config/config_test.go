package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"TZ", "RUN_AT", "COINS", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.RunAt != "06:05" || cfg.Scheduler.Timezone != "Europe/Istanbul" {
		t.Errorf("unexpected trigger defaults %q %q", cfg.Scheduler.RunAt, cfg.Scheduler.Timezone)
	}
	if cfg.Scheduler.PollInterval != 10*time.Second || cfg.Scheduler.Cooldown != 70*time.Second {
		t.Errorf("unexpected timing defaults %v %v", cfg.Scheduler.PollInterval, cfg.Scheduler.Cooldown)
	}
	m := cfg.Model
	if m.Interval != "1d" || m.Horizon != 5 || m.Threshold != 0.03 ||
		m.SignalThreshold != 0.6 || m.Cost != 0.001 || m.Cap != 0.3 {
		t.Errorf("unexpected model defaults %+v", m)
	}
	if cfg.Artifacts.Dir != "artifacts" || cfg.Scheduler.Workers != 1 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
scheduler:
  run_at: "07:30"
  workers: 2
model:
  horizon: 3
  signal_threshold: 0.7
symbols:
  list: [BTC, ETH]
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COINS", "SOL, XRP ADA")
	t.Setenv("CAP", "0.5")
	t.Setenv("STARTUP_RUN", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.RunAt != "07:30" || cfg.Scheduler.Workers != 2 || cfg.Model.Horizon != 3 {
		t.Errorf("file values not applied: %+v", cfg.Scheduler)
	}
	if cfg.Model.SignalThreshold != 0.7 || cfg.Model.Cap != 0.5 || cfg.Model.Cost != 0.001 {
		t.Errorf("rule = %+v", cfg.Model.Rule)
	}
	if !slices.Equal(cfg.Symbols.List, []string{"SOL", "XRP", "ADA"}) {
		t.Errorf("COINS override = %v", cfg.Symbols.List)
	}
	if !cfg.Scheduler.StartupRun {
		t.Error("STARTUP_RUN not applied")
	}
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("HORIZON", "five")
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error for non-numeric HORIZON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero horizon", func(c *Config) { c.Model.Horizon = 0 }, "Horizon"},
		{"bad runner", func(c *Config) { c.Scheduler.Runner = "cron" }, "Runner"},
		{"csv without path", func(c *Config) { c.Source.Kind = "csv" }, "CSVPath"},
		{"bad webhook", func(c *Config) { c.Webhook.URL = "not a url" }, "URL"},
		{"cap above one", func(c *Config) { c.Model.Cap = 2 }, "cap"},
	}
	for _, tt := range tests {
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		tt.mutate(cfg)
		err = cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.field) {
			t.Errorf("%s: expected error mentioning %s, got %v", tt.name, tt.field, err)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" BTC,ETH;;SOL\tXRP ")
	if !slices.Equal(got, []string{"BTC", "ETH", "SOL", "XRP"}) {
		t.Errorf("SplitList = %v", got)
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	for _, key := range []string{"TZ", "RUN_AT", "COINS", "LOG_LEVEL", "SYMBOLS_FILE"} {
		t.Setenv(key, "")
	}
	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
	if cfg.Symbols.File != "symbols.txt" || cfg.Scheduler.Runner != "inprocess" {
		t.Errorf("unexpected sample values %+v", cfg)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	if got := Path(); got != DefaultPath {
		t.Errorf("Path() = %q", got)
	}
	t.Setenv("CONFIG_PATH", "/etc/cortexa.yaml")
	if got := Path(); got != "/etc/cortexa.yaml" {
		t.Errorf("Path() = %q", got)
	}
}
