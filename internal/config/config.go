package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"Cortexa/internal/logger"
	"Cortexa/internal/strategy"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

// Path returns $CONFIG_PATH, or DefaultPath when it is unset.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return DefaultPath
}

// Config holds all application configuration.
type Config struct {
	Scheduler struct {
		RunAt        string        `yaml:"run_at" default:"06:05" validate:"required"`
		Timezone     string        `yaml:"timezone" default:"Europe/Istanbul"`
		PollInterval time.Duration `yaml:"poll_interval" default:"10s" validate:"gt=0"`
		Cooldown     time.Duration `yaml:"cooldown" default:"70s" validate:"gte=0"`
		Spacing      time.Duration `yaml:"spacing" default:"2s" validate:"gte=0"`
		Workers      int           `yaml:"workers" default:"1" validate:"min=1,max=32"`
		StartupRun   bool          `yaml:"startup_run"`
		StateFile    string        `yaml:"state_file" default:"data/scheduler_state.json" validate:"required"`
		Runner       string        `yaml:"runner" default:"inprocess" validate:"oneof=inprocess exec"`
		TrainerBin   string        `yaml:"trainer_bin" default:"bin/trainer"`
		LogDir       string        `yaml:"log_dir" default:"logs"`
	} `yaml:"scheduler"`
	Symbols struct {
		List []string `yaml:"list"`
		File string   `yaml:"file"`
	} `yaml:"symbols"`
	Model struct {
		Interval      string  `yaml:"interval" default:"1d" validate:"required"`
		Horizon       int     `yaml:"horizon" default:"5" validate:"min=1"`
		Threshold     float64 `yaml:"threshold" default:"0.03" validate:"gte=-1,lte=1"`
		OverlapDays   int     `yaml:"overlap_days" default:"5" validate:"min=0"`
		HistoryDays   int     `yaml:"history_days" default:"400" validate:"min=0"`
		UpdatePasses  int     `yaml:"update_passes" default:"3" validate:"min=1"`
		strategy.Rule `yaml:",inline"`
	} `yaml:"model"`
	Artifacts struct {
		Dir string `yaml:"dir" default:"artifacts" validate:"required"`
	} `yaml:"artifacts"`
	Source struct {
		Kind    string `yaml:"kind" default:"yahoo" validate:"oneof=yahoo csv"`
		CSVPath string `yaml:"csv_path" validate:"required_if=Kind csv"`
	} `yaml:"source"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Polling  bool   `yaml:"polling"`
	} `yaml:"telegram"`
	Webhook struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"webhook"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" default:"data/cortexa.db"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log   logger.Config `yaml:"log"`
	Proxy string        `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"RUN_AT":             &c.Scheduler.RunAt,
		"TZ":                 &c.Scheduler.Timezone,
		"SCHEDULER_STATE":    &c.Scheduler.StateFile,
		"TRAINER_BIN":        &c.Scheduler.TrainerBin,
		"SYMBOLS_FILE":       &c.Symbols.File,
		"INTERVAL":           &c.Model.Interval,
		"ARTIFACTS_DIR":      &c.Artifacts.Dir,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"PING_URL":           &c.Webhook.URL,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"LOG_LEVEL":          &c.Log.Level,
		"METRICS_ADDR":       &c.Metrics.Addr,
		"HTTPS_PROXY":        &c.Proxy,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"THRESHOLD":     &c.Model.Threshold,
		"SIGNAL_THRESH": &c.Model.SignalThreshold,
		"COST":          &c.Model.Cost,
		"CAP":           &c.Model.Cap,
	}
	for key, dst := range floats {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("env %s=%q: %w", key, v, err)
			}
			*dst = f
		}
	}

	if v := strings.TrimSpace(os.Getenv("HORIZON")); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env HORIZON=%q: %w", v, err)
		}
		c.Model.Horizon = h
	}
	if v := strings.TrimSpace(os.Getenv("STARTUP_RUN")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env STARTUP_RUN=%q: %w", v, err)
		}
		c.Scheduler.StartupRun = b
	}
	if v := os.Getenv("COINS"); strings.TrimSpace(v) != "" {
		c.Symbols.List = SplitList(v)
	}
	return nil
}

// SplitList splits a comma or whitespace separated list.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
}

// Validate checks field ranges and the strategy rule.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Model.Rule.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
