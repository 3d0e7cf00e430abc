package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"Cortexa/internal/artifact"
	"Cortexa/internal/collector"
	"Cortexa/internal/config"
	"Cortexa/internal/logger"
	"Cortexa/internal/metrics"
	"Cortexa/internal/notifier"
	"Cortexa/internal/recorder"
	"Cortexa/internal/scheduler"
	"Cortexa/internal/trainer"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfgPath := config.Path()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("config validation")
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		boot.Fatal().Err(err).Msg("init logger")
	}
	log.Info().Str("config", cfgPath).Msg("Cortexa scheduler starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Recorder
	if cfg.Metrics.Addr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.Error().Err(err).Msg("metrics listener")
			}
		}()
	}

	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	var channels []notifier.Notifier
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		channels = append(channels, tn)
	}
	if cfg.Webhook.URL != "" {
		channels = append(channels, notifier.NewWebhookNotifier(cfg.Webhook.URL, "cortexa-scheduler", log))
	}
	chain := notifier.NewChain(log, m, channels...)
	log.Info().Int("channels", chain.Len()).Msg("notifications configured")

	runner, err := newRunner(cfg, cfgPath, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init runner")
	}

	sched, err := scheduler.New(scheduler.Config{
		RunAt:        cfg.Scheduler.RunAt,
		Timezone:     cfg.Scheduler.Timezone,
		PollInterval: cfg.Scheduler.PollInterval,
		Cooldown:     cfg.Scheduler.Cooldown,
		Spacing:      cfg.Scheduler.Spacing,
		Workers:      cfg.Scheduler.Workers,
		StartupRun:   cfg.Scheduler.StartupRun,
		StateFile:    cfg.Scheduler.StateFile,
		Symbols:      cfg.Symbols.List,
		SymbolsFile:  cfg.Symbols.File,
	}, runner, chain, rec, m, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init scheduler")
	}

	if tn != nil && cfg.Telegram.Polling {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if err := sched.Run(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler")
	}
	log.Info().Msg("Cortexa scheduler stopped")
}

func newRunner(cfg *config.Config, cfgPath string, m *metrics.Recorder, log zerolog.Logger) (scheduler.Runner, error) {
	rule := cfg.Model.Rule
	params := trainer.Params{
		Interval:  cfg.Model.Interval,
		Horizon:   cfg.Model.Horizon,
		Threshold: cfg.Model.Threshold,
		Rule:      &rule,
	}

	if cfg.Scheduler.Runner == "exec" {
		extra := []string{"-config", cfgPath, "-artifacts", cfg.Artifacts.Dir, "-source", cfg.Source.Kind}
		if cfg.Source.CSVPath != "" {
			extra = append(extra, "-csv", cfg.Source.CSVPath)
		}
		log.Info().Str("bin", cfg.Scheduler.TrainerBin).Msg("updates run through the trainer binary")
		return &scheduler.ExecRunner{
			Bin:    cfg.Scheduler.TrainerBin,
			Params: params,
			Extra:  extra,
			LogDir: cfg.Scheduler.LogDir,
		}, nil
	}

	fetcher, err := collector.NewFetcher(cfg.Source.Kind, cfg.Source.CSVPath, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	log.Info().Str("source", fetcher.Name()).Str("artifacts", cfg.Artifacts.Dir).Msg("updates run in process")
	tr := trainer.New(collector.NewCollector(fetcher, log), artifact.NewStore(cfg.Artifacts.Dir), m, log)
	tr.OverlapDays = cfg.Model.OverlapDays
	tr.HistoryDays = cfg.Model.HistoryDays
	tr.UpdatePasses = cfg.Model.UpdatePasses
	return &scheduler.InProcessRunner{Trainer: tr, Params: params}, nil
}
