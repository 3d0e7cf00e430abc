// Command trainer initializes or incrementally updates one symbol's model.
//
// Defaults come from the YAML config and its environment overrides; flags given
// on the command line win. The result is printed to stdout as one JSON line and
// the exit code encodes the failure kind.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"Cortexa/internal/artifact"
	"Cortexa/internal/collector"
	"Cortexa/internal/config"
	"Cortexa/internal/logger"
	"Cortexa/internal/model"
	"Cortexa/internal/recorder"
	"Cortexa/internal/trainer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	mode   string
	symbol string
	start  string
	end    string
	force  bool
	record bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trainer", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opt options
	cfgPath := fs.String("config", config.Path(), "YAML config supplying defaults")
	fs.StringVar(&opt.mode, "mode", "", "init or update")
	fs.StringVar(&opt.symbol, "symbol", "BTC-USD", "symbol to train")
	fs.StringVar(&opt.start, "start", "2020-01-01", "first day of the init window, YYYY-MM-DD")
	fs.StringVar(&opt.end, "end", "", "last day to include, YYYY-MM-DD (default today, UTC)")
	fs.BoolVar(&opt.force, "force", false, "replace an existing model on init")
	fs.BoolVar(&opt.record, "record", false, "write the run to the SQLite history")
	fs.String("interval", "", "bar interval")
	fs.Int("horizon", 0, "label horizon in bars")
	fs.Float64("threshold", 0, "forward-return threshold for the positive class")
	fs.String("artifacts", "", "artifacts directory")
	fs.String("source", "", "bar source: yahoo or csv")
	fs.String("csv", "", "CSV path for -source csv, may contain {symbol}")
	fs.Float64("signal-threshold", 0, "probability needed to enter")
	fs.Float64("cost", 0, "cost per side as a fraction")
	fs.Float64("cap", 0, "fraction of equity per trade")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := applyFlags(fs, cfg); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log = log.With().Str("symbol", opt.symbol).Str("mode", opt.mode).Logger()

	res, err := execute(ctx, cfg, opt, log)
	if opt.record {
		recordRun(cfg, opt, res, err, log)
	}
	if err != nil {
		log.Error().Err(err).Str("kind", trainer.Kind(err)).Msg("trainer failed")
		return trainer.ExitCode(err)
	}
	if err := json.NewEncoder(stdout).Encode(res); err != nil {
		log.Error().Err(err).Msg("write result")
		return 1
	}
	return 0
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(fs *flag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		v := f.Value.String()
		switch f.Name {
		case "interval":
			cfg.Model.Interval = v
		case "horizon":
			cfg.Model.Horizon, err = strconv.Atoi(v)
		case "threshold":
			cfg.Model.Threshold, err = strconv.ParseFloat(v, 64)
		case "artifacts":
			cfg.Artifacts.Dir = v
		case "source":
			cfg.Source.Kind = v
		case "csv":
			cfg.Source.CSVPath = v
		case "signal-threshold":
			cfg.Model.SignalThreshold, err = strconv.ParseFloat(v, 64)
		case "cost":
			cfg.Model.Cost, err = strconv.ParseFloat(v, 64)
		case "cap":
			cfg.Model.Cap, err = strconv.ParseFloat(v, 64)
		}
		if err != nil {
			err = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	return err
}

func execute(ctx context.Context, cfg *config.Config, opt options, log zerolog.Logger) (*trainer.Result, error) {
	end := time.Now().UTC()
	if opt.end != "" {
		t, err := time.Parse(model.DateLayout, opt.end)
		if err != nil {
			return nil, fmt.Errorf("bad -end: %w", err)
		}
		end = t
	}

	fetcher, err := collector.NewFetcher(cfg.Source.Kind, cfg.Source.CSVPath, cfg.Proxy)
	if err != nil {
		return nil, err
	}
	tr := trainer.New(collector.NewCollector(fetcher, log), artifact.NewStore(cfg.Artifacts.Dir), nil, log)
	tr.OverlapDays = cfg.Model.OverlapDays
	tr.HistoryDays = cfg.Model.HistoryDays
	tr.UpdatePasses = cfg.Model.UpdatePasses

	rule := cfg.Model.Rule
	p := trainer.Params{
		Interval:  cfg.Model.Interval,
		Horizon:   cfg.Model.Horizon,
		Threshold: cfg.Model.Threshold,
		Rule:      &rule,
	}

	switch opt.mode {
	case trainer.ModeInit:
		start, err := time.Parse(model.DateLayout, opt.start)
		if err != nil {
			return nil, fmt.Errorf("bad -start: %w", err)
		}
		y, m, d := end.Date()
		endExcl := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
		log.Info().Str("start", opt.start).Str("end", end.Format(model.DateLayout)).Str("source", fetcher.Name()).Msg("initializing model")
		return tr.Init(ctx, opt.symbol, p, start, endExcl, opt.force)
	case trainer.ModeUpdate:
		log.Info().Str("through", end.Format(model.DateLayout)).Str("source", fetcher.Name()).Msg("updating model")
		return tr.Update(ctx, opt.symbol, p, end)
	default:
		return nil, fmt.Errorf("-mode must be %s or %s, got %q", trainer.ModeInit, trainer.ModeUpdate, opt.mode)
	}
}

func recordRun(cfg *config.Config, opt options, res *trainer.Result, runErr error, log zerolog.Logger) {
	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Warn().Err(err).Msg("open run history")
		return
	}
	defer rec.Close()

	run := &recorder.SymbolRun{Symbol: opt.symbol, Mode: opt.mode, Kind: trainer.Kind(runErr)}
	if runErr != nil {
		run.Message = runErr.Error()
	}
	if res != nil {
		run.NoOp = res.NoOp
		run.PrevWatermark = res.PrevWatermark
		run.Watermark = res.Watermark
		run.Samples = res.Samples
		run.Accuracy = res.Accuracy
		run.Duration = res.Duration
		if res.Latest != nil {
			run.Proba = res.Latest.Proba
		}
	}
	if err := rec.RecordSymbolRun(run); err != nil {
		log.Warn().Err(err).Msg("record run")
	}
}
