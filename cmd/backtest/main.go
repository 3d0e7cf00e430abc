// Command backtest evaluates the direction model offline: for each symbol it
// fits on the leading part of the history, scores the held-out tail and
// simulates the threshold strategy on it. With -predictions it backtests an
// existing timestamp,future_ret,proba table instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"Cortexa/internal/backtest"
	"Cortexa/internal/collector"
	"Cortexa/internal/config"
	"Cortexa/internal/features"
	"Cortexa/internal/logger"
	"Cortexa/internal/metrics"
	"Cortexa/internal/model"
	"Cortexa/internal/recorder"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	symbols     []string
	start       time.Time
	end         time.Time
	testSize    float64
	epochs      int
	seed        uint64
	out         string
	predictions string
	saveBars    bool
	savePreds   bool
	record      bool
	metricsFile string
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", config.Path(), "YAML config supplying defaults")
	symbols := fs.String("symbols", "BTC-USD", "comma separated symbols")
	start := fs.String("start", "2020-01-01", "first day, YYYY-MM-DD")
	end := fs.String("end", "2024-01-01", "end day (exclusive), YYYY-MM-DD")
	var opt options
	fs.Float64Var(&opt.testSize, "test-size", 0.2, "held-out fraction at the end of the history")
	fs.IntVar(&opt.epochs, "epochs", 5, "passes over the training slice")
	fs.Uint64Var(&opt.seed, "seed", 42, "shuffle seed")
	fs.StringVar(&opt.out, "out", "reports", "output directory")
	fs.StringVar(&opt.predictions, "predictions", "", "backtest this predictions CSV instead of training")
	fs.BoolVar(&opt.saveBars, "save-bars", false, "also write the fetched bars to <out>/<symbol>_bars.csv")
	fs.BoolVar(&opt.savePreds, "save-predictions", false, "also write <out>/<symbol>_predictions.csv")
	fs.BoolVar(&opt.record, "record", false, "write results to the SQLite history")
	fs.StringVar(&opt.metricsFile, "metrics-file", "", "write backtest gauges to this Prometheus textfile")
	fs.String("interval", "", "bar interval")
	fs.Int("horizon", 0, "label horizon in bars")
	fs.Float64("threshold", 0, "forward-return threshold for the positive class")
	fs.Float64("signal-threshold", 0, "probability needed to enter")
	fs.Float64("cost", 0, "cost per side as a fraction")
	fs.Float64("cap", 0, "fraction of equity per trade")
	fs.String("source", "", "bar source: yahoo or csv")
	fs.String("csv", "", "CSV path for -source csv, may contain {symbol}")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*cfgPath)
	if err == nil {
		err = applyFlags(fs, cfg)
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil {
		opt.start, err = time.Parse(model.DateLayout, *start)
	}
	if err == nil {
		opt.end, err = time.Parse(model.DateLayout, *end)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	opt.symbols = config.SplitList(*symbols)

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := os.MkdirAll(opt.out, 0o755); err != nil {
		log.Error().Err(err).Msg("create output directory")
		return 1
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if opt.record {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			rec = sr
			defer sr.Close()
		}
	}

	b := &runner{cfg: cfg, opt: opt, rec: rec, metrics: metrics.New(), log: log}
	var code int
	if opt.predictions != "" {
		code = b.fromPredictions()
	} else {
		code = b.evaluateAll(ctx)
	}
	if opt.metricsFile != "" {
		if err := b.metrics.WriteTextfile(opt.metricsFile); err != nil {
			log.Warn().Err(err).Msg("write metrics textfile")
		}
	}
	return code
}

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
		case "signal-threshold":
			cfg.Model.SignalThreshold, err = strconv.ParseFloat(v, 64)
		case "cost":
			cfg.Model.Cost, err = strconv.ParseFloat(v, 64)
		case "cap":
			cfg.Model.Cap, err = strconv.ParseFloat(v, 64)
		case "source":
			cfg.Source.Kind = v
		case "csv":
			cfg.Source.CSVPath = v
		}
		if err != nil {
			err = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	return err
}

type runner struct {
	cfg     *config.Config
	opt     options
	rec     recorder.Recorder
	metrics *metrics.Recorder
	log     zerolog.Logger
}

func (r *runner) summary(symbol string) backtest.Summary {
	return backtest.Summary{
		Symbol:    symbol,
		Horizon:   r.cfg.Model.Horizon,
		Threshold: r.cfg.Model.Threshold,
		Signal:    r.cfg.Model.SignalThreshold,
		Cost:      r.cfg.Model.Cost,
		Cap:       r.cfg.Model.Cap,
	}
}

func (r *runner) fromPredictions() int {
	symbol := strings.TrimSuffix(filepath.Base(r.opt.predictions), filepath.Ext(r.opt.predictions))
	if len(r.opt.symbols) == 1 {
		symbol = r.opt.symbols[0]
	}
	log := r.log.With().Str("symbol", symbol).Str("predictions", r.opt.predictions).Logger()

	rows, err := backtest.ReadPredictionsCSV(r.opt.predictions)
	if err != nil {
		log.Error().Err(err).Msg("read predictions")
		return 1
	}
	res, err := backtest.Run(rows, backtest.Params{Horizon: r.cfg.Model.Horizon, Rule: r.cfg.Model.Rule})
	if err != nil {
		log.Error().Err(err).Msg("backtest")
		return 1
	}
	s := r.summary(symbol)
	s.Metrics = res.Metrics
	if err := r.write(symbol, s, res); err != nil {
		log.Error().Err(err).Msg("write reports")
		return 1
	}
	if err := backtest.WriteResultsCSV(filepath.Join(r.opt.out, "results.csv"), []backtest.Summary{s}); err != nil {
		log.Error().Err(err).Msg("write results")
		return 1
	}
	r.record(s)
	logMetrics(log, s)
	return 0
}

// evaluateAll runs every symbol; one symbol's failure does not stop the rest.
func (r *runner) evaluateAll(ctx context.Context) int {
	fetcher, err := collector.NewFetcher(r.cfg.Source.Kind, r.cfg.Source.CSVPath, r.cfg.Proxy)
	if err != nil {
		r.log.Error().Err(err).Msg("data source")
		return 1
	}
	col := collector.NewCollector(fetcher, r.log)
	r.log.Info().
		Strs("symbols", r.opt.symbols).
		Str("start", r.opt.start.Format(model.DateLayout)).
		Str("end", r.opt.end.Format(model.DateLayout)).
		Str("interval", r.cfg.Model.Interval).
		Int("horizon", r.cfg.Model.Horizon).
		Float64("threshold", r.cfg.Model.Threshold).
		Float64("signal_threshold", r.cfg.Model.SignalThreshold).
		Float64("test_size", r.opt.testSize).
		Float64("cost", r.cfg.Model.Cost).
		Float64("cap", r.cfg.Model.Cap).
		Msg("backtest parameters")

	var summaries []backtest.Summary
	failed := 0
	for _, sym := range r.opt.symbols {
		if ctx.Err() != nil {
			break
		}
		s, err := r.evaluate(ctx, col, sym)
		if err != nil {
			failed++
			r.log.Error().Err(err).Str("symbol", sym).Msg("backtest failed")
			continue
		}
		summaries = append(summaries, s)
	}

	if len(summaries) > 0 {
		path := filepath.Join(r.opt.out, "results.csv")
		if err := backtest.WriteResultsCSV(path, summaries); err != nil {
			r.log.Error().Err(err).Msg("write results")
			return 1
		}
		r.log.Info().Str("path", path).Int("symbols", len(summaries)).Msg("results written")
	}
	if failed > 0 || ctx.Err() != nil {
		return 1
	}
	return 0
}

func (r *runner) evaluate(ctx context.Context, col *collector.Collector, symbol string) (backtest.Summary, error) {
	log := r.log.With().Str("symbol", symbol).Logger()
	series, err := col.Collect(ctx, symbol, r.cfg.Model.Interval, r.opt.start, r.opt.end)
	if err != nil {
		return backtest.Summary{}, err
	}
	if r.opt.saveBars {
		if err := collector.WriteCSV(filepath.Join(r.opt.out, fileName(symbol)+"_bars.csv"), series.Bars); err != nil {
			log.Warn().Err(err).Msg("save bars")
		}
	}
	table, err := features.Build(series.Bars)
	if err != nil {
		return backtest.Summary{}, err
	}
	rows, err := features.LabelWithTargets(table, r.cfg.Model.Horizon, r.cfg.Model.Threshold)
	if err != nil {
		return backtest.Summary{}, err
	}
	ev, err := backtest.Evaluate(rows, backtest.EvalParams{
		Horizon:  r.cfg.Model.Horizon,
		TestSize: r.opt.testSize,
		Epochs:   r.opt.epochs,
		Seed:     r.opt.seed,
		Rule:     r.cfg.Model.Rule,
	})
	if err != nil {
		return backtest.Summary{}, fmt.Errorf("%s: %w", symbol, err)
	}

	s := r.summary(symbol)
	s.Start = r.opt.start.Format(model.DateLayout)
	s.End = r.opt.end.Format(model.DateLayout)
	s.TrainRows = ev.TrainRows
	s.TestRows = ev.TestRows
	s.Accuracy = ev.Accuracy
	s.Confusion = &ev.Confusion
	s.TPPct = ev.TPPct
	s.SLPct = ev.SLPct
	s.Metrics = ev.Backtest.Metrics

	if err := r.write(symbol, s, ev.Backtest); err != nil {
		return backtest.Summary{}, err
	}
	if r.opt.savePreds {
		path := filepath.Join(r.opt.out, fileName(symbol)+"_predictions.csv")
		if err := backtest.WritePredictionsCSV(path, backtest.Predictions(rows, ev.Proba)); err != nil {
			log.Warn().Err(err).Msg("save predictions")
		}
	}
	r.record(s)
	log.Info().
		Int("train_rows", ev.TrainRows).
		Int("test_rows", ev.TestRows).
		Float64("accuracy", ev.Accuracy).
		Str("confusion", ev.Confusion.String()).
		Msg("classification")
	logMetrics(log, s)
	return s, nil
}

func (r *runner) write(symbol string, s backtest.Summary, res *backtest.Result) error {
	base := filepath.Join(r.opt.out, fileName(symbol))
	if err := backtest.WriteEquityCSV(base+"_equity.csv", res.Equity); err != nil {
		return fmt.Errorf("write equity: %w", err)
	}
	if err := backtest.WriteSummaryJSON(base+"_summary.json", s); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func (r *runner) record(s backtest.Summary) {
	r.metrics.RecordBacktest(s.Symbol, s.Metrics.TotalReturn, s.Metrics.MaxDrawdown)
	if err := r.rec.RecordBacktest(&recorder.BacktestRun{
		Symbol:          s.Symbol,
		Horizon:         s.Horizon,
		SignalThreshold: s.Signal,
		Cost:            s.Cost,
		Cap:             s.Cap,
		TrainRows:       s.TrainRows,
		TestRows:        s.TestRows,
		Accuracy:        s.Accuracy,
		Metrics:         s.Metrics,
	}); err != nil {
		r.log.Warn().Err(err).Str("symbol", s.Symbol).Msg("record backtest")
	}
}

func logMetrics(log zerolog.Logger, s backtest.Summary) {
	m := s.Metrics
	log.Info().
		Int("trades", m.Trades).
		Str("hit_rate", pct(m.HitRate)).
		Str("avg_win", pct(m.AvgWin)).
		Str("avg_loss", pct(m.AvgLoss)).
		Str("total_return", pct(m.TotalReturn)).
		Str("mdd", pct(m.MaxDrawdown)).
		Float64("equity_last", m.EquityLast).
		Msg("strategy")
}

func pct(v float64) string { return strconv.FormatFloat(v*100, 'f', 2, 64) + "%" }

func fileName(symbol string) string { return strings.ReplaceAll(symbol, "/", "_") }
