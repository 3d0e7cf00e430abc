// Package trainer keeps one persisted model per symbol up to date. A symbol moves
// from Uninitialized to Initialized through Init; Update then folds newly labeled
// bars into the existing scaler and classifier without retraining from scratch.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"Cortexa/internal/artifact"
	"Cortexa/internal/backtest"
	"Cortexa/internal/collector"
	"Cortexa/internal/features"
	"Cortexa/internal/learner"
	"Cortexa/internal/metrics"
	"Cortexa/internal/model"
	"Cortexa/internal/strategy"
)

// State is the lifecycle state of a symbol's model.
type State string

const (
	Uninitialized State = "UNINITIALIZED"
	Initialized   State = "INITIALIZED"
)

const (
	ModeInit   = "init"
	ModeUpdate = "update"
)

var classes = []int{0, 1}

// Params are the hyperparameters forwarded with every call.
type Params struct {
	Interval  string
	Horizon   int
	Threshold float64
	// Rule, when set, adds an in-sample backtest of the fitted rows to the result.
	Rule *strategy.Rule
}

// Result describes what a call did.
type Result struct {
	Symbol        string
	Mode          string
	NoOp          bool
	Samples       int // rows fitted by this call
	TotalSamples  int
	PrevWatermark string
	Watermark     string
	Revision      string
	Accuracy      float64
	Confusion     learner.Confusion
	Report        *model.StrategyMetrics
	Latest        *strategy.Signal
	Duration      time.Duration
}

// Trainer runs Init and Update against a bar source and an artifact store.
type Trainer struct {
	collector *collector.Collector
	store     *artifact.Store
	metrics   *metrics.Recorder
	log       zerolog.Logger

	OverlapDays  int // days before the watermark that Update re-reads
	HistoryDays  int // extra days fetched before the overlap so indicators can warm up
	UpdatePasses int
	Seed         uint64
}

// New creates a Trainer. m may be nil.
func New(col *collector.Collector, store *artifact.Store, m *metrics.Recorder, log zerolog.Logger) *Trainer {
	return &Trainer{
		collector:    col,
		store:        store,
		metrics:      m,
		log:          log.With().Str("component", "trainer").Logger(),
		OverlapDays:  5,
		HistoryDays:  400,
		UpdatePasses: 3,
		Seed:         42,
	}
}

// State reports the lifecycle state and watermark of a symbol.
func (t *Trainer) State(symbol string) (State, *model.Watermark, error) {
	b, err := t.store.Load(symbol)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return Uninitialized, nil, nil
	case err != nil:
		return "", nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	return Initialized, &b.State, nil
}

// Init fits a fresh model on bars in [start, end). An existing bundle, even a
// corrupt one, is only replaced when force is set.
func (t *Trainer) Init(ctx context.Context, symbol string, p Params, start, end time.Time, force bool) (*Result, error) {
	began := time.Now()
	log := t.log.With().Str("symbol", symbol).Str("mode", ModeInit).Logger()

	unlock := t.store.Lock(symbol)
	defer unlock()

	exists, err := t.store.Exists(symbol)
	if err != nil {
		return nil, err
	}
	if exists && !force {
		return nil, fmt.Errorf("%s: %w (use force to retrain)", symbol, ErrAlreadyInitialized)
	}

	table, rows, err := t.dataset(ctx, symbol, p, start, end)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %d feature rows, no labeled rows for horizon %d: %w",
			symbol, len(table), p.Horizon, ErrNotEnoughData)
	}

	x, y := model.Matrix(rows)
	scaler := learner.NewScaler(model.NumFeatures)
	if err := scaler.Fit(x); err != nil {
		return nil, err
	}
	z, err := scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	clf := learner.NewSGDClassifier(model.NumFeatures, t.Seed)
	if err := clf.PartialFit(z, y, classes); err != nil {
		return nil, err
	}

	res := &Result{Symbol: symbol, Mode: ModeInit, Samples: len(rows), TotalSamples: len(rows)}
	if err := t.score(res, clf, z, y); err != nil {
		return nil, err
	}

	bundle := &artifact.Bundle{
		Scaler: scaler,
		Model:  clf,
		State: model.Watermark{
			LastDate:  rows[len(rows)-1].Date(),
			Interval:  p.Interval,
			Horizon:   p.Horizon,
			Threshold: p.Threshold,
			Samples:   len(rows),
		},
	}
	if err := t.store.Save(symbol, bundle); err != nil {
		return nil, err
	}
	if err := t.store.WriteFeatures(symbol, rows); err != nil {
		log.Warn().Err(err).Msg("features snapshot not written")
	}

	res.Watermark = bundle.State.LastDate
	res.Revision = bundle.State.Revision
	t.finish(res, symbol, p, scaler, clf, table, rows, z, began)
	log.Info().
		Int("samples", res.Samples).
		Str("watermark", res.Watermark).
		Float64("accuracy", res.Accuracy).
		Str("confusion", res.Confusion.String()).
		Msg("model initialized")
	return res, nil
}

// Update folds bars up to and including the date of through into the persisted model.
// Rows from the overlap window before the watermark are refitted; when no labeled
// row is newer than the watermark the call succeeds without touching the bundle.
func (t *Trainer) Update(ctx context.Context, symbol string, p Params, through time.Time) (*Result, error) {
	began := time.Now()
	log := t.log.With().Str("symbol", symbol).Str("mode", ModeUpdate).Logger()

	unlock := t.store.Lock(symbol)
	defer unlock()

	bundle, err := t.store.Load(symbol)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", symbol, ErrNotInitialized)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	st := bundle.State
	if st.Horizon != p.Horizon || math.Abs(st.Threshold-p.Threshold) > 1e-12 ||
		(st.Interval != "" && p.Interval != "" && st.Interval != p.Interval) {
		return nil, fmt.Errorf("%s: model has interval=%s horizon=%d threshold=%v, got interval=%s horizon=%d threshold=%v: %w",
			symbol, st.Interval, st.Horizon, st.Threshold, p.Interval, p.Horizon, p.Threshold, ErrParamMismatch)
	}

	wm, err := time.Parse(model.DateLayout, st.LastDate)
	if err != nil {
		return nil, fmt.Errorf("%s watermark %q: %w", symbol, st.LastDate, ErrCorruptArtifact)
	}
	overlapStart := wm.AddDate(0, 0, -t.OverlapDays)
	fetchStart := overlapStart.AddDate(0, 0, -t.HistoryDays)
	end := truncateDay(through).AddDate(0, 0, 1)

	res := &Result{
		Symbol:        symbol,
		Mode:          ModeUpdate,
		PrevWatermark: st.LastDate,
		Watermark:     st.LastDate,
		Revision:      st.Revision,
		TotalSamples:  st.Samples,
	}
	if !end.After(wm.AddDate(0, 0, 1)) {
		res.NoOp = true
		log.Info().Str("watermark", st.LastDate).Msg("watermark already at or beyond requested date")
		return res, nil
	}

	table, rows, err := t.dataset(ctx, symbol, p, fetchStart, end)
	if err != nil {
		return nil, err
	}
	cut := overlapStart.Format(model.DateLayout)
	var batch []model.LabeledRow
	fresh := 0
	for _, r := range rows {
		d := r.Date()
		if d < cut {
			continue
		}
		batch = append(batch, r)
		if d > st.LastDate {
			fresh++
		}
	}
	if fresh == 0 {
		res.NoOp = true
		log.Info().Str("watermark", st.LastDate).Int("overlap_rows", len(batch)).Msg("no new labeled rows")
		return res, nil
	}

	x, y := model.Matrix(batch)
	if err := bundle.Scaler.PartialFit(x); err != nil {
		return nil, err
	}
	z, err := bundle.Scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	for i := 0; i < t.UpdatePasses; i++ {
		if err := bundle.Model.PartialFit(z, y, nil); err != nil {
			return nil, err
		}
	}
	if err := t.score(res, bundle.Model, z, y); err != nil {
		return nil, err
	}

	bundle.State.LastDate = batch[len(batch)-1].Date()
	bundle.State.Samples += fresh
	if bundle.State.Interval == "" {
		bundle.State.Interval = p.Interval
	}
	if err := t.store.Save(symbol, bundle); err != nil {
		return nil, err
	}

	res.Samples = len(batch)
	res.TotalSamples = bundle.State.Samples
	res.Watermark = bundle.State.LastDate
	res.Revision = bundle.State.Revision
	t.finish(res, symbol, p, bundle.Scaler, bundle.Model, table, batch, z, began)
	log.Info().
		Int("samples", res.Samples).
		Int("new_rows", fresh).
		Str("prev_watermark", res.PrevWatermark).
		Str("watermark", res.Watermark).
		Float64("accuracy", res.Accuracy).
		Msg("model updated")
	return res, nil
}

// dataset fetches bars and derives the feature table and its labeled rows.
func (t *Trainer) dataset(ctx context.Context, symbol string, p Params, start, end time.Time) ([]model.FeatureRow, []model.LabeledRow, error) {
	series, err := t.collector.Collect(ctx, symbol, p.Interval, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	table, err := features.Build(series.Bars)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	rows, err := features.Label(table, p.Horizon, p.Threshold)
	if err != nil {
		return nil, nil, err
	}
	return table, rows, nil
}

func (t *Trainer) score(res *Result, clf *learner.SGDClassifier, z [][]float64, y []int) error {
	pred, err := clf.Predict(z)
	if err != nil {
		return err
	}
	conf, err := learner.ConfusionMatrix(y, pred)
	if err != nil {
		return err
	}
	res.Confusion = conf
	res.Accuracy = conf.Accuracy()
	return nil
}

// finish attaches the latest-bar signal and the optional in-sample report, and
// publishes gauges.
func (t *Trainer) finish(res *Result, symbol string, p Params, scaler *learner.Scaler, clf *learner.SGDClassifier,
	table []model.FeatureRow, fitted []model.LabeledRow, z [][]float64, began time.Time) {
	rule := strategy.DefaultRule()
	if p.Rule != nil {
		rule = *p.Rule
	}

	last := table[len(table)-1]
	if lz, err := scaler.Transform([][]float64{last.Values[:]}); err == nil {
		if proba, err := clf.PredictProba(lz); err == nil {
			sig := strategy.Evaluate(symbol, last.Time, proba[0], rule)
			res.Latest = &sig
		}
	}

	if p.Rule != nil {
		proba, err := clf.PredictProba(z)
		if err == nil {
			var bt *backtest.Result
			bt, err = backtest.Run(backtest.Predictions(fitted, proba), backtest.Params{Horizon: p.Horizon, Rule: rule})
			if err == nil {
				res.Report = &bt.Metrics
				t.metrics.RecordBacktest(symbol, bt.Metrics.TotalReturn, bt.Metrics.MaxDrawdown)
			}
		}
		if err != nil {
			t.log.Warn().Err(err).Str("symbol", symbol).Msg("in-sample report skipped")
		}
	}

	if wm, err := time.Parse(model.DateLayout, res.Watermark); err == nil {
		t.metrics.RecordModel(symbol, wm, res.TotalSamples)
	}
	res.Duration = time.Since(began)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
