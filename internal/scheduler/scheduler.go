// Package scheduler runs the daily update batch: once per local calendar day, at
// the configured trigger minute, every resolved symbol is updated and the day is
// committed to a single state record.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"Cortexa/internal/metrics"
	"Cortexa/internal/model"
	"Cortexa/internal/notifier"
	"Cortexa/internal/recorder"
	"Cortexa/internal/trainer"
)

const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
)

const notifyTimeout = 30 * time.Second

// Config holds the scheduler settings.
type Config struct {
	RunAt        string
	Timezone     string
	PollInterval time.Duration
	Cooldown     time.Duration
	Spacing      time.Duration
	Workers      int
	StartupRun   bool
	StateFile    string
	Symbols      []string
	SymbolsFile  string
}

// BatchReport summarises one batch.
type BatchReport struct {
	RunID     string
	Date      string
	Trigger   string
	Symbols   []string
	Outcomes  []notifier.Outcome
	OK        int
	Failed    int
	Committed bool
}

// Scheduler polls the clock and runs the daily batch.
type Scheduler struct {
	cfg      Config
	trigger  *Trigger
	loc      *time.Location
	runner   Runner
	notifier notifier.Notifier
	recorder recorder.Recorder
	metrics  *metrics.Recorder
	log      zerolog.Logger

	// Now is the wall clock; tests replace it.
	Now func() time.Time

	mu sync.Mutex // serialises batches
}

// New creates a Scheduler. n and m may be nil; rec defaults to a no-op recorder.
// An unknown timezone falls back to the local clock after a warning.
func New(cfg Config, runner Runner, n notifier.Notifier, rec recorder.Recorder, m *metrics.Recorder, log zerolog.Logger) (*Scheduler, error) {
	tr, err := ParseTrigger(cfg.RunAt)
	if err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, errors.New("scheduler: nil runner")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	log = log.With().Str("component", "scheduler").Logger()

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Warn().Err(err).Str("tz", cfg.Timezone).Msg("unknown timezone, falling back to local clock")
		} else {
			loc = l
		}
	}

	return &Scheduler{
		cfg:      cfg,
		trigger:  tr,
		loc:      loc,
		runner:   runner,
		notifier: n,
		recorder: rec,
		metrics:  m,
		log:      log,
		Now:      time.Now,
	}, nil
}

// Location is the timezone the trigger is evaluated in.
func (s *Scheduler) Location() *time.Location { return s.loc }

func (s *Scheduler) now() time.Time { return s.Now().In(s.loc) }

// Symbols resolves the symbols the next batch will update.
func (s *Scheduler) Symbols() []string {
	return ResolveSymbols(s.cfg.Symbols, s.cfg.SymbolsFile, s.log)
}

// NextTrigger returns the next trigger minute after now.
func (s *Scheduler) NextTrigger() time.Time {
	return s.trigger.Next(s.now())
}

// State reads the persisted state, treating an unreadable file as empty.
func (s *Scheduler) State() model.SchedulerState {
	st, err := LoadState(s.cfg.StateFile)
	if err != nil {
		s.log.Warn().Err(err).Str("file", s.cfg.StateFile).Msg("load scheduler state, treating as empty")
		return model.SchedulerState{}
	}
	return *st
}

// Tick runs the batch when now is inside the trigger minute and today has not
// been committed yet. It reports whether a batch ran.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (bool, error) {
	now = now.In(s.loc)
	if !s.trigger.Matches(now) {
		return false, nil
	}
	if s.State().LastRunDate == now.Format(model.DateLayout) {
		return false, nil
	}
	_, err := s.RunBatch(ctx, now, TriggerSchedule, true)
	return true, err
}

// RunBatch updates every resolved symbol. A failing symbol is logged, recorded
// and notified without stopping the others. When commit is set and every symbol
// was attempted, the day is written to the state file. A batch cut short by ctx
// is never committed.
func (s *Scheduler) RunBatch(ctx context.Context, now time.Time, trigger string, commit bool) (*BatchReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.loc)
	started := s.Now()
	symbols := s.Symbols()
	rep := &BatchReport{
		RunID:   uuid.NewString(),
		Date:    now.Format(model.DateLayout),
		Trigger: trigger,
		Symbols: symbols,
	}
	log := s.log.With().Str("run_id", rep.RunID).Str("trigger", trigger).Str("date", rep.Date).Logger()
	log.Info().Int("symbols", len(symbols)).Int("workers", s.cfg.Workers).Msg("batch started")
	s.notify(ctx, notifier.FormatTriggered(now, symbols))

	outcomes := make([]notifier.Outcome, len(symbols))
	attempted := make([]bool, len(symbols))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = s.runSymbol(ctx, log, rep.RunID, sym, now)
			attempted[i] = true
			if i < len(symbols)-1 {
				sleep(ctx, s.cfg.Spacing)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range symbols {
		if !attempted[i] {
			continue
		}
		rep.Outcomes = append(rep.Outcomes, outcomes[i])
		if outcomes[i].Kind == trainer.KindOK {
			rep.OK++
		} else {
			rep.Failed++
		}
	}

	var batchErr error
	outcome := "ok"
	switch {
	case ctx.Err() != nil:
		outcome = "cancelled"
		batchErr = fmt.Errorf("batch interrupted after %d of %d symbols: %w", len(rep.Outcomes), len(symbols), ctx.Err())
		log.Warn().Int("attempted", len(rep.Outcomes)).Msg("batch interrupted, state not committed")
	case commit:
		st := &model.SchedulerState{
			LastRunDate: rep.Date,
			DoneSymbols: symbols,
			RunID:       rep.RunID,
			UpdatedAt:   s.Now(),
		}
		if err := SaveState(s.cfg.StateFile, st); err != nil {
			outcome = "commit_failed"
			batchErr = fmt.Errorf("commit scheduler state: %w", err)
			log.Error().Err(err).Msg("commit scheduler state")
		} else {
			rep.Committed = true
		}
	}
	if outcome == "ok" && rep.Failed > 0 {
		outcome = "partial"
	}

	s.metrics.RecordBatch(outcome)
	if err := s.recorder.RecordBatch(&recorder.Batch{
		RunID:     rep.RunID,
		Date:      rep.Date,
		Trigger:   trigger,
		Symbols:   len(symbols),
		OK:        rep.OK,
		Failed:    rep.Failed,
		Committed: rep.Committed,
		Started:   started,
		Finished:  s.Now(),
	}); err != nil {
		log.Error().Err(err).Msg("record batch")
	}

	if batchErr == nil {
		log.Info().Int("ok", rep.OK).Int("failed", rep.Failed).Bool("committed", rep.Committed).Msg("batch completed")
		s.notify(ctx, notifier.FormatCompleted(rep.Date, rep.Outcomes))
	}
	return rep, batchErr
}

// runSymbol never fails: errors and panics become the outcome's kind.
func (s *Scheduler) runSymbol(ctx context.Context, log zerolog.Logger, runID, symbol string, now time.Time) notifier.Outcome {
	log = log.With().Str("symbol", symbol).Logger()
	began := time.Now()
	// An update that has started runs to completion even if the batch is cancelled.
	res, err := s.safeUpdate(context.WithoutCancel(ctx), symbol, now)
	d := time.Since(began)
	kind := trainer.Kind(err)
	s.metrics.RecordRun(symbol, trainer.ModeUpdate, kind, d)

	run := &recorder.SymbolRun{
		RunID:    runID,
		Symbol:   symbol,
		Mode:     trainer.ModeUpdate,
		Kind:     kind,
		Duration: d,
	}
	out := notifier.Outcome{Symbol: symbol, Kind: kind}

	if err != nil {
		run.Message = err.Error()
		log.Error().Err(err).Str("kind", kind).Dur("took", d).Msg("update failed")
		s.notify(ctx, notifier.FormatFailure(symbol, kind, err.Error()))
	} else {
		run.NoOp = res.NoOp
		run.PrevWatermark = res.PrevWatermark
		run.Watermark = res.Watermark
		run.Samples = res.Samples
		run.Accuracy = res.Accuracy
		if res.Latest != nil {
			run.Proba = res.Latest.Proba
		}
		out.Watermark = res.Watermark
		out.NoOp = res.NoOp
		out.Signal = res.Latest
		log.Info().Str("watermark", res.Watermark).Int("samples", res.Samples).Bool("noop", res.NoOp).Dur("took", d).Msg("update ok")
	}
	if rerr := s.recorder.RecordSymbolRun(run); rerr != nil {
		log.Error().Err(rerr).Msg("record symbol run")
	}
	return out
}

func (s *Scheduler) safeUpdate(ctx context.Context, symbol string, now time.Time) (res *trainer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("update %s panicked: %v", symbol, r)
		}
	}()
	res, err = s.runner.Update(ctx, symbol, now)
	if err == nil && res == nil {
		res = &trainer.Result{Symbol: symbol, Mode: trainer.ModeUpdate}
	}
	return res, err
}

// Run polls until ctx is cancelled. Cancellation ends any sleep immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	symbols := s.Symbols()
	s.log.Info().
		Str("trigger", s.trigger.String()).
		Str("tz", s.loc.String()).
		Str("runner", s.runner.Name()).
		Strs("symbols", symbols).
		Time("next", s.NextTrigger()).
		Msg("scheduler started")
	s.notify(ctx, notifier.FormatStarted(s.trigger.String(), s.loc.String(), symbols))
	defer func() {
		s.log.Info().Msg("scheduler stopping")
		s.notify(ctx, notifier.FormatStopped())
	}()

	if s.cfg.StartupRun {
		s.log.Info().Msg("startup run requested")
		if _, err := s.RunBatch(ctx, s.now(), TriggerStartup, false); err != nil {
			s.log.Error().Err(err).Msg("startup run")
		}
	}

	for ctx.Err() == nil {
		ran, err := s.Tick(ctx, s.now())
		if err != nil {
			s.log.Error().Err(err).Msg("daily batch")
		}
		// Sleep past the trigger minute so it cannot fire twice.
		if ran && !sleep(ctx, s.cfg.Cooldown) {
			break
		}
		if !sleep(ctx, s.cfg.PollInterval) {
			break
		}
	}
	return nil
}

// HandleCommand answers Telegram commands.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/status":
		return notifier.FormatStatus(s.State(), s.NextTrigger())
	case "/symbols":
		return notifier.FormatSymbols(s.Symbols())
	case "/start", "/help":
		return notifier.FormatHelp()
	default:
		return "Unknown command. " + notifier.FormatHelp()
	}
}

func (s *Scheduler) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	s.notifier.Notify(ctx, text)
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
