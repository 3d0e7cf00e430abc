package recorder

import (
	"time"

	"Cortexa/internal/model"
)

// SymbolRun is one trainer invocation for one symbol.
type SymbolRun struct {
	RunID         string
	Symbol        string
	Mode          string // "init" or "update"
	Kind          string // "ok" or a trainer failure kind
	Message       string
	NoOp          bool
	PrevWatermark string
	Watermark     string
	Samples       int
	Accuracy      float64
	Proba         float64 // latest-bar probability, 0 when unknown
	Duration      time.Duration
}

// Batch is one scheduler batch over all symbols.
type Batch struct {
	RunID     string
	Date      string
	Trigger   string // "schedule" or "startup"
	Symbols   int
	OK        int
	Failed    int
	Committed bool
	Started   time.Time
	Finished  time.Time
}

// BacktestRun is one backtest or evaluation outcome.
type BacktestRun struct {
	Symbol          string
	Horizon         int
	SignalThreshold float64
	Cost            float64
	Cap             float64
	TrainRows       int
	TestRows        int
	Accuracy        float64
	Metrics         model.StrategyMetrics
}

// Recorder persists run history for analysis.
type Recorder interface {
	RecordSymbolRun(run *SymbolRun) error
	RecordBatch(b *Batch) error
	RecordBacktest(run *BacktestRun) error
	Close() error
}
