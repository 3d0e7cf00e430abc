package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so that dashboards can read while the scheduler writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbol_runs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			run_id         TEXT,
			symbol         TEXT NOT NULL,
			mode           TEXT,
			kind           TEXT,
			message        TEXT,
			noop           INTEGER,
			prev_watermark TEXT,
			watermark      TEXT,
			samples        INTEGER,
			accuracy       REAL,
			proba          REAL,
			duration_ms    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_symbol_runs_ts ON symbol_runs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_symbol_runs_symbol ON symbol_runs(symbol)`,

		`CREATE TABLE IF NOT EXISTS batches (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			run_date    TEXT,
			trigger_type TEXT,
			symbols     INTEGER,
			ok          INTEGER,
			failed      INTEGER,
			committed   INTEGER,
			started_at  INTEGER,
			finished_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_started ON batches(started_at)`,

		`CREATE TABLE IF NOT EXISTS backtests (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			symbol           TEXT NOT NULL,
			horizon          INTEGER,
			signal_threshold REAL,
			cost             REAL,
			cap              REAL,
			train_rows       INTEGER,
			test_rows        INTEGER,
			accuracy         REAL,
			n_trades         INTEGER,
			hit_rate         REAL,
			avg_win          REAL,
			avg_loss         REAL,
			total_return     REAL,
			mdd              REAL,
			equity_last      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backtests_ts ON backtests(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSymbolRun(run *SymbolRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO symbol_runs
		(timestamp, run_id, symbol, mode, kind, message, noop, prev_watermark, watermark,
		 samples, accuracy, proba, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), run.RunID, run.Symbol, run.Mode, run.Kind, run.Message, run.NoOp,
		run.PrevWatermark, run.Watermark, run.Samples, run.Accuracy, run.Proba,
		run.Duration.Milliseconds(),
	)
	return err
}

func (r *SQLiteRecorder) RecordBatch(b *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO batches
		(run_id, run_date, trigger_type, symbols, ok, failed, committed, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		b.RunID, b.Date, b.Trigger, b.Symbols, b.OK, b.Failed, b.Committed,
		b.Started.Unix(), b.Finished.Unix(),
	)
	return err
}

func (r *SQLiteRecorder) RecordBacktest(run *BacktestRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := run.Metrics
	_, err := r.db.Exec(`INSERT INTO backtests
		(timestamp, symbol, horizon, signal_threshold, cost, cap, train_rows, test_rows, accuracy,
		 n_trades, hit_rate, avg_win, avg_loss, total_return, mdd, equity_last)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), run.Symbol, run.Horizon, run.SignalThreshold, run.Cost, run.Cap,
		run.TrainRows, run.TestRows, run.Accuracy,
		m.Trades, m.HitRate, m.AvgWin, m.AvgLoss, m.TotalReturn, m.MaxDrawdown, m.EquityLast,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
