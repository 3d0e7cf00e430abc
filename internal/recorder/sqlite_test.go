package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"Cortexa/internal/model"
)

func count(t *testing.T, r *SQLiteRecorder, table string) int {
	t.Helper()
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSQLiteRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "runs.db")
	r, err := NewSQLiteRecorder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.RecordSymbolRun(&SymbolRun{RunID: "r1", Symbol: "BTC", Mode: "update", Kind: "ok", Watermark: "2024-01-01", Duration: time.Second}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordSymbolRun(&SymbolRun{RunID: "r1", Symbol: "ETH", Mode: "update", Kind: "DataUnavailable", Message: "no data"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordBatch(&Batch{RunID: "r1", Date: "2024-01-02", Trigger: "schedule", Symbols: 2, OK: 1, Failed: 1, Committed: true, Started: time.Now(), Finished: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordBacktest(&BacktestRun{Symbol: "BTC", Horizon: 5, Metrics: model.StrategyMetrics{Trades: 3, EquityLast: 1.1}}); err != nil {
		t.Fatal(err)
	}

	if got := count(t, r, "symbol_runs"); got != 2 {
		t.Errorf("symbol_runs = %d, want 2", got)
	}
	if got := count(t, r, "batches"); got != 1 {
		t.Errorf("batches = %d, want 1", got)
	}
	var kind string
	if err := r.db.QueryRow("SELECT kind FROM symbol_runs WHERE symbol = 'ETH'").Scan(&kind); err != nil || kind != "DataUnavailable" {
		t.Errorf("kind = %q, %v", kind, err)
	}
	var trades int
	r.db.QueryRow("SELECT n_trades FROM backtests").Scan(&trades)
	if trades != 3 {
		t.Errorf("n_trades = %d, want 3", trades)
	}
}

func TestSQLiteRecorder_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	r, err := NewSQLiteRecorder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.RecordBatch(&Batch{RunID: "a", Started: time.Now(), Finished: time.Now()})
	r.Close()

	r, err = NewSQLiteRecorder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if got := count(t, r, "batches"); got != 1 {
		t.Errorf("batches after reopen = %d, want 1", got)
	}
}
