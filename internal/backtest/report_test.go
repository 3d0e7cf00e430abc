package backtest

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Cortexa/internal/collector"
	"Cortexa/internal/features"
	"Cortexa/internal/model"
	"Cortexa/internal/strategy"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadPredictionsCSV(t *testing.T) {
	path := writeFile(t, "p.csv", "timestamp,close,future_ret,proba\n"+
		"2024-01-01,100,0.03,0.9\n"+
		"2024-01-02,101,0.01,0.2\n"+
		"2024-01-03,103,,0.4\n")
	rows, err := ReadPredictionsCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Proba != 0.9 || rows[0].ForwardReturn != 0.03 {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if !math.IsNaN(rows[2].ForwardReturn) {
		t.Errorf("empty future_ret should read as NaN, got %v", rows[2].ForwardReturn)
	}
	if _, err := Run(rows, Params{Horizon: 1, Rule: strategy.Rule{SignalThreshold: 0.5, Cap: 1}}); err != nil {
		t.Errorf("trailing NaN forward return should be accepted: %v", err)
	}
}

func TestReadPredictionsCSV_MissingColumns(t *testing.T) {
	path := writeFile(t, "p.csv", "timestamp,proba\n2024-01-01,0.9\n")
	_, err := ReadPredictionsCSV(path)
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "future_ret") {
		t.Errorf("error should name the missing column: %v", err)
	}
}

func TestReadPredictionsCSV_BadValue(t *testing.T) {
	path := writeFile(t, "p.csv", "timestamp,future_ret,proba\n2024-01-01,0.1,high\n")
	if _, err := ReadPredictionsCSV(path); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestReportWriters(t *testing.T) {
	dir := t.TempDir()
	equity := []model.EquityPoint{
		{Time: day0, Equity: 1},
		{Time: day0.AddDate(0, 0, 1), Equity: 1.05},
	}
	if err := WriteEquityCSV(filepath.Join(dir, "BTC_equity.csv"), equity); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, "BTC_equity.csv"))
	if !strings.Contains(string(raw), "2024-01-02,1.050000") {
		t.Errorf("unexpected equity csv:\n%s", raw)
	}

	s := Summary{Symbol: "BTC", Horizon: 5, Metrics: model.StrategyMetrics{Trades: 2, EquityLast: 1.05, TotalReturn: 0.05}}
	if err := WriteSummaryJSON(filepath.Join(dir, "BTC_summary.json"), s); err != nil {
		t.Fatal(err)
	}
	raw, _ = os.ReadFile(filepath.Join(dir, "BTC_summary.json"))
	if !strings.Contains(string(raw), `"n_trades": 2`) {
		t.Errorf("summary json missing metrics:\n%s", raw)
	}

	if err := WriteResultsCSV(filepath.Join(dir, "results.csv"), []Summary{s, {Symbol: "ETH"}}); err != nil {
		t.Fatal(err)
	}
	raw, _ = os.ReadFile(filepath.Join(dir, "results.csv"))
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "BTC,2,") {
		t.Errorf("unexpected results csv:\n%s", raw)
	}
}

func TestEvaluate_HoldsOutTail(t *testing.T) {
	bars := collector.GenerateBars(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 600, 100)
	table, err := features.Build(bars)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := features.Label(table, 5, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	ev, err := Evaluate(rows, EvalParams{Horizon: 5, Seed: 1, Rule: strategy.DefaultRule()})
	if err != nil {
		t.Fatal(err)
	}
	if ev.TrainRows+ev.TestRows != len(rows) || ev.TestRows != max(1, int(float64(len(rows))*0.2)) {
		t.Errorf("unexpected split %d/%d of %d", ev.TrainRows, ev.TestRows, len(rows))
	}
	if ev.Confusion.Total() != ev.TestRows {
		t.Errorf("confusion covers %d rows, want %d", ev.Confusion.Total(), ev.TestRows)
	}
	if len(ev.Proba) != len(rows) || len(ev.Backtest.Equity) != ev.TestRows {
		t.Errorf("proba %d / equity %d lengths unexpected", len(ev.Proba), len(ev.Backtest.Equity))
	}
	if !ev.Backtest.Equity[0].Time.Equal(rows[ev.TrainRows].Time) {
		t.Error("backtest should start at the first held-out row")
	}
}

func TestEvaluate_SplitSizes(t *testing.T) {
	synthetic := func(n int) []model.LabeledRow {
		rows := make([]model.LabeledRow, n)
		for i := range rows {
			rows[i].Time = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
			rows[i].Close = 100 + float64(i)
			rows[i].ForwardReturn = 0.01
			rows[i].Target = i % 2
			for k := range rows[i].Values {
				rows[i].Values[k] = float64((i+1)*(k+1)%7) - 3
			}
		}
		return rows
	}
	tests := []struct {
		n        int
		testSize float64
		wantTest int
	}{
		{n: 7, testSize: 0.2, wantTest: 1},
		{n: 4, testSize: 0.2, wantTest: 1},
		{n: 10, testSize: 0.25, wantTest: 2},
		{n: 10, testSize: 0.2, wantTest: 2},
	}
	for _, tt := range tests {
		ev, err := Evaluate(synthetic(tt.n), EvalParams{Horizon: 1, TestSize: tt.testSize, Seed: 1, Rule: strategy.DefaultRule()})
		if err != nil {
			t.Fatalf("n=%d test_size=%v: %v", tt.n, tt.testSize, err)
		}
		if ev.TestRows != tt.wantTest || ev.TrainRows != tt.n-tt.wantTest {
			t.Errorf("n=%d test_size=%v: split %d/%d, want test %d", tt.n, tt.testSize, ev.TrainRows, ev.TestRows, tt.wantTest)
		}
	}
}

func TestEvaluate_TooFewRows(t *testing.T) {
	rows := []model.LabeledRow{{}}
	if _, err := Evaluate(rows, EvalParams{Horizon: 1, Rule: strategy.DefaultRule()}); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestWritePredictionsCSV_ReadsBack(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []model.Prediction{
		{Time: day, ForwardReturn: 0.03, Proba: 0.9},
		{Time: day.AddDate(0, 0, 1), ForwardReturn: -0.0125, Proba: 0.2},
		{Time: day.AddDate(0, 0, 2), ForwardReturn: math.NaN(), Proba: 0.4},
	}
	path := filepath.Join(t.TempDir(), "pred.csv")
	if err := WritePredictionsCSV(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := ReadPredictionsCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d rows", len(out))
	}
	for i := range in {
		if !out[i].Time.Equal(in[i].Time) || out[i].Proba != in[i].Proba {
			t.Errorf("row %d = %+v", i, out[i])
		}
	}
	if out[1].ForwardReturn != -0.0125 || !math.IsNaN(out[2].ForwardReturn) {
		t.Errorf("forward returns = %v, %v", out[1].ForwardReturn, out[2].ForwardReturn)
	}
}

func TestEvaluate_ReportsTargets(t *testing.T) {
	bars := collector.GenerateBars(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 500, 100)
	table, err := features.Build(bars)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := features.LabelWithTargets(table, 5, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	ev, err := Evaluate(rows, EvalParams{Horizon: 5, Seed: 1, Rule: strategy.DefaultRule()})
	if err != nil {
		t.Fatal(err)
	}
	for name, v := range map[string]float64{"tp": ev.TPPct, "sl": ev.SLPct} {
		if v < 0.001 || v > 0.02 {
			t.Errorf("%s = %v, want within [0.001, 0.02]", name, v)
		}
	}
}
