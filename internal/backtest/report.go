package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"Cortexa/internal/collector"
	"Cortexa/internal/learner"
	"Cortexa/internal/model"
)

// Summary is the per-symbol record written to <symbol>_summary.json and results.csv.
type Summary struct {
	Symbol    string                `json:"symbol"`
	Start     string                `json:"start,omitempty"`
	End       string                `json:"end,omitempty"`
	Horizon   int                   `json:"horizon"`
	Threshold float64               `json:"threshold"`
	Signal    float64               `json:"signal_threshold"`
	Cost      float64               `json:"cost"`
	Cap       float64               `json:"cap"`
	TrainRows int                   `json:"train_rows,omitempty"`
	TestRows  int                   `json:"test_rows,omitempty"`
	Accuracy  float64               `json:"accuracy"`
	TPPct     float64               `json:"tp_pct,omitempty"`
	SLPct     float64               `json:"sl_pct,omitempty"`
	Confusion *learner.Confusion    `json:"confusion,omitempty"`
	Metrics   model.StrategyMetrics `json:"metrics"`
}

var requiredColumns = []string{"timestamp", "future_ret", "proba"}

// ReadPredictionsCSV loads a predictions table with timestamp, future_ret and proba
// columns. An empty future_ret cell reads as NaN.
func ReadPredictionsCSV(path string) ([]model.Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s header: %v: %w", path, err, ErrMalformedInput)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if missing := lo.Filter(requiredColumns, func(c string, _ int) bool {
		_, ok := col[c]
		return !ok
	}); len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing columns %v: %w", path, missing, ErrMalformedInput)
	}

	var rows []model.Prediction
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %v: %w", path, line, err, ErrMalformedInput)
		}
		ts, err := collector.ParseTime(strings.TrimSpace(rec[col["timestamp"]]))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %v: %w", path, line, err, ErrMalformedInput)
		}
		fwd := math.NaN()
		if s := strings.TrimSpace(rec[col["future_ret"]]); s != "" {
			if fwd, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%s:%d: future_ret: %v: %w", path, line, err, ErrMalformedInput)
			}
		}
		proba, err := strconv.ParseFloat(strings.TrimSpace(rec[col["proba"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: proba: %v: %w", path, line, err, ErrMalformedInput)
		}
		rows = append(rows, model.Prediction{Time: ts, ForwardReturn: fwd, Proba: proba})
	}
	return rows, nil
}

// WriteEquityCSV writes timestamp,equity rows.
func WriteEquityCSV(path string, equity []model.EquityPoint) error {
	records := lo.Map(equity, func(p model.EquityPoint, _ int) []string {
		return []string{p.Time.UTC().Format(model.DateLayout), ftoa(p.Equity)}
	})
	return writeCSV(path, []string{"timestamp", "equity"}, records)
}

// WritePredictionsCSV writes timestamp,future_ret,proba rows that ReadPredictionsCSV
// reads back. A NaN forward return is written as an empty cell.
func WritePredictionsCSV(path string, rows []model.Prediction) error {
	records := lo.Map(rows, func(p model.Prediction, _ int) []string {
		ret := ""
		if !math.IsNaN(p.ForwardReturn) {
			ret = strconv.FormatFloat(p.ForwardReturn, 'g', -1, 64)
		}
		return []string{p.Time.UTC().Format(time.RFC3339), ret, strconv.FormatFloat(p.Proba, 'g', -1, 64)}
	})
	return writeCSV(path, requiredColumns, records)
}

// WriteSummaryJSON writes one symbol's summary.
func WriteSummaryJSON(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteResultsCSV writes one line per symbol.
func WriteResultsCSV(path string, summaries []Summary) error {
	header := []string{"symbol", "n_trades", "hit_rate", "avg_win", "avg_loss", "total_return", "mdd", "equity_last", "accuracy"}
	records := lo.Map(summaries, func(s Summary, _ int) []string {
		m := s.Metrics
		return []string{
			s.Symbol, strconv.Itoa(m.Trades), ftoa(m.HitRate), ftoa(m.AvgWin), ftoa(m.AvgLoss),
			ftoa(m.TotalReturn), ftoa(m.MaxDrawdown), ftoa(m.EquityLast), ftoa(s.Accuracy),
		}
	})
	return writeCSV(path, header, records)
}

func writeCSV(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
