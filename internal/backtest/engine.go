// Package backtest replays model probabilities as fixed-horizon long trades and
// reports the resulting equity curve and risk statistics.
package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"Cortexa/internal/model"
	"Cortexa/internal/strategy"
)

// ErrMalformedInput covers unusable prediction tables and invalid parameters.
var ErrMalformedInput = errors.New("malformed backtest input")

// Params configures one backtest run.
type Params struct {
	Horizon int
	strategy.Rule
}

// Validate checks the horizon and the embedded rule.
func (p Params) Validate() error {
	if p.Horizon < 1 {
		return fmt.Errorf("horizon %d < 1: %w", p.Horizon, ErrMalformedInput)
	}
	if err := p.Rule.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrMalformedInput)
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	Trades  []model.Trade
	Equity  []model.EquityPoint
	Metrics model.StrategyMetrics
}

// Run simulates the strategy over rows. A row whose probability reaches the signal
// threshold opens a trade that closes horizon rows later; signals without a closing
// row are discarded. The trade's raw return is the signal row's forward return.
// Equity is flat between closes and compounds by (1 + net) at each close. A close
// that would take equity to or below zero ruins the account: equity stays at 0.
//
// Forward returns of the trailing horizon rows are never used and may be NaN.
func Run(rows []model.Prediction, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := validateRows(rows, p.Horizon); err != nil {
		return nil, err
	}

	n := len(rows)
	// Each close index receives at most one trade since exit = signal + horizon.
	closing := make([]*model.Trade, n)
	var trades []model.Trade
	proba := lo.Map(rows, func(r model.Prediction, _ int) float64 { return r.Proba })
	for _, i := range p.Signals(proba) {
		j := i + p.Horizon
		if j >= n {
			break
		}
		raw := rows[i].ForwardReturn
		trades = append(trades, model.Trade{
			SignalIndex: i,
			ExitIndex:   j,
			SignalTime:  rows[i].Time,
			ExitTime:    rows[j].Time,
			RawReturn:   raw,
			NetReturn:   p.NetReturn(raw),
		})
	}
	for k := range trades {
		closing[trades[k].ExitIndex] = &trades[k]
	}

	equity := make([]model.EquityPoint, n)
	eq := 1.0
	for i := range rows {
		if t := closing[i]; t != nil && eq > 0 {
			eq = math.Max(0, eq*(1+t.NetReturn))
		}
		equity[i] = model.EquityPoint{Time: rows[i].Time, Equity: eq}
	}

	return &Result{Trades: trades, Equity: equity, Metrics: computeMetrics(trades, equity)}, nil
}

func validateRows(rows []model.Prediction, horizon int) error {
	if len(rows) == 0 {
		return fmt.Errorf("empty prediction table: %w", ErrMalformedInput)
	}
	for i, r := range rows {
		if !finite(r.Proba) || r.Proba < 0 || r.Proba > 1 {
			return fmt.Errorf("row %d: probability %v: %w", i, r.Proba, ErrMalformedInput)
		}
		if i+horizon < len(rows) && !finite(r.ForwardReturn) {
			return fmt.Errorf("row %d: forward return %v: %w", i, r.ForwardReturn, ErrMalformedInput)
		}
		if i > 0 && !r.Time.After(rows[i-1].Time) {
			return fmt.Errorf("row %d: timestamps not increasing: %w", i, ErrMalformedInput)
		}
	}
	return nil
}

func computeMetrics(trades []model.Trade, equity []model.EquityPoint) model.StrategyMetrics {
	m := model.StrategyMetrics{EquityLast: 1}
	if len(trades) == 0 {
		return m
	}

	var wins, losses []float64
	for _, t := range trades {
		if t.RawReturn > 0 {
			wins = append(wins, t.RawReturn)
		} else {
			losses = append(losses, t.RawReturn)
		}
	}
	m.Trades = len(trades)
	m.HitRate = float64(len(wins)) / float64(len(trades))
	m.AvgWin = mean(wins)
	m.AvgLoss = mean(losses)

	peak := math.Inf(-1)
	for _, p := range equity {
		peak = math.Max(peak, p.Equity)
		m.MaxDrawdown = math.Min(m.MaxDrawdown, p.Equity/peak-1)
	}
	m.EquityLast = equity[len(equity)-1].Equity
	m.TotalReturn = m.EquityLast - 1
	return m
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
