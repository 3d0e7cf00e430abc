package features

import (
	"errors"
	"math"

	"Cortexa/internal/calculator"
	"Cortexa/internal/model"
)

// Take-profit / stop-loss bounds for LabelWithTargets.
const (
	minTargetPct     = 0.001
	maxTargetPct     = 0.02
	defaultTargetPct = 0.003
)

// ErrBadHorizon is returned for a horizon smaller than one bar.
var ErrBadHorizon = errors.New("horizon must be at least 1 bar")

// Label attaches the forward return close[t+h]/close[t]-1 and the binary target
// (1 when the return exceeds threshold) to each row. The last horizon rows have no
// forward data and are dropped.
func Label(rows []model.FeatureRow, horizon int, threshold float64) ([]model.LabeledRow, error) {
	if horizon < 1 {
		return nil, ErrBadHorizon
	}
	if len(rows) <= horizon {
		return nil, nil
	}
	out := make([]model.LabeledRow, 0, len(rows)-horizon)
	for i := 0; i+horizon < len(rows); i++ {
		r := rows[i+horizon].Close/rows[i].Close - 1.0
		target := 0
		if r > threshold {
			target = 1
		}
		out = append(out, model.LabeledRow{FeatureRow: rows[i], ForwardReturn: r, Target: target})
	}
	return out, nil
}

// LabelWithTargets is Label plus asymmetric take-profit/stop-loss percentages taken
// from the rolling 80th/20th percentile of forward return over a horizon-sized window.
// Values are clipped to [0.1%, 2%] and default to 0.3% until the window is full.
func LabelWithTargets(rows []model.FeatureRow, horizon int, threshold float64) ([]model.LabeledRow, error) {
	out, err := Label(rows, horizon, threshold)
	if err != nil || len(out) == 0 {
		return out, err
	}
	fwd := make([]float64, len(out))
	for i := range out {
		fwd[i] = out[i].ForwardReturn
	}
	win := calculator.RollingQuantile(fwd, horizon, 0.8)
	lose := calculator.RollingQuantile(fwd, horizon, 0.2)
	for i := range out {
		out[i].TPPct = clipTarget(win[i])
		out[i].SLPct = clipTarget(-lose[i])
	}
	return out, nil
}

func clipTarget(v float64) float64 {
	if math.IsNaN(v) {
		v = defaultTargetPct
	}
	return math.Min(math.Max(v, minTargetPct), maxTargetPct)
}
