package model

import "time"

// FeatureNames is the fixed, ordered indicator vector produced per bar.
var FeatureNames = []string{
	"ema20_dist", "ema50_dist", "ema200_dist", "rsi14",
	"macd", "macd_signal", "macd_hist",
	"bbp", "atr_pct", "adx14", "ret_1d", "vol_10", "mom_3", "mom_7", "mom_14",
}

// NumFeatures is len(FeatureNames).
const NumFeatures = 15

// FeatureRow is one bar's indicator vector, in FeatureNames order.
type FeatureRow struct {
	Time   time.Time
	Close  float64
	Values [NumFeatures]float64
}

// Date returns the row's UTC calendar date.
func (r FeatureRow) Date() string {
	return r.Time.UTC().Format(DateLayout)
}

// LabeledRow is a feature row with its realized forward return and binary target.
// TPPct and SLPct are only set by the take-profit/stop-loss labeling variant.
type LabeledRow struct {
	FeatureRow
	ForwardReturn float64
	Target        int
	TPPct         float64
	SLPct         float64
}

// Matrix returns the feature values and targets as row-major slices.
func Matrix(rows []LabeledRow) ([][]float64, []int) {
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i := range rows {
		v := rows[i].Values
		x[i] = v[:]
		y[i] = rows[i].Target
	}
	return x, y
}
