// Package features turns an OHLCV series into the model's indicator table and
// attaches forward-return labels.
package features

import (
	"fmt"
	"math"

	"Cortexa/internal/calculator"
	"Cortexa/internal/model"
)

// Indicator windows.
const (
	emaFast    = 20
	emaMid     = 50
	emaSlow    = 200
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	bbPeriod   = 20
	bbK        = 2.0
	atrPeriod  = 14
	adxPeriod  = 14
	volWindow  = 10
)

// Warmup is the number of leading bars that can never carry a complete feature row.
// EMA200 has the longest window; every other indicator is complete by then.
func Warmup() int {
	return emaSlow - 1
}

// Build derives one feature row per bar. Warm-up rows and rows with any non-finite
// value are dropped. A series no longer than the warm-up yields an empty table.
// Row t depends only on bars[0..t].
func Build(bars []model.OHLCV) ([]model.FeatureRow, error) {
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}
	n := len(bars)
	if n <= Warmup() {
		return nil, nil
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i], highs[i], lows[i] = b.Close, b.High, b.Low
	}

	macd, macdSig, macdHist := calculator.MACD(closes, macdFast, macdSlow, macdSignal)
	atr := calculator.ATR(highs, lows, closes, atrPeriod)
	ret1 := calculator.PctChange(closes, 1)

	// Order must match model.FeatureNames.
	cols := [model.NumFeatures][]float64{
		calculator.Distance(closes, calculator.EMA(closes, emaFast)),
		calculator.Distance(closes, calculator.EMA(closes, emaMid)),
		calculator.Distance(closes, calculator.EMA(closes, emaSlow)),
		calculator.RSI(closes, rsiPeriod),
		macd,
		macdSig,
		macdHist,
		calculator.BandPosition(closes, bbPeriod, bbK),
		ratio(atr, closes),
		calculator.ADX(highs, lows, closes, adxPeriod),
		ret1,
		calculator.RollingStd(ret1, volWindow),
		calculator.PctChange(closes, 3),
		calculator.PctChange(closes, 7),
		calculator.PctChange(closes, 14),
	}

	rows := make([]model.FeatureRow, 0, n-Warmup())
	for i := Warmup(); i < n; i++ {
		row := model.FeatureRow{Time: bars[i].Time, Close: closes[i]}
		complete := true
		for j := range cols {
			v := cols[j][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				complete = false
				break
			}
			row.Values[j] = v
		}
		if complete {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func ratio(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		out[i] = num[i] / den[i]
	}
	return out
}
