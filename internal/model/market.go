package model

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the calendar-date format used for watermarks and scheduler state.
const DateLayout = "2006-01-02"

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Finite reports whether every numeric field of the bar is finite.
func (b OHLCV) Finite() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Date returns the bar's UTC calendar date.
func (b OHLCV) Date() string {
	return b.Time.UTC().Format(DateLayout)
}

// PriceSeries holds raw price data for one symbol.
type PriceSeries struct {
	Symbol    string
	Interval  string
	Bars      []OHLCV
	FetchedAt time.Time
}

// ValidateBars checks that bars are finite, positive-priced and strictly increasing in time.
func ValidateBars(bars []OHLCV) error {
	for i, b := range bars {
		if !b.Finite() {
			return fmt.Errorf("bar %d (%s): non-finite value", i, b.Time.Format(time.RFC3339))
		}
		if b.Close <= 0 {
			return fmt.Errorf("bar %d (%s): non-positive close %v", i, b.Time.Format(time.RFC3339), b.Close)
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return fmt.Errorf("bar %d (%s): timestamp not after previous bar", i, b.Time.Format(time.RFC3339))
		}
	}
	return nil
}
