package calculator

import "github.com/markcheno/go-talib"

// RSI computes the Wilder-smoothed relative strength index (0-100) over the given period.
// Requires period+1 prices for the first value; earlier positions are NaN.
func RSI(prices []float64, period int) []float64 {
	if period < 2 || len(prices) <= period {
		return nanSeries(len(prices))
	}
	return mask(talib.Rsi(prices, period), period)
}

// ADX computes the average directional index, a trend-strength measure on a 0-100 scale.
func ADX(high, low, closes []float64, period int) []float64 {
	lookback := 2*period - 1
	if period < 2 || len(closes) <= lookback {
		return nanSeries(len(closes))
	}
	return mask(talib.Adx(high, low, closes, period), lookback)
}
