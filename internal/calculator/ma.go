package calculator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// EMA returns the exponential moving average of prices over the given span.
// Positions before the first full window are NaN.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nanSeries(len(prices))
	}
	return mask(talib.Ema(prices, period), period-1)
}

// Distance returns the fractional distance of each price to its reference: price/ref - 1.
func Distance(prices, ref []float64) []float64 {
	out := make([]float64, len(prices))
	for i := range prices {
		out[i] = prices[i]/ref[i] - 1.0
	}
	return out
}

// MACD returns the fast-minus-slow EMA line, its smoothed signal line and the histogram.
func MACD(prices []float64, fast, slow, signal int) (line, sig, hist []float64) {
	lookback := (slow - 1) + (signal - 1)
	if fast <= 0 || slow <= fast || signal <= 0 || len(prices) <= lookback {
		n := len(prices)
		return nanSeries(n), nanSeries(n), nanSeries(n)
	}
	line, sig, hist = talib.Macd(prices, fast, slow, signal)
	return mask(line, lookback), mask(sig, lookback), mask(hist, lookback)
}

// nanSeries returns n NaNs.
func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// mask replaces the warm-up positions [0, start) with NaN so that callers can drop them.
func mask(series []float64, start int) []float64 {
	for i := 0; i < start && i < len(series); i++ {
		series[i] = math.NaN()
	}
	return series
}
