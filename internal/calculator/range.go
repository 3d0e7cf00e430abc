package calculator

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// BandPosition returns where each price sits between the rolling mean -/+ k population
// standard deviations (0 = lower band, 1 = upper band). A zero-width band yields NaN.
func BandPosition(prices []float64, period int, k float64) []float64 {
	if period < 2 || len(prices) < period {
		return nanSeries(len(prices))
	}
	upper, _, lower := talib.BBands(prices, period, k, k, talib.SMA)
	out := make([]float64, len(prices))
	for i := range prices {
		width := upper[i] - lower[i]
		if i < period-1 || width == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (prices[i] - lower[i]) / width
	}
	return out
}

// ATR returns the simple rolling mean of true range over the given period.
// True range needs the previous close, so the first value sits at index period.
func ATR(high, low, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSeries(n)
	if period <= 0 || n <= period {
		return out
	}
	tr := talib.TRange(high, low, closes)
	avg := talib.Sma(tr[1:], period)
	for i := period - 1; i < len(avg); i++ {
		out[i+1] = avg[i]
	}
	return out
}

// RollingStd returns the population standard deviation over a trailing window.
// Leading NaNs in values (another indicator's warm-up) shift the first full window.
func RollingStd(values []float64, period int) []float64 {
	n := len(values)
	out := nanSeries(n)
	start := 0
	for start < n && math.IsNaN(values[start]) {
		start++
	}
	if period < 2 || n-start < period {
		return out
	}
	sd := talib.StdDev(values[start:], period, 1.0)
	for i := period - 1; i < len(sd); i++ {
		out[start+i] = sd[i]
	}
	return out
}

// RollingQuantile returns the q-quantile of each trailing window of the given size.
// A window containing NaN, or an incomplete one, yields NaN.
func RollingQuantile(values []float64, window int, q float64) []float64 {
	n := len(values)
	out := nanSeries(n)
	if window <= 0 {
		return out
	}
	buf := make([]float64, window)
	for i := window - 1; i < n; i++ {
		copy(buf, values[i-window+1:i+1])
		if hasNaN(buf) {
			continue
		}
		sort.Float64s(buf)
		out[i] = stat.Quantile(q, stat.LinInterp, buf, nil)
	}
	return out
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
