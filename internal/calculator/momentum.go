package calculator

import "github.com/markcheno/go-talib"

// PctChange returns the fractional price change over n bars: p[t]/p[t-n] - 1.
func PctChange(prices []float64, n int) []float64 {
	if n <= 0 || len(prices) <= n {
		return nanSeries(len(prices))
	}
	return mask(talib.Rocp(prices, n), n)
}
