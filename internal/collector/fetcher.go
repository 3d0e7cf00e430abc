package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Cortexa/internal/model"
)

// ErrNoData is returned when an upstream source yields no usable bars.
var ErrNoData = errors.New("no bars returned")

// Fetcher defines the interface for fetching market data.
// start is inclusive, end is exclusive.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.OHLCV, error)
	Name() string
}

// NewFetcher builds the fetcher for a source kind, "yahoo" or "csv".
func NewFetcher(kind, csvPath, proxyURL string) (Fetcher, error) {
	switch kind {
	case "", "yahoo":
		return NewYahooFetcher(proxyURL), nil
	case "csv":
		if csvPath == "" {
			return nil, errors.New("csv source needs a file path")
		}
		return &CSVFetcher{Path: csvPath}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q", kind)
	}
}
