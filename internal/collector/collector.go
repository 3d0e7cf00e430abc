package collector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"Cortexa/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Bars []model.OHLCV
	Err  error
	mu   sync.Mutex
	// Calls counts FetchBars invocations per symbol.
	Calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(_ context.Context, symbol, _ string, start, end time.Time) ([]model.OHLCV, error) {
	m.mu.Lock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[symbol]++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []model.OHLCV
	for _, b := range m.Bars {
		if !b.Time.Before(start) && b.Time.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// GenerateBars builds a deterministic daily series starting at start: a slow trend
// plus two cycles, so indicators and labels take both signs.
func GenerateBars(start time.Time, count int, basePrice float64) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		x := float64(i)
		p := basePrice * (1 + 0.0008*x + 0.06*math.Sin(x/9) + 0.025*math.Sin(x/2.3))
		bars[i] = model.OHLCV{
			Time:   start.AddDate(0, 0, i),
			Open:   p * (1 - 0.004*math.Cos(x/3)),
			High:   p * 1.012,
			Low:    p * 0.988,
			Close:  p,
			Volume: 1000000 * (1.5 + math.Sin(x/5)),
		}
	}
	return bars
}

// Collector fetches bars and enforces the series invariants the feature pipeline relies on.
type Collector struct {
	Fetcher Fetcher
	log     zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, log zerolog.Logger) *Collector {
	return &Collector{Fetcher: fetcher, log: log.With().Str("source", fetcher.Name()).Logger()}
}

// Collect fetches [start, end) bars for a symbol. Non-finite or non-positive bars are
// dropped, duplicates by timestamp keep the last occurrence, and the result is sorted.
func (c *Collector) Collect(ctx context.Context, symbol, interval string, start, end time.Time) (*model.PriceSeries, error) {
	raw, err := c.Fetcher.FetchBars(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch %s bars: %w", symbol, err)
	}
	bars := Clean(raw)
	if dropped := len(raw) - len(bars); dropped > 0 {
		c.log.Warn().Str("symbol", symbol).Int("dropped", dropped).Msg("dropped malformed bars")
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("fetch %s bars %s..%s: %w", symbol,
			start.Format(model.DateLayout), end.Format(model.DateLayout), ErrNoData)
	}
	return &model.PriceSeries{Symbol: symbol, Interval: interval, Bars: bars, FetchedAt: time.Now()}, nil
}

// Clean drops unusable bars and returns a strictly time-ordered copy.
func Clean(raw []model.OHLCV) []model.OHLCV {
	byTime := make(map[int64]model.OHLCV, len(raw))
	for _, b := range raw {
		if !b.Finite() || b.Close <= 0 || b.High < b.Low {
			continue
		}
		byTime[b.Time.UnixNano()] = b
	}
	bars := make([]model.OHLCV, 0, len(byTime))
	for _, b := range byTime {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars
}
