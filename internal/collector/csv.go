package collector

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"Cortexa/internal/model"
)

// CSVFetcher reads bars from local CSV files with a header row containing
// timestamp (or time/date), open, high, low, close and volume. Path may contain
// "{symbol}", which is replaced by the requested symbol.
type CSVFetcher struct {
	Path string
}

func (f *CSVFetcher) Name() string { return "csv" }

func (f *CSVFetcher) FetchBars(_ context.Context, symbol, _ string, start, end time.Time) ([]model.OHLCV, error) {
	path := strings.ReplaceAll(f.Path, "{symbol}", symbol)
	bars, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if !b.Time.Before(start) && b.Time.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// LoadCSV reads an OHLCV CSV. Headers are case-insensitive; unknown columns are ignored.
// Rows with an unparsable timestamp or price are skipped rather than zero-filled.
func LoadCSV(path string) ([]model.OHLCV, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header %s: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	tsCol, ok := firstCol(col, "timestamp", "time", "date", "datetime")
	if !ok {
		return nil, fmt.Errorf("csv %s: missing timestamp column", path)
	}
	need := []string{"open", "high", "low", "close", "volume"}
	idx := make([]int, len(need))
	for i, name := range need {
		j, ok := col[name]
		if !ok {
			return nil, fmt.Errorf("csv %s: missing %s column", path, name)
		}
		idx[i] = j
	}

	var bars []model.OHLCV
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if tsCol >= len(rec) {
			continue
		}
		ts, err := ParseTime(strings.TrimSpace(rec[tsCol]))
		if err != nil {
			continue
		}
		var vals [5]float64
		valid := true
		for i, j := range idx {
			if j >= len(rec) {
				valid = false
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				valid = false
				break
			}
			vals[i] = v
		}
		if !valid {
			continue
		}
		bars = append(bars, model.OHLCV{Time: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]})
	}
	return Clean(bars), nil
}

// ParseTime accepts RFC3339, "2006-01-02 15:04:05", a plain date, or unix seconds.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", model.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %q", s)
}

func firstCol(col map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := col[n]; ok {
			return i, true
		}
	}
	return 0, false
}

// WriteCSV writes bars in the layout LoadCSV reads, so a fetched series can be
// replayed later through a CSVFetcher.
func WriteCSV(path string, bars []model.OHLCV) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(fh)
	_ = w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"})
	for _, b := range bars {
		_ = w.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			fmtFloat(b.Open), fmtFloat(b.High), fmtFloat(b.Low), fmtFloat(b.Close), fmtFloat(b.Volume),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func fmtFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
