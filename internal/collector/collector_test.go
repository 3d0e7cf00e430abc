package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"Cortexa/internal/model"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClean_DropsAndSorts(t *testing.T) {
	bars := GenerateBars(day0, 5, 100)
	raw := []model.OHLCV{
		bars[2], bars[0],
		{Time: bars[1].Time, Close: math.NaN()},
		bars[1],
		{Time: day0.AddDate(0, 0, 10), Open: 1, High: 1, Low: 1, Close: 0},
		bars[2],
	}
	got := Clean(raw)
	if len(got) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(got))
	}
	if err := model.ValidateBars(got); err != nil {
		t.Fatalf("cleaned bars invalid: %v", err)
	}
}

func TestCollector_NoData(t *testing.T) {
	c := NewCollector(&MockFetcher{}, zerolog.Nop())
	_, err := c.Collect(context.Background(), "BTC", "1d", day0, day0.AddDate(0, 0, 10))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestCollector_FetchError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCollector(&MockFetcher{Err: boom}, zerolog.Nop())
	_, err := c.Collect(context.Background(), "BTC", "1d", day0, day0.AddDate(0, 0, 10))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}

func TestMockFetcher_Window(t *testing.T) {
	m := &MockFetcher{Bars: GenerateBars(day0, 30, 100)}
	got, err := m.FetchBars(context.Background(), "ETH", "1d", day0.AddDate(0, 0, 5), day0.AddDate(0, 0, 10))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 bars in [start, end), got %d", len(got))
	}
	if m.Calls["ETH"] != 1 {
		t.Errorf("expected one recorded call, got %d", m.Calls["ETH"])
	}
}

func TestYahooFetcher_SkipsNullBars(t *testing.T) {
	t0 := day0.Unix()
	body := fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%d,%d,%d],
		"indicators":{"quote":[{"open":[1,null,3],"high":[1.1,2.1,3.1],"low":[0.9,1.9,2.9],
		"close":[1,2,3],"volume":[10,20,30]}]}}],"error":null}}`, t0, t0+86400, t0+2*86400)

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	bars, err := f.FetchBars(context.Background(), "BTC", "1d", day0, day0.AddDate(0, 0, 3))
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/v8/finance/chart/BTC-USD" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if len(bars) != 2 {
		t.Fatalf("expected null bar to be skipped, got %d bars", len(bars))
	}
	if bars[1].Close != 3 {
		t.Errorf("expected second bar close 3, got %v", bars[1].Close)
	}
}

func TestYahooFetcher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	if _, err := f.FetchBars(context.Background(), "XXX", "1d", day0, day0.AddDate(0, 0, 3)); err == nil {
		t.Fatal("expected api error")
	}
}

func TestCSVFetcher(t *testing.T) {
	dir := t.TempDir()
	data := "Date,Open,High,Low,Close,Volume,Extra\n" +
		"2024-01-02,2,2.2,1.8,2,100,x\n" +
		"2024-01-01,1,1.1,0.9,1,100,x\n" +
		"bad,1,1,1,1,1,x\n" +
		"2024-01-03,3,3.3,2.7,n/a,100,x\n" +
		"2024-01-04,4,4.4,3.6,4,100,x\n"
	if err := os.WriteFile(filepath.Join(dir, "SOL.csv"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &CSVFetcher{Path: filepath.Join(dir, "{symbol}.csv")}
	bars, err := f.FetchBars(context.Background(), "SOL", "1d", day0, day0.AddDate(0, 0, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[0].Time.Equal(day0) {
		t.Errorf("expected sorted output, first bar at %v", bars[0].Time)
	}
}

func TestCSVFetcher_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	os.WriteFile(path, []byte("date,open,high,low,close\n2024-01-01,1,1,1,1\n"), 0o644)
	if _, err := LoadCSV(path); err == nil {
		t.Fatal("expected missing volume column error")
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01", day0},
		{"2024-01-01 00:00:00", day0},
		{"2024-01-01T00:00:00Z", day0},
		{fmt.Sprint(day0.Unix()), day0},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFetcher(t *testing.T) {
	tests := []struct {
		kind, csv string
		want      string
		wantErr   bool
	}{
		{"", "", "yahoo", false},
		{"yahoo", "", "yahoo", false},
		{"csv", "bars/{symbol}.csv", "csv", false},
		{"csv", "", "", true},
		{"binance", "", "", true},
	}
	for _, tt := range tests {
		f, err := NewFetcher(tt.kind, tt.csv, "")
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.kind)
			}
			continue
		}
		if err != nil || f.Name() != tt.want {
			t.Errorf("%q: got %v, %v", tt.kind, f, err)
		}
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	bars := GenerateBars(day0, 30, 100)
	if err := WriteCSV(path, bars); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(bars) {
		t.Fatalf("got %d bars, want %d", len(got), len(bars))
	}
	for i := range bars {
		if !got[i].Time.Equal(bars[i].Time) || math.Abs(got[i].Close-bars[i].Close) > 1e-9 {
			t.Fatalf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}
}
