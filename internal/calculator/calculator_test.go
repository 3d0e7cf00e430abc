package calculator

import (
	"math"
	"testing"
)

func wave(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = 100 + 5*math.Sin(x/4) + 0.1*x
	}
	return out
}

func TestEMA_Constant(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 42
	}
	ema := EMA(prices, 10)
	for i := 0; i < 9; i++ {
		if !math.IsNaN(ema[i]) {
			t.Fatalf("expected NaN warm-up at %d, got %v", i, ema[i])
		}
	}
	for i := 9; i < len(ema); i++ {
		if math.Abs(ema[i]-42) > 1e-9 {
			t.Fatalf("EMA of constant series at %d = %v", i, ema[i])
		}
	}
}

func TestShortInputReturnsNaN(t *testing.T) {
	p := wave(5)
	for name, s := range map[string][]float64{
		"ema":  EMA(p, 20),
		"rsi":  RSI(p, 14),
		"pct":  PctChange(p, 7),
		"bb":   BandPosition(p, 20, 2),
		"atr":  ATR(p, p, p, 14),
		"adx":  ADX(p, p, p, 14),
		"std":  RollingStd(p, 10),
		"quan": RollingQuantile(p, 10, 0.5),
	} {
		if len(s) != len(p) {
			t.Errorf("%s: length %d, want %d", name, len(s), len(p))
		}
		for i, v := range s {
			if !math.IsNaN(v) {
				t.Errorf("%s[%d] = %v, want NaN", name, i, v)
			}
		}
	}
	line, sig, hist := MACD(p, 12, 26, 9)
	if !math.IsNaN(line[4]) || !math.IsNaN(sig[4]) || !math.IsNaN(hist[4]) {
		t.Error("expected NaN MACD on short input")
	}
}

func TestRSI_Range(t *testing.T) {
	rsi := RSI(wave(200), 14)
	for i := 0; i < 14; i++ {
		if !math.IsNaN(rsi[i]) {
			t.Fatalf("expected NaN at %d", i)
		}
	}
	for i := 14; i < len(rsi); i++ {
		if rsi[i] < 0 || rsi[i] > 100 {
			t.Fatalf("RSI out of range at %d: %v", i, rsi[i])
		}
	}
}

func TestMACD_Warmup(t *testing.T) {
	line, sig, hist := MACD(wave(100), 12, 26, 9)
	if !math.IsNaN(line[32]) || math.IsNaN(line[33]) {
		t.Fatalf("expected first MACD value at 33, got line[32]=%v line[33]=%v", line[32], line[33])
	}
	for i := 33; i < 100; i++ {
		if math.Abs(hist[i]-(line[i]-sig[i])) > 1e-9 {
			t.Fatalf("hist != line - signal at %d", i)
		}
	}
}

func TestBandPosition(t *testing.T) {
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 10
	}
	for i, v := range BandPosition(flat, 20, 2) {
		if !math.IsNaN(v) {
			t.Fatalf("zero-width band should give NaN at %d, got %v", i, v)
		}
	}
	bb := BandPosition(wave(60), 20, 2)
	if math.IsNaN(bb[19]) {
		t.Fatal("expected first value at index 19")
	}
}

func TestATR_FirstIndex(t *testing.T) {
	p := wave(40)
	high := make([]float64, len(p))
	low := make([]float64, len(p))
	for i := range p {
		high[i], low[i] = p[i]+1, p[i]-1
	}
	atr := ATR(high, low, p, 14)
	if !math.IsNaN(atr[13]) || math.IsNaN(atr[14]) {
		t.Fatalf("expected first ATR at 14, got atr[13]=%v atr[14]=%v", atr[13], atr[14])
	}
	if atr[14] < 2-1e-9 {
		t.Errorf("true range is at least high-low=2, got %v", atr[14])
	}
}

func TestPctChange(t *testing.T) {
	got := PctChange([]float64{100, 110, 121}, 1)
	if !math.IsNaN(got[0]) {
		t.Error("expected NaN at 0")
	}
	for i := 1; i < 3; i++ {
		if math.Abs(got[i]-0.1) > 1e-12 {
			t.Errorf("pct[%d] = %v, want 0.1", i, got[i])
		}
	}
}

func TestRollingStd_SkipsLeadingNaN(t *testing.T) {
	vals := []float64{math.NaN(), 1, 3, 1, 3}
	sd := RollingStd(vals, 2)
	if !math.IsNaN(sd[1]) {
		t.Fatalf("expected NaN at 1, got %v", sd[1])
	}
	for i := 2; i < len(vals); i++ {
		if math.Abs(sd[i]-1) > 1e-9 {
			t.Errorf("population std at %d = %v, want 1", i, sd[i])
		}
	}
}

func TestRollingQuantile(t *testing.T) {
	q := RollingQuantile([]float64{5, 1, 3, 2, 4}, 5, 0.5)
	for i := 0; i < 4; i++ {
		if !math.IsNaN(q[i]) {
			t.Fatalf("expected NaN at %d", i)
		}
	}
	if q[4] < 2 || q[4] > 3 {
		t.Errorf("median = %v, want within [2, 3]", q[4])
	}
	top := RollingQuantile([]float64{5, 1, 3, 2, 4}, 5, 1)
	if top[4] != 5 {
		t.Errorf("q=1 quantile = %v, want max 5", top[4])
	}
}
