package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.RecordBatch("ok")
	r.RecordRun("BTC", "update", "ok", time.Second)
	r.RecordRun("BTC", "update", "ok", time.Second)
	r.RecordModel("BTC", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 120)
	r.RecordNotification(false)

	if got := testutil.ToFloat64(r.updates.WithLabelValues("BTC", "update", "ok")); got != 2 {
		t.Errorf("runs counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.samples.WithLabelValues("BTC")); got != 120 {
		t.Errorf("samples gauge = %v, want 120", got)
	}
	if got := testutil.ToFloat64(r.notifications.WithLabelValues("false")); got != 1 {
		t.Errorf("notifications = %v, want 1", got)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.RecordBatch("ok")
	r.RecordRun("BTC", "update", "ok", time.Second)
	r.RecordBacktest("BTC", 0.1, -0.05)
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RecordBacktest("ETH-USD", 0.12, -0.04)
	path := filepath.Join(t.TempDir(), "backtest.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `cortexa_backtest_total_return{symbol="ETH-USD"} 0.12`) {
		t.Errorf("textfile:\n%s", data)
	}
}
