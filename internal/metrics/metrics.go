// Package metrics exposes Prometheus instruments for batches, model updates,
// backtests and notifications.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "cortexa"

// Recorder holds every instrument. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	batches       *prometheus.CounterVec
	updates       *prometheus.CounterVec
	updateLatency *prometheus.HistogramVec
	watermark     *prometheus.GaugeVec
	samples       *prometheus.GaugeVec
	backtestRet   *prometheus.GaugeVec
	backtestMDD   *prometheus.GaugeVec
	notifications *prometheus.CounterVec
}

// New registers the instruments on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Scheduled batches by outcome",
		}, []string{"outcome"}),
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_runs_total",
			Help:      "Trainer runs per symbol by mode and result kind",
		}, []string{"symbol", "mode", "kind"}),
		updateLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "symbol_run_duration_seconds",
			Help:      "Duration of trainer runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		watermark: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_timestamp_seconds",
			Help:      "Last labeled date the model was trained through",
		}, []string{"symbol"}),
		samples: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_samples",
			Help:      "Samples seen by the model",
		}, []string{"symbol"}),
		backtestRet: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "total_return",
			Help:      "Compounded return of the last backtest",
		}, []string{"symbol"}),
		backtestMDD: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "max_drawdown",
			Help:      "Maximum drawdown of the last backtest",
		}, []string{"symbol"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by delivery result",
		}, []string{"delivered"}),
	}
}

// Registry returns the registry the instruments live on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// RecordBatch counts one scheduled batch.
func (r *Recorder) RecordBatch(outcome string) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(outcome).Inc()
}

// RecordRun counts one trainer run and its latency.
func (r *Recorder) RecordRun(symbol, mode, kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.updates.WithLabelValues(symbol, mode, kind).Inc()
	r.updateLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordModel sets the watermark and sample gauges of a symbol.
func (r *Recorder) RecordModel(symbol string, watermark time.Time, samples int) {
	if r == nil {
		return
	}
	r.watermark.WithLabelValues(symbol).Set(float64(watermark.Unix()))
	r.samples.WithLabelValues(symbol).Set(float64(samples))
}

// RecordBacktest sets the backtest gauges of a symbol.
func (r *Recorder) RecordBacktest(symbol string, totalReturn, maxDrawdown float64) {
	if r == nil {
		return
	}
	r.backtestRet.WithLabelValues(symbol).Set(totalReturn)
	r.backtestMDD.WithLabelValues(symbol).Set(maxDrawdown)
}

// RecordNotification counts one notify call.
func (r *Recorder) RecordNotification(delivered bool) {
	if r == nil {
		return
	}
	label := "false"
	if delivered {
		label = "true"
	}
	r.notifications.WithLabelValues(label).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// WriteTextfile dumps the current values in the text exposition format, for
// one-shot commands picked up by a node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
