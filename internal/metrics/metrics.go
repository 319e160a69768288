// Package metrics exposes Prometheus metrics for pipeline runs.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crimson-sun/sluice/internal/model"
)

const namespace = "sluice"

// Skip reasons for ticks that did not start a run.
const (
	SkipBusy   = "busy"
	SkipPaused = "paused"
)

// Metrics holds the pipeline's collectors.
type Metrics struct {
	Runs          *prometheus.CounterVec
	TicksSkipped  *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	RowsExtracted prometheus.Counter
	Watermark     prometheus.Gauge
	RunInProgress prometheus.Gauge
	StageDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by status.",
		}, []string{"status"}),
		TicksSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Scheduler ticks that did not start a run.",
		}, []string{"reason"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_fallbacks_total",
			Help:      "Inference calls that returned the fallback text.",
		}, []string{"reason"}),
		RowsExtracted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_extracted_total",
			Help:      "Rows read from the source.",
		}),
		Watermark: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_timestamp_seconds",
			Help:      "Current watermark as a Unix timestamp.",
		}),
		RunInProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a run is executing.",
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each run stage.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 5, 15, 30, 60, 120},
		}, []string{"stage"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(r model.RunReport) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(r.Status)).Inc()
	m.RowsExtracted.Add(float64(r.RowCount))
	if !r.CursorAfter.IsZero() {
		m.SetWatermark(r.CursorAfter)
	}
}

// SetWatermark sets the watermark gauge.
func (m *Metrics) SetWatermark(t time.Time) {
	if m == nil {
		return
	}
	m.Watermark.Set(float64(t.UnixNano()) / 1e9)
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage model.Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// TickSkipped counts a tick that did not start a run.
func (m *Metrics) TickSkipped(reason string) {
	if m == nil {
		return
	}
	m.TicksSkipped.WithLabelValues(reason).Inc()
}

// Fallback counts an inference fallback.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(reason).Inc()
}

// SetRunning flips the in-progress gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.RunInProgress.Set(1)
	} else {
		m.RunInProgress.Set(0)
	}
}
