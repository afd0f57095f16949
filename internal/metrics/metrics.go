// Package metrics holds the Prometheus collectors for pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for voxcmd.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	ActiveRuns    prometheus.Gauge
	AudioBytes    prometheus.Histogram
	Coercions     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxcmd_runs_total",
			Help: "Pipeline runs by outcome and error kind",
		}, []string{"outcome", "kind"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxcmd_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
		}, []string{"stage"}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxcmd_active_runs",
			Help: "Pipeline runs currently in progress",
		}),
		AudioBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxcmd_audio_bytes",
			Help:    "Size of submitted audio clips",
			Buckets: prometheus.ExponentialBuckets(4<<10, 2, 12), // 4KB to 8MB
		}),
		Coercions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxcmd_coercions_total",
			Help: "Fields of model output replaced by defaults",
		}, []string{"field"}),
	}
}

// RunStarted records a new run and its input size.
func (m *Metrics) RunStarted(size int) {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
	m.AudioBytes.Observe(float64(size))
}

// RunFinished records the outcome of a run. kind is empty on success.
func (m *Metrics) RunFinished(success bool, kind string) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.Runs.WithLabelValues(outcome, kind).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Coerced counts one field replaced by the parser.
func (m *Metrics) Coerced(field string) {
	if m == nil {
		return
	}
	m.Coercions.WithLabelValues(field).Inc()
}
