// Package metrics collects batch-run counters for Prometheus.
//
// A batch is a one-shot process, so metrics live on a private registry
// and are written out once with WriteTextfile for the node_exporter
// textfile collector instead of being served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns one registry and the batch metrics registered on it.
// All methods are safe on a nil *Recorder, which records nothing.
type Recorder struct {
	registry *prometheus.Registry

	units         *prometheus.CounterVec
	unitFailures  *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	candidates    prometheus.Histogram
	subjects      prometheus.Gauge
}

// New creates a Recorder on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		units: f.NewCounterVec(prometheus.CounterOpts{
			Name: "danny_units_total",
			Help: "Prune or score units completed",
		}, []string{"phase"}),
		unitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "danny_unit_failures_total",
			Help: "Prune or score units that failed",
		}, []string{"phase"}),
		phaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "danny_phase_duration_seconds",
			Help:    "Wall time of each batch phase",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"phase"}),
		candidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "danny_candidates",
			Help:    "Candidates kept per subject after pruning",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 250, 500, 1000},
		}),
		subjects: f.NewGauge(prometheus.GaugeOpts{
			Name: "danny_subjects",
			Help: "Subjects in the most recent batch",
		}),
	}
}

// Registry exposes the underlying registry as a gatherer.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) UnitDone(phase string) {
	if r == nil {
		return
	}
	r.units.WithLabelValues(phase).Inc()
}

func (r *Recorder) UnitFailed(phase string) {
	if r == nil {
		return
	}
	r.unitFailures.WithLabelValues(phase).Inc()
}

func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (r *Recorder) ObserveCandidates(n int) {
	if r == nil {
		return
	}
	r.candidates.Observe(float64(n))
}

func (r *Recorder) SetSubjects(n int) {
	if r == nil {
		return
	}
	r.subjects.Set(float64(n))
}

// WriteTextfile writes every metric to path in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
