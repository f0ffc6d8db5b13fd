// Package metrics records verification outcomes in a Prometheus registry
// and writes it in node-exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/veridoc/internal/verify"
)

// Recorder implements verify.Metrics.
type Recorder struct {
	reg       *prometheus.Registry
	outcomes  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	cacheHits *prometheus.CounterVec
	batches   *prometheus.CounterVec
	duration  prometheus.Histogram
	lastRun   prometheus.Gauge
	lastFail  prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veridoc",
			Name:      "unit_outcomes_total",
			Help:      "Verification unit outcomes by status and provider.",
		}, []string{"status", "provider", "model"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "veridoc",
			Name:      "unit_duration_seconds",
			Help:      "Wall time per verification unit, prompt to saved report.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"provider", "model"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veridoc",
			Name:      "cache_hits_total",
			Help:      "Units answered from the response cache.",
		}, []string{"provider"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veridoc",
			Name:      "batches_total",
			Help:      "Completed batches by discipline.",
		}, []string{"discipline"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "veridoc",
			Name:      "batch_duration_seconds",
			Help:      "Wall time per batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "veridoc",
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time the last batch finished.",
		}),
		lastFail: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "veridoc",
			Name:      "last_batch_failed_units",
			Help:      "Failed units in the last batch.",
		}),
	}
	r.reg.MustRegister(r.outcomes, r.latency, r.cacheHits, r.batches, r.duration, r.lastRun, r.lastFail)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObserveUnit records one unit outcome.
func (r *Recorder) ObserveUnit(o verify.Outcome) {
	status := "succeeded"
	if !o.Success {
		status = "failed"
	}
	r.outcomes.WithLabelValues(status, o.Provider, o.Model).Inc()
	r.latency.WithLabelValues(o.Provider, o.Model).Observe(o.Duration.Seconds())
	if o.Cached {
		r.cacheHits.WithLabelValues(o.Provider).Inc()
	}
}

// ObserveBatch records a finished batch.
func (r *Recorder) ObserveBatch(res *verify.BatchResult) {
	r.batches.WithLabelValues(string(res.Discipline)).Inc()
	r.duration.Observe(res.Duration().Seconds())
	r.lastRun.Set(float64(res.FinishedAt.Unix()))
	r.lastFail.Set(float64(res.Failed))
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
