// Package metrics records run statistics in a private Prometheus
// registry and writes them in text format for the node_exporter
// textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/geosplit/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects the metrics of one run
type Recorder struct {
	reg           *prometheus.Registry
	boundaries    *prometheus.CounterVec
	stages        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rows          *prometheus.CounterVec
	lastRun       prometheus.Gauge
	runDuration   prometheus.Gauge
}

// New creates a Recorder with every metric registered
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		boundaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geosplit_boundaries_total",
			Help: "Boundary files processed, by outcome.",
		}, []string{"category", "outcome"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geosplit_stage_results_total",
			Help: "Stage results, by stage and status.",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geosplit_stage_duration_seconds",
			Help:    "Stage wall time.",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 10),
		}, []string{"stage"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geosplit_rows_written_total",
			Help: "Dataset rows written to boundary subsets.",
		}, []string{"category"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geosplit_last_run_timestamp_seconds",
			Help: "Unix time the last run started.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geosplit_last_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
	r.reg.MustRegister(r.boundaries, r.stages, r.stageDuration, r.rows, r.lastRun, r.runDuration)
	return r
}

// Registry exposes the underlying registry, mainly for tests
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// ObserveBoundary records one boundary's stages and outcome
func (r *Recorder) ObserveBoundary(category string, res model.BoundaryResult) {
	r.boundaries.WithLabelValues(category, string(res.Outcome)).Inc()
	r.rows.WithLabelValues(category).Add(float64(res.Rows))
	for _, s := range res.Stages {
		r.stages.WithLabelValues(string(s.Stage), string(s.Status)).Inc()
		if s.Status != model.StatusSkipped {
			r.stageDuration.WithLabelValues(string(s.Stage)).Observe(s.Duration.Seconds())
		}
	}
}

// ObserveRun records run-level timing
func (r *Recorder) ObserveRun(summary *model.RunSummary) {
	r.lastRun.Set(float64(summary.StartedAt.Unix()))
	r.runDuration.Set(summary.Elapsed.Seconds())
}

// WriteFile writes all metrics to path in Prometheus text format
func (r *Recorder) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
