// Package metrics counts download outcomes and exports them in the
// Prometheus text format for the node exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the counters of one process.
type Recorder struct {
	registry *prometheus.Registry

	subjects    prometheus.Counter
	downloaded  prometheus.Counter
	skipped     prometheus.Counter
	failures    prometheus.Counter
	lastRunTime prometheus.Gauge
}

// NewRecorder registers the downxnat metrics on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		subjects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downxnat_subjects_downloaded_total",
			Help: "Subjects whose directory and metadata were written.",
		}),
		downloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downxnat_experiments_downloaded_total",
			Help: "Experiments whose archives were downloaded.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downxnat_experiments_skipped_total",
			Help: "Experiments without downloadable files.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downxnat_subject_failures_total",
			Help: "Subjects whose download failed.",
		}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "downxnat_last_run_timestamp_seconds",
			Help: "Unix time at which the last run finished.",
		}),
	}
	r.registry.MustRegister(r.subjects, r.downloaded, r.skipped, r.failures, r.lastRunTime)
	return r
}

// SubjectDone counts a finished subject and its experiments.
func (r *Recorder) SubjectDone(downloaded, skipped int) {
	r.subjects.Inc()
	r.downloaded.Add(float64(downloaded))
	r.skipped.Add(float64(skipped))
}

// SubjectFailed counts a failed subject.
func (r *Recorder) SubjectFailed() {
	r.failures.Inc()
}

// RunFinished stamps the end of a run.
func (r *Recorder) RunFinished(t time.Time) {
	r.lastRunTime.Set(float64(t.Unix()))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteFile writes the metrics to path atomically.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
