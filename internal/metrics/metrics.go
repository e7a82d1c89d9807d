// Package metrics records run counters for a kinwin batch and writes them in
// the Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithConstLabels adds labels to every metric, e.g. the run id.
func WithConstLabels(labels map[string]string) Option {
	return func(r *Recorder) {
		for k, v := range labels {
			r.labels[k] = v
		}
	}
}

// Recorder holds the run counters on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	namespace string
	labels    prometheus.Labels
	registry  *prometheus.Registry

	occurrences  prometheus.Counter
	rows         prometheus.Counter
	missing      prometheus.Counter
	chromosomes  *prometheus.CounterVec
	tableRecords prometheus.Gauge
	windowTime   prometheus.Histogram
	runSeconds   prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "kinwin",
		labels:    prometheus.Labels{},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.occurrences = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace, Name: "occurrences_total",
		Help: "Occurrences processed.", ConstLabels: r.labels,
	})
	r.rows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace, Name: "rows_total",
		Help: "Output rows written.", ConstLabels: r.labels,
	})
	r.missing = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace, Name: "missing_lookups_total",
		Help: "Window keys with no kinetics data.", ConstLabels: r.labels,
	})
	r.chromosomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Name: "chromosome_lookups_total",
		Help: "Window keys looked up per chromosome.", ConstLabels: r.labels,
	}, []string{"chrom"})
	r.tableRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace, Name: "table_records",
		Help: "Records in the row-indexed kinetics table.", ConstLabels: r.labels,
	})
	r.windowTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace, Name: "window_seconds",
		Help:        "Time to look up and write one occurrence window.",
		Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
		ConstLabels: r.labels,
	})
	r.runSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace, Name: "run_seconds",
		Help: "Wall time of the run.", ConstLabels: r.labels,
	})

	r.registry.MustRegister(r.occurrences, r.rows, r.missing, r.chromosomes,
		r.tableRecords, r.windowTime, r.runSeconds)
	return r
}

// Occurrence records one processed occurrence and the rows it produced.
func (r *Recorder) Occurrence(chrom string, rows, missing int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.occurrences.Inc()
	r.rows.Add(float64(rows))
	r.missing.Add(float64(missing))
	r.chromosomes.WithLabelValues(chrom).Add(float64(rows))
	r.windowTime.Observe(elapsed.Seconds())
}

// TableRecords records the size of the row-indexed table.
func (r *Recorder) TableRecords(n int) {
	if r == nil {
		return
	}
	r.tableRecords.Set(float64(n))
}

// RunDuration records the total run time.
func (r *Recorder) RunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.runSeconds.Set(d.Seconds())
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
