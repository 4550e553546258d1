// Package metrics exposes Prometheus counters for archiver invocations.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Record outcomes used as the "outcome" label.
const (
	OutcomeSkipped           = "skipped"
	OutcomeArchived          = "archived"
	OutcomeMaterializeFailed = "materialize_failed"
	OutcomeArchiveFailed     = "archive_failed"
	OutcomeDeadLettered      = "dead_lettered"
)

// Recorder holds the archiver metrics on a private registry. A nil Recorder ignores
// all observations.
type Recorder struct {
	registry *prometheus.Registry

	RecordsTotal       *prometheus.CounterVec
	BatchesTotal       prometheus.Counter
	BatchDuration      prometheus.Histogram
	ArchivePutDuration prometheus.Histogram
	ArchivedBytesTotal prometheus.Counter
	LastBatchRecords   prometheus.Gauge
	LastBatchTimestamp prometheus.Gauge
}

// New registers the archiver metrics on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttl_archiver_records_total",
				Help: "Total number of stream records processed, by outcome",
			},
			[]string{"outcome"},
		),

		BatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ttl_archiver_batches_total",
				Help: "Total number of stream batches processed",
			},
		),

		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ttl_archiver_batch_duration_seconds",
				Help:    "Duration of batch processing in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		ArchivePutDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ttl_archiver_archive_put_duration_seconds",
				Help:    "Duration of archive writes in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
		),

		ArchivedBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ttl_archiver_archived_bytes_total",
				Help: "Total bytes of archive objects written",
			},
		),

		LastBatchRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ttl_archiver_last_batch_records",
				Help: "Number of records in the most recent batch",
			},
		),

		LastBatchTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ttl_archiver_last_batch_timestamp_seconds",
				Help: "Unix time the most recent batch finished",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRecord counts one record outcome.
func (r *Recorder) ObserveRecord(outcome string) {
	if r == nil {
		return
	}
	r.RecordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveArchive records a successful write of size bytes.
func (r *Recorder) ObserveArchive(size int, d time.Duration) {
	if r == nil {
		return
	}
	r.ArchivePutDuration.Observe(d.Seconds())
	r.ArchivedBytesTotal.Add(float64(size))
}

// ObserveBatch records a finished batch.
func (r *Recorder) ObserveBatch(records int, d time.Duration) {
	if r == nil {
		return
	}
	r.BatchesTotal.Inc()
	r.BatchDuration.Observe(d.Seconds())
	r.LastBatchRecords.Set(float64(records))
	r.LastBatchTimestamp.SetToCurrentTime()
}

// Push sends the registry to a Prometheus Pushgateway. An empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
