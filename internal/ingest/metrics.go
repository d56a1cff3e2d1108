// Package ingest wires the per-message pipeline: decode, store, aggregate.
package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricMessagesProcessed = "sessionizer_messages_processed_total"
	MetricDecodeRejects     = "sessionizer_decode_rejects_total"
	MetricEventsInserted    = "sessionizer_events_inserted_total"
	MetricDuplicatesSkipped = "sessionizer_duplicates_skipped_total"
	MetricSessionUpserts    = "sessionizer_session_upserts_total"
	MetricProcessLatency    = "sessionizer_process_latency_seconds"
)

// Metrics contains Prometheus metrics for the ingestion pipeline.
// All operations are thread-safe.
type Metrics struct {
	messagesProcessed prometheus.Counter
	decodeRejects     prometheus.Counter
	eventsInserted    prometheus.Counter
	duplicatesSkipped prometheus.Counter
	sessionUpserts    prometheus.Counter
	processLatency    prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register them
// with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		messagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMessagesProcessed,
			Help: "Total number of stream messages processed",
		}),
		decodeRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDecodeRejects,
			Help: "Total number of messages dropped by the decoder",
		}),
		eventsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsInserted,
			Help: "Total number of events stored as new rows",
		}),
		duplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDuplicatesSkipped,
			Help: "Total number of redelivered events skipped by the idempotency key",
		}),
		sessionUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSessionUpserts,
			Help: "Total number of session rollup upserts",
		}),
		processLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricProcessLatency,
			Help:    "Histogram of per-message pipeline latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncMessagesProcessed increments the processed-message counter.
func (m *Metrics) IncMessagesProcessed() {
	m.messagesProcessed.Inc()
}

// IncDecodeRejects increments the decoder-rejection counter.
func (m *Metrics) IncDecodeRejects() {
	m.decodeRejects.Inc()
}

// IncEventsInserted increments the stored-event counter.
func (m *Metrics) IncEventsInserted() {
	m.eventsInserted.Inc()
}

// IncDuplicatesSkipped increments the skipped-redelivery counter.
func (m *Metrics) IncDuplicatesSkipped() {
	m.duplicatesSkipped.Inc()
}

// IncSessionUpserts increments the session-upsert counter.
func (m *Metrics) IncSessionUpserts() {
	m.sessionUpserts.Inc()
}

// ObserveProcessLatency records a pipeline latency sample.
func (m *Metrics) ObserveProcessLatency(seconds float64) {
	m.processLatency.Observe(seconds)
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.messagesProcessed,
		m.decodeRejects,
		m.eventsInserted,
		m.duplicatesSkipped,
		m.sessionUpserts,
		m.processLatency,
	}
}
