// Package stats provides utilities for tracking ingestion pipeline statistics.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// IngestStats tracks cumulative statistics for the ingestion pipeline.
// All operations are thread-safe using atomic counters.
type IngestStats struct {
	processed  int64 // Total messages received from the stream
	inserted   int64 // Events stored as new rows
	duplicates int64 // Redeliveries skipped by the idempotency key
	rejected   int64 // Messages dropped by the decoder
	upserts    int64 // Session rollup upserts performed
}

// NewIngestStats creates a new IngestStats instance.
func NewIngestStats() *IngestStats {
	return &IngestStats{}
}

// RecordProcessed increments the processed-message counter.
func (s *IngestStats) RecordProcessed() {
	atomic.AddInt64(&s.processed, 1)
}

// RecordInsert increments the inserted-event counter.
func (s *IngestStats) RecordInsert() {
	atomic.AddInt64(&s.inserted, 1)
}

// RecordDuplicate increments the skipped-redelivery counter.
func (s *IngestStats) RecordDuplicate() {
	atomic.AddInt64(&s.duplicates, 1)
}

// RecordReject increments the decoder-rejection counter.
func (s *IngestStats) RecordReject() {
	atomic.AddInt64(&s.rejected, 1)
}

// RecordUpsert increments the session-upsert counter.
func (s *IngestStats) RecordUpsert() {
	atomic.AddInt64(&s.upserts, 1)
}

// Processed returns the total number of messages received.
func (s *IngestStats) Processed() int64 {
	return atomic.LoadInt64(&s.processed)
}

// Inserted returns the total number of events stored as new rows.
func (s *IngestStats) Inserted() int64 {
	return atomic.LoadInt64(&s.inserted)
}

// Duplicates returns the total number of skipped redeliveries.
func (s *IngestStats) Duplicates() int64 {
	return atomic.LoadInt64(&s.duplicates)
}

// Rejected returns the total number of messages dropped by the decoder.
func (s *IngestStats) Rejected() int64 {
	return atomic.LoadInt64(&s.rejected)
}

// Upserts returns the total number of session rollup upserts.
func (s *IngestStats) Upserts() int64 {
	return atomic.LoadInt64(&s.upserts)
}

// Reset resets all counters to zero.
func (s *IngestStats) Reset() {
	atomic.StoreInt64(&s.processed, 0)
	atomic.StoreInt64(&s.inserted, 0)
	atomic.StoreInt64(&s.duplicates, 0)
	atomic.StoreInt64(&s.rejected, 0)
	atomic.StoreInt64(&s.upserts, 0)
}

// String returns a human-readable summary of the statistics.
func (s *IngestStats) String() string {
	return fmt.Sprintf("processed=%d inserted=%d duplicates=%d rejected=%d upserts=%d",
		s.Processed(), s.Inserted(), s.Duplicates(), s.Rejected(), s.Upserts())
}

// LogSummary logs a summary of ingestion statistics at INFO level.
// Useful for periodic progress reporting during consumption.
func (s *IngestStats) LogSummary(logger *slog.Logger) {
	logger.Info("ingestion progress",
		"processed", s.Processed(),
		"inserted", s.Inserted(),
		"duplicates", s.Duplicates(),
		"rejected", s.Rejected(),
		"upserts", s.Upserts(),
	)
}
