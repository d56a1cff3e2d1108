package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/sessionizer/internal/stats"
)

// DefaultReportInterval is how often the progress reporter logs a summary.
const DefaultReportInterval = 30 * time.Second

// ProgressReporter periodically logs cumulative ingestion counters for
// operational visibility. It has no effect on correctness.
type ProgressReporter struct {
	stats    *stats.IngestStats
	interval time.Duration
	logger   *slog.Logger
}

// NewProgressReporter creates a reporter over the given counters.
// A non-positive interval falls back to DefaultReportInterval.
func NewProgressReporter(ingestStats *stats.IngestStats, interval time.Duration, logger *slog.Logger) *ProgressReporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressReporter{
		stats:    ingestStats,
		interval: interval,
		logger:   logger,
	}
}

// Run logs a summary every interval until the context is cancelled, then
// logs a final summary and returns.
func (r *ProgressReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.stats.LogSummary(r.logger)
			return
		case <-ticker.C:
			r.stats.LogSummary(r.logger)
		}
	}
}
