package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/sessionizer/internal/consumer"
	"github.com/onnwee/sessionizer/internal/event"
	"github.com/onnwee/sessionizer/internal/stats"
	"github.com/onnwee/sessionizer/internal/store"
	"github.com/onnwee/sessionizer/internal/tracing"
)

// Processor runs the per-message pipeline: decode the payload, persist the
// event idempotently, then recompute and upsert the session rollup. It is the
// consumer's Handler; the consumer calls it sequentially per partition.
type Processor struct {
	topic    string
	events   store.EventRepository
	sessions store.SessionRepository
	metrics  *Metrics
	stats    *stats.IngestStats
	logger   *slog.Logger
}

// NewProcessor creates a new Processor. metrics and stats may be nil, in
// which case the corresponding reporting is skipped.
func NewProcessor(topic string, events store.EventRepository, sessions store.SessionRepository,
	metrics *Metrics, ingestStats *stats.IngestStats, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		topic:    topic,
		events:   events,
		sessions: sessions,
		metrics:  metrics,
		stats:    ingestStats,
		logger:   logger,
	}
}

// Handle processes one message. A decode rejection is logged and dropped
// without interrupting the stream; a storage failure is returned and treated
// as fatal for the partition lane, relying on restart plus redelivery into
// the idempotent writer for recovery.
func (p *Processor) Handle(ctx context.Context, msg consumer.Message) (err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartMessageSpan(ctx, p.topic, msg.Partition, msg.Offset)
	defer func() { endSpan(err) }()

	p.recordProcessed()

	result := event.Decode(msg.Value)
	if !result.Valid {
		p.recordReject()
		p.logger.Warn("dropping undecodable message",
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("reason", result.Err.Error()))
		return nil
	}

	evt := result.Event

	inserted, err := p.events.InsertEvent(ctx, evt)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	if inserted {
		p.recordInsert()
	} else {
		p.recordDuplicate()
	}

	// Upsert even for duplicates: the recompute converges, and a redelivery
	// may mean the previous attempt crashed between insert and upsert.
	if err := p.sessions.UpsertSession(ctx, evt.SessionID, evt.UserID); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	p.recordUpsert()

	if p.metrics != nil {
		p.metrics.ObserveProcessLatency(time.Since(start).Seconds())
	}

	p.logger.Debug("message processed",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("event_id", evt.EventID),
		slog.String("session_id", evt.SessionID),
		slog.Bool("inserted", inserted))

	return nil
}

func (p *Processor) recordProcessed() {
	if p.metrics != nil {
		p.metrics.IncMessagesProcessed()
	}
	if p.stats != nil {
		p.stats.RecordProcessed()
	}
}

func (p *Processor) recordReject() {
	if p.metrics != nil {
		p.metrics.IncDecodeRejects()
	}
	if p.stats != nil {
		p.stats.RecordReject()
	}
}

func (p *Processor) recordInsert() {
	if p.metrics != nil {
		p.metrics.IncEventsInserted()
	}
	if p.stats != nil {
		p.stats.RecordInsert()
	}
}

func (p *Processor) recordDuplicate() {
	if p.metrics != nil {
		p.metrics.IncDuplicatesSkipped()
	}
	if p.stats != nil {
		p.stats.RecordDuplicate()
	}
}

func (p *Processor) recordUpsert() {
	if p.metrics != nil {
		p.metrics.IncSessionUpserts()
	}
	if p.stats != nil {
		p.stats.RecordUpsert()
	}
}
