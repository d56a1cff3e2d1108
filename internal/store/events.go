package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/onnwee/sessionizer/internal/event"
	"github.com/onnwee/sessionizer/internal/tracing"
)

// EventRepository persists decoded events as immutable rows.
// Rows are never mutated or deleted once written.
type EventRepository interface {
	// InsertEvent stores one validated event. Re-submitting the same
	// idempotency key never creates a second row; the returned bool is true
	// when a new row was written and false when the key already existed.
	InsertEvent(ctx context.Context, evt *event.Event) (bool, error)

	// CountSessionEvents returns the number of stored events for a session.
	CountSessionEvents(ctx context.Context, sessionID string) (int, error)
}

// PostgresEventRepository implements EventRepository on the clickstream_events table.
type PostgresEventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresEventRepository creates a new PostgresEventRepository.
func NewPostgresEventRepository(db *sql.DB, logger *slog.Logger) *PostgresEventRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresEventRepository{db: db, logger: logger}
}

// InsertEvent writes the event with insert-ignore-on-conflict semantics keyed
// on event_id, so redelivery under at-least-once consumption is a no-op.
func (r *PostgresEventRepository) InsertEvent(ctx context.Context, evt *event.Event) (inserted bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clickstream_events", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO clickstream_events
			(event_id, ts, user_id, session_id, event_name, url, referrer, user_agent, revenue, raw_payload, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	var raw interface{}
	if len(evt.RawPayload) > 0 {
		raw = evt.RawPayload
	}

	result, err := r.db.ExecContext(ctx, query,
		evt.EventID, evt.Timestamp, evt.UserID, evt.SessionID, evt.EventName,
		evt.URL, evt.Referrer, evt.UserAgent, evt.Revenue, raw)
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", evt.EventID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	if rows == 0 {
		r.logger.Debug("skipping duplicate event (idempotency key exists)",
			slog.String("event_id", evt.EventID),
			slog.String("session_id", evt.SessionID))
		return false, nil
	}

	return true, nil
}

// CountSessionEvents returns the number of stored events for a session.
func (r *PostgresEventRepository) CountSessionEvents(ctx context.Context, sessionID string) (count int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clickstream_events", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT COUNT(*) FROM clickstream_events WHERE session_id = $1`
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count session events: %w", err)
	}
	return count, nil
}
