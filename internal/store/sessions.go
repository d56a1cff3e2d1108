package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/sessionizer/internal/tracing"
)

// ErrSessionNotFound is returned when no rollup row exists for a session.
var ErrSessionNotFound = errors.New("session not found")

// Session is the per-session rollup row. It is a materialized view of the
// events currently stored for the session, never an independently mutated record.
type Session struct {
	SessionID     string
	UserID        string
	SessionStart  time.Time
	SessionEnd    time.Time
	EventCount    int
	Pageviews     int
	Conversions   int
	RevenueTotal  float64
	LastUpdatedAt time.Time
}

// SessionRepository maintains the session rollup table.
// Only the aggregator writes session state; no other component touches it.
type SessionRepository interface {
	// UpsertSession recomputes the full aggregate for the session from the
	// authoritative event set and atomically inserts or overwrites the row.
	UpsertSession(ctx context.Context, sessionID, userID string) error

	// GetSession returns the current rollup row, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}

// PostgresSessionRepository implements SessionRepository on the clickstream_sessions table.
type PostgresSessionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSessionRepository creates a new PostgresSessionRepository.
func NewPostgresSessionRepository(db *sql.DB, logger *slog.Logger) *PostgresSessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSessionRepository{db: db, logger: logger}
}

// UpsertSession recomputes and writes the rollup in a single statement.
// The rollup is always a pure function of the events visible to the statement,
// never an incremental patch, so interleaved writers cannot corrupt it: at
// worst a writer persists totals from a slightly older snapshot, and the next
// event's recompute overwrites them. Cost is O(session size) per triggering
// event.
func (r *PostgresSessionRepository) UpsertSession(ctx context.Context, sessionID, userID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clickstream_sessions", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	query := `
		WITH agg AS (
			SELECT
				$1::text AS session_id,
				$2::text AS user_id,
				MIN(ts) AS session_start,
				MAX(ts) AS session_end,
				COUNT(*)::int AS event_count,
				COUNT(*) FILTER (WHERE event_name = 'page_view')::int AS pageviews,
				COUNT(*) FILTER (WHERE event_name = 'checkout')::int AS conversions,
				COALESCE(SUM(COALESCE(revenue, 0)), 0)::numeric(12,2) AS revenue_total
			FROM clickstream_events
			WHERE session_id = $1
		)
		INSERT INTO clickstream_sessions
			(session_id, user_id, session_start, session_end, event_count, pageviews, conversions, revenue_total, last_updated_at)
		SELECT
			session_id, user_id, session_start, session_end, event_count, pageviews, conversions, revenue_total, NOW()
		FROM agg
		WHERE event_count > 0
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			session_start = EXCLUDED.session_start,
			session_end = EXCLUDED.session_end,
			event_count = EXCLUDED.event_count,
			pageviews = EXCLUDED.pageviews,
			conversions = EXCLUDED.conversions,
			revenue_total = EXCLUDED.revenue_total,
			last_updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, sessionID, userID); err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sessionID, err)
	}
	return nil
}

// GetSession returns the current rollup row for a session.
func (r *PostgresSessionRepository) GetSession(ctx context.Context, sessionID string) (s *Session, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clickstream_sessions", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT session_id, user_id, session_start, session_end,
			event_count, pageviews, conversions, revenue_total, last_updated_at
		FROM clickstream_sessions
		WHERE session_id = $1
	`

	var session Session
	err = r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.SessionID, &session.UserID, &session.SessionStart, &session.SessionEnd,
		&session.EventCount, &session.Pageviews, &session.Conversions,
		&session.RevenueTotal, &session.LastUpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &session, nil
}
