package store

import (
	"time"

	"github.com/onnwee/sessionizer/internal/event"
)

// Aggregate derives the session rollup as a pure function of an event set.
// Because the rollup is recomputed from scratch rather than patched
// incrementally, the result is independent of the order events arrived in and
// of how many times any single event was observed. This mirrors the SQL
// recompute in PostgresSessionRepository.UpsertSession and is used by the
// in-memory repository and by tests as the reference computation.
// Returns nil for an empty event set: no events means no rollup row.
func Aggregate(sessionID, userID string, events []*event.Event, now time.Time) *Session {
	if len(events) == 0 {
		return nil
	}

	s := &Session{
		SessionID:     sessionID,
		UserID:        userID,
		SessionStart:  events[0].Timestamp,
		SessionEnd:    events[0].Timestamp,
		LastUpdatedAt: now,
	}

	for _, evt := range events {
		if evt.Timestamp.Before(s.SessionStart) {
			s.SessionStart = evt.Timestamp
		}
		if evt.Timestamp.After(s.SessionEnd) {
			s.SessionEnd = evt.Timestamp
		}
		s.EventCount++
		switch evt.EventName {
		case event.NamePageView:
			s.Pageviews++
		case event.NameCheckout:
			s.Conversions++
		}
		if evt.Revenue != nil {
			s.RevenueTotal += *evt.Revenue
		}
	}

	return s
}
