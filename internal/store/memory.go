package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/sessionizer/internal/event"
)

// InMemoryEventRepository provides an in-memory EventRepository for testing.
type InMemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*event.Event // keyed by EventID
	logger *slog.Logger
}

// NewInMemoryEventRepository creates a new in-memory event repository.
func NewInMemoryEventRepository(logger *slog.Logger) *InMemoryEventRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventRepository{
		events: make(map[string]*event.Event),
		logger: logger,
	}
}

// InsertEvent implements the interface for in-memory storage.
func (r *InMemoryEventRepository) InsertEvent(ctx context.Context, evt *event.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[evt.EventID]; exists {
		r.logger.Debug("skipping duplicate event",
			slog.String("event_id", evt.EventID))
		return false, nil
	}

	// Store a copy so callers cannot mutate stored state.
	copyEvt := *evt
	if evt.RawPayload != nil {
		copyEvt.RawPayload = append([]byte(nil), evt.RawPayload...)
	}
	r.events[evt.EventID] = &copyEvt
	return true, nil
}

// CountSessionEvents implements the interface for in-memory storage.
func (r *InMemoryEventRepository) CountSessionEvents(ctx context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, evt := range r.events {
		if evt.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

// SessionEvents returns copies of all stored events for a session.
func (r *InMemoryEventRepository) SessionEvents(sessionID string) []*event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*event.Event
	for _, evt := range r.events {
		if evt.SessionID == sessionID {
			copyEvt := *evt
			events = append(events, &copyEvt)
		}
	}
	return events
}

// InMemorySessionRepository provides an in-memory SessionRepository for testing.
// It recomputes rollups from the paired event repository the same way the
// Postgres implementation recomputes from the events table.
type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	events   *InMemoryEventRepository
	logger   *slog.Logger

	// now is swappable for deterministic last_updated_at in tests.
	now func() time.Time
}

// NewInMemorySessionRepository creates a new in-memory session repository
// backed by the given event repository.
func NewInMemorySessionRepository(events *InMemoryEventRepository, logger *slog.Logger) *InMemorySessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemorySessionRepository{
		sessions: make(map[string]*Session),
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// UpsertSession implements the interface for in-memory storage.
// The recompute and write happen under one lock, matching the atomicity of
// the single-statement Postgres upsert.
func (r *InMemorySessionRepository) UpsertSession(ctx context.Context, sessionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The event read and the rollup write share the lock so a slower
	// concurrent upsert cannot overwrite a newer rollup with stale totals.
	events := r.events.SessionEvents(sessionID)
	session := Aggregate(sessionID, userID, events, r.now())
	if session == nil {
		return nil
	}
	r.sessions[sessionID] = session
	return nil
}

// GetSession implements the interface for in-memory storage.
func (r *InMemorySessionRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copySession := *session
	return &copySession, nil
}
