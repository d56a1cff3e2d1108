package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/sessionizer/internal/event"
)

func TestInMemoryEventRepository_IdempotentInsert(t *testing.T) {
	repo := NewInMemoryEventRepository(nil)
	ctx := context.Background()

	evt := &event.Event{
		EventID:   "e1",
		Timestamp: ts(t, "2024-01-01T00:00:00Z"),
		UserID:    "u1",
		SessionID: "s1",
		EventName: "page_view",
	}

	for i := 0; i < 5; i++ {
		inserted, err := repo.InsertEvent(ctx, evt)
		if err != nil {
			t.Fatalf("InsertEvent() error = %v", err)
		}
		if wantInserted := i == 0; inserted != wantInserted {
			t.Errorf("delivery %d: inserted = %v, want %v", i+1, inserted, wantInserted)
		}
	}

	count, err := repo.CountSessionEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("CountSessionEvents() error = %v", err)
	}
	if count != 1 {
		t.Errorf("stored events = %d, want exactly 1 after 5 deliveries", count)
	}
}

func TestInMemorySessionRepository_UpsertAndGet(t *testing.T) {
	events := NewInMemoryEventRepository(nil)
	sessions := NewInMemorySessionRepository(events, nil)
	ctx := context.Background()

	if _, err := sessions.GetSession(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() before upsert error = %v, want ErrSessionNotFound", err)
	}

	if _, err := events.InsertEvent(ctx, &event.Event{
		EventID: "e1", Timestamp: ts(t, "2024-01-01T00:00:00Z"),
		UserID: "u1", SessionID: "s1", EventName: "page_view",
	}); err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if err := sessions.UpsertSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	s, err := sessions.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s.EventCount != 1 || s.Pageviews != 1 || s.Conversions != 0 || s.RevenueTotal != 0 {
		t.Errorf("rollup = %+v, want count=1 pageviews=1 conversions=0 revenue=0", s)
	}

	if _, err := events.InsertEvent(ctx, &event.Event{
		EventID: "e2", Timestamp: ts(t, "2024-01-01T00:05:00Z"),
		UserID: "u1", SessionID: "s1", EventName: "checkout", Revenue: revenue(50.00),
	}); err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if err := sessions.UpsertSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	s, err = sessions.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s.EventCount != 2 || s.Pageviews != 1 || s.Conversions != 1 || s.RevenueTotal != 50.00 {
		t.Errorf("rollup = %+v, want count=2 pageviews=1 conversions=1 revenue=50", s)
	}
	if !s.SessionEnd.Equal(ts(t, "2024-01-01T00:05:00Z")) {
		t.Errorf("SessionEnd = %v, want the checkout timestamp", s.SessionEnd)
	}
}

func TestInMemorySessionRepository_UpsertEmptySession(t *testing.T) {
	events := NewInMemoryEventRepository(nil)
	sessions := NewInMemorySessionRepository(events, nil)
	ctx := context.Background()

	if err := sessions.UpsertSession(ctx, "ghost", "u1"); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}
	if _, err := sessions.GetSession(ctx, "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound for empty session", err)
	}
}

func TestInMemorySessionRepository_ConcurrentUpserts(t *testing.T) {
	events := NewInMemoryEventRepository(nil)
	sessions := NewInMemorySessionRepository(events, nil)
	ctx := context.Background()

	base := ts(t, "2024-01-01T00:00:00Z")
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := events.InsertEvent(ctx, &event.Event{
				EventID:   fmt.Sprintf("e%d", i),
				Timestamp: base.Add(time.Duration(i) * time.Second),
				UserID:    "u1",
				SessionID: "s1",
				EventName: "page_view",
			})
			if err != nil {
				t.Errorf("InsertEvent() error = %v", err)
				return
			}
			if err := sessions.UpsertSession(ctx, "s1", "u1"); err != nil {
				t.Errorf("UpsertSession() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	// No lost update: every goroutine's insert precedes its own upsert, so
	// whichever upsert ran last must have recomputed over all n events.
	s, err := sessions.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if s.EventCount != n {
		t.Errorf("EventCount = %d, want %d", s.EventCount, n)
	}
	if !s.SessionStart.Equal(base) {
		t.Errorf("SessionStart = %v, want %v", s.SessionStart, base)
	}
	if !s.SessionEnd.Equal(base.Add((n - 1) * time.Second)) {
		t.Errorf("SessionEnd = %v, want %v", s.SessionEnd, base.Add((n-1)*time.Second))
	}
}
