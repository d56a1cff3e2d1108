package store

import (
	"math/rand"
	"testing"
	"time"

	"github.com/onnwee/sessionizer/internal/event"
)

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", s, err)
	}
	return parsed
}

func revenue(v float64) *float64 {
	return &v
}

func TestAggregate_EmptySet(t *testing.T) {
	if s := Aggregate("s1", "u1", nil, time.Now()); s != nil {
		t.Errorf("Aggregate(empty) = %+v, want nil", s)
	}
}

func TestAggregate_SingleEvent(t *testing.T) {
	when := ts(t, "2024-01-01T00:00:00Z")
	events := []*event.Event{
		{EventID: "e1", Timestamp: when, UserID: "u1", SessionID: "s1", EventName: "page_view"},
	}

	now := time.Now()
	s := Aggregate("s1", "u1", events, now)
	if s == nil {
		t.Fatal("Aggregate returned nil for non-empty set")
	}
	if !s.SessionStart.Equal(when) || !s.SessionEnd.Equal(when) {
		t.Errorf("start/end = %v/%v, want both %v", s.SessionStart, s.SessionEnd, when)
	}
	if s.EventCount != 1 || s.Pageviews != 1 || s.Conversions != 0 {
		t.Errorf("counts = (%d, %d, %d), want (1, 1, 0)", s.EventCount, s.Pageviews, s.Conversions)
	}
	if s.RevenueTotal != 0 {
		t.Errorf("RevenueTotal = %v, want 0", s.RevenueTotal)
	}
	if !s.LastUpdatedAt.Equal(now) {
		t.Errorf("LastUpdatedAt = %v, want %v", s.LastUpdatedAt, now)
	}
}

func TestAggregate_CheckoutWithRevenue(t *testing.T) {
	events := []*event.Event{
		{EventID: "e1", Timestamp: ts(t, "2024-01-01T00:00:00Z"), UserID: "u1", SessionID: "s1", EventName: "page_view"},
		{EventID: "e2", Timestamp: ts(t, "2024-01-01T00:05:00Z"), UserID: "u1", SessionID: "s1", EventName: "checkout", Revenue: revenue(50.00)},
	}

	s := Aggregate("s1", "u1", events, time.Now())
	if s.EventCount != 2 || s.Pageviews != 1 || s.Conversions != 1 {
		t.Errorf("counts = (%d, %d, %d), want (2, 1, 1)", s.EventCount, s.Pageviews, s.Conversions)
	}
	if s.RevenueTotal != 50.00 {
		t.Errorf("RevenueTotal = %v, want 50.00", s.RevenueTotal)
	}
	if !s.SessionEnd.Equal(ts(t, "2024-01-01T00:05:00Z")) {
		t.Errorf("SessionEnd = %v, want the checkout timestamp", s.SessionEnd)
	}
}

func TestAggregate_OrderIndependence(t *testing.T) {
	events := []*event.Event{
		{EventID: "e1", Timestamp: ts(t, "2024-01-01T00:00:00Z"), UserID: "u1", SessionID: "s1", EventName: "page_view"},
		{EventID: "e2", Timestamp: ts(t, "2024-01-01T00:02:00Z"), UserID: "u1", SessionID: "s1", EventName: "add_to_cart"},
		{EventID: "e3", Timestamp: ts(t, "2024-01-01T00:05:00Z"), UserID: "u1", SessionID: "s1", EventName: "checkout", Revenue: revenue(19.99)},
		{EventID: "e4", Timestamp: ts(t, "2024-01-01T00:01:00Z"), UserID: "u1", SessionID: "s1", EventName: "page_view"},
	}

	now := time.Now()
	want := Aggregate("s1", "u1", events, now)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]*event.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := Aggregate("s1", "u1", shuffled, now)
		if *got != *want {
			t.Fatalf("aggregate depends on event order: got %+v, want %+v", got, want)
		}
	}
}

func TestAggregate_OutOfOrderArrival(t *testing.T) {
	// Later event first: start/end must still be correct.
	events := []*event.Event{
		{EventID: "e2", Timestamp: ts(t, "2024-01-01T00:05:00Z"), UserID: "u1", SessionID: "s1", EventName: "checkout"},
		{EventID: "e1", Timestamp: ts(t, "2024-01-01T00:00:00Z"), UserID: "u1", SessionID: "s1", EventName: "page_view"},
	}

	s := Aggregate("s1", "u1", events, time.Now())
	if !s.SessionStart.Equal(ts(t, "2024-01-01T00:00:00Z")) {
		t.Errorf("SessionStart = %v, want the earlier timestamp", s.SessionStart)
	}
	if !s.SessionEnd.Equal(ts(t, "2024-01-01T00:05:00Z")) {
		t.Errorf("SessionEnd = %v, want the later timestamp", s.SessionEnd)
	}
}

func TestAggregate_Invariants(t *testing.T) {
	events := []*event.Event{
		{EventID: "e1", Timestamp: ts(t, "2024-01-01T00:00:00Z"), UserID: "u1", SessionID: "s1", EventName: "page_view"},
		{EventID: "e2", Timestamp: ts(t, "2024-01-01T00:01:00Z"), UserID: "u1", SessionID: "s1", EventName: "page_view"},
		{EventID: "e3", Timestamp: ts(t, "2024-01-01T00:02:00Z"), UserID: "u1", SessionID: "s1", EventName: "checkout", Revenue: revenue(5)},
	}

	s := Aggregate("s1", "u1", events, time.Now())
	if s.SessionStart.After(s.SessionEnd) {
		t.Error("session_start > session_end")
	}
	if s.EventCount < s.Pageviews {
		t.Error("event_count < pageviews")
	}
	if s.EventCount < s.Conversions {
		t.Error("event_count < conversions")
	}
}
