package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) HealthCheck(ctx context.Context) error {
	return s.err
}

func TestDBChecker_Creation(t *testing.T) {
	db := &sql.DB{}

	checker := NewDBChecker(db)
	if checker == nil {
		t.Fatal("expected checker to be non-nil")
	}

	if checker.db != db {
		t.Error("expected checker db to match provided db")
	}
}

func TestKafkaChecker_NoBrokers(t *testing.T) {
	checker := NewKafkaChecker(nil, nil)
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() with no brokers should fail")
	}
}

func TestHealth(t *testing.T) {
	h := NewHandlers(HandlersConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := NewHandlers(HandlersConfig{})

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		db         Checker
		kafka      Checker
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checkers configured",
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name:       "all checks pass",
			db:         &stubChecker{},
			kafka:      &stubChecker{},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name:       "database down",
			db:         &stubChecker{err: errors.New("connection refused")},
			kafka:      &stubChecker{},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
		{
			name:       "kafka down",
			db:         &stubChecker{},
			kafka:      &stubChecker{err: errors.New("no route to host")},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(HandlersConfig{
				DBChecker:    tt.db,
				KafkaChecker: tt.kafka,
			})

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			rec := httptest.NewRecorder()
			h.Ready(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantState)
			}
		})
	}
}
