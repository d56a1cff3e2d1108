package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Handlers provides health and readiness check endpoints for Kubernetes probes.
type Handlers struct {
	dbChecker    Checker
	kafkaChecker Checker
}

// HandlersConfig configures the health check handlers. Checkers are optional;
// an unconfigured checker reports ok.
type HandlersConfig struct {
	DBChecker    Checker
	KafkaChecker Checker
}

// NewHandlers creates a new health check handler.
func NewHandlers(config HandlersConfig) *Handlers {
	return &Handlers{
		dbChecker:    config.DBChecker,
		kafkaChecker: config.KafkaChecker,
	}
}

// Response represents the JSON response for health checks.
type Response struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// Returns 200 if the process is alive and can serve requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := Response{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// Ready handles GET /ready (readiness probe).
// Checks the database and Kafka brokers and returns 503 if either is
// unavailable.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	checks["database"] = h.runCheck(ctx, "database", h.dbChecker, &healthy)
	checks["kafka"] = h.runCheck(ctx, "kafka", h.kafkaChecker, &healthy)

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	response := Response{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode readiness response", "error", err)
	}
}

func (h *Handlers) runCheck(ctx context.Context, name string, checker Checker, healthy *bool) string {
	if checker == nil {
		return "ok"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		*healthy = false
		slog.WarnContext(ctx, name+" health check failed", "error", err)
		return "error"
	}
	return "ok"
}
