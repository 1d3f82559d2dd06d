package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger checks backing-store connectivity for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the unauthenticated liveness and readiness probes.
type HealthHandler struct {
	storage Pinger
}

// NewHealthHandler creates the probe handler.
func NewHealthHandler(storage Pinger) *HealthHandler {
	return &HealthHandler{storage: storage}
}

// HandleHealth returns basic liveness status.
// GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HandleReady checks database connectivity.
// GET /ready
// Returns 200 if the database is accessible, 503 otherwise.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.storage == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		//nolint:errcheck // Response write errors are unrecoverable
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "error",
			"database": "not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		//nolint:errcheck // Response write errors are unrecoverable
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "error",
			"database": "unavailable",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"database": "connected",
	})
}
