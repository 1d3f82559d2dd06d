package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// HandleSetLogLevel changes the process log level at runtime.
// POST /admin/loglevel body {"level": "debug"|"info"|"warn"|"error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var level slog.Level
	switch strings.ToLower(req.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		writeError(w, http.StatusBadRequest, "level must be one of debug, info, warn, error")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "level", req.Level)
	writeSuccess(w, http.StatusOK, map[string]string{"level": strings.ToLower(req.Level)})
}

// HandleGetSchemeMetrics reports how many requests used each credential
// scheme since startup or the last reset.
// GET /admin/metrics/schemes
func (h *Handler) HandleGetSchemeMetrics(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.schemes.Snapshot())
}

// HandleResetSchemeMetrics zeroes the scheme counters.
// DELETE /admin/metrics/schemes
func (h *Handler) HandleResetSchemeMetrics(w http.ResponseWriter, _ *http.Request) {
	h.schemes.Reset()
	h.logger.Info("scheme metrics reset")
	writeSuccess(w, http.StatusOK, map[string]string{"message": "scheme metrics reset"})
}
