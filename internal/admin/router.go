package admin

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the admin surface. The caller wires the authentication
// middleware ahead of this router; RequireMaster only checks the result.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireMaster)

	// Unified key management endpoint with action dispatch
	r.Get("/api-keys", h.HandleGetKeys)
	r.Post("/api-keys", h.HandlePostKeys)
	r.Put("/api-keys", h.HandlePutKeys)
	r.Delete("/api-keys", h.HandleDeleteKeys)

	// Operational endpoints
	r.Post("/loglevel", h.HandleSetLogLevel)
	r.Get("/metrics/schemes", h.HandleGetSchemeMetrics)
	r.Delete("/metrics/schemes", h.HandleResetSchemeMetrics)

	return r
}
