// Package admin exposes the administrative JSON API for key management.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/flowmasters/keygate/internal/auth"
	"github.com/flowmasters/keygate/internal/keys"
)

// Validator is the diagnostic credential check used by the validate action.
type Validator interface {
	Validate(ctx context.Context, presented, clientIP string) (*auth.Result, error)
}

// Handler serves the /admin surface.
type Handler struct {
	keys      *keys.Service
	validator Validator
	schemes   *auth.SchemeMetrics
	logLevel  *slog.LevelVar
	logger    *slog.Logger
}

// NewHandler creates an admin handler.
func NewHandler(service *keys.Service, validator Validator, schemes *auth.SchemeMetrics, logLevel *slog.LevelVar, logger *slog.Logger) *Handler {
	return &Handler{
		keys:      service,
		validator: validator,
		schemes:   schemes,
		logLevel:  logLevel,
		logger:    logger,
	}
}

// HandleGetKeys dispatches read actions.
// GET /admin/api-keys?action=list|statistics
func (h *Handler) HandleGetKeys(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case "", "list":
		h.handleList(w, r)
	case "statistics":
		h.handleStatistics(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+action)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := keys.ListFilter{
		KeyType: q.Get("keyType"),
		Search:  q.Get("search"),
	}
	if raw := q.Get("isEnabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "isEnabled must be a boolean")
			return
		}
		filter.IsEnabled = &enabled
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.keys.List(r.Context(), filter, page, limit)
	if err != nil {
		h.writeServiceError(w, "failed to list keys", err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	counts, err := h.keys.Statistics(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to compute statistics", err)
		return
	}
	writeSuccess(w, http.StatusOK, counts)
}

// mutationRequest is the shared shape of POST bodies. The action field
// selects the operation; the remaining fields are read per action.
type mutationRequest struct {
	Action   string `json:"action"`
	KeyID    int64  `json:"keyId"`
	Key      string `json:"key"`
	ClientIP string `json:"clientIP"`

	keys.CreateInput
}

// HandlePostKeys dispatches mutation actions.
// POST /admin/api-keys body {action: create|rotate|disable|validate, ...}
func (h *Handler) HandlePostKeys(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch req.Action {
	case "create":
		h.handleCreate(w, r, req.CreateInput)
	case "rotate":
		h.handleRotate(w, r, req.KeyID)
	case "disable":
		h.handleDisable(w, r, req.KeyID)
	case "validate":
		h.handleValidate(w, r, req.Key, req.ClientIP)
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, input keys.CreateInput) {
	result, err := h.keys.Create(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, "failed to create key", err)
		return
	}

	h.logger.Info("api key created", "id", result.ID, "name", input.Name, "key_type", input.KeyType)
	writeSuccess(w, http.StatusCreated, result)
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request, keyID int64) {
	if keyID == 0 {
		writeError(w, http.StatusBadRequest, "keyId is required")
		return
	}

	result, err := h.keys.Rotate(r.Context(), keyID)
	if err != nil {
		h.writeServiceError(w, "failed to rotate key", err)
		return
	}

	h.logger.Info("api key rotated", "id", keyID)
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request, keyID int64) {
	if keyID == 0 {
		writeError(w, http.StatusBadRequest, "keyId is required")
		return
	}

	if err := h.keys.Disable(r.Context(), keyID); err != nil {
		h.writeServiceError(w, "failed to disable key", err)
		return
	}

	h.logger.Info("api key disabled", "id", keyID)
	writeSuccess(w, http.StatusOK, map[string]any{"id": keyID, "isEnabled": false})
}

// validateResult is the diagnostic payload for the validate action.
type validateResult struct {
	Valid       bool     `json:"valid"`
	KeyID       int64    `json:"keyId,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request, key, clientIP string) {
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	result, err := h.validator.Validate(r.Context(), key, clientIP)
	if err != nil {
		h.writeServiceError(w, "failed to validate key", err)
		return
	}

	writeSuccess(w, http.StatusOK, validateResult{
		Valid:       result.Valid,
		KeyID:       result.KeyID,
		Permissions: result.Permissions,
		Reason:      result.Reason,
	})
}

// updateRequest is the PUT body: the target ID plus a field patch.
type updateRequest struct {
	KeyID int64 `json:"keyId"`
	keys.UpdatePatch
}

// HandlePutKeys updates mutable fields of a key.
// PUT /admin/api-keys body {keyId, ...fields}
func (h *Handler) HandlePutKeys(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.KeyID == 0 {
		writeError(w, http.StatusBadRequest, "keyId is required")
		return
	}

	summary, err := h.keys.Update(r.Context(), req.KeyID, req.UpdatePatch)
	if err != nil {
		h.writeServiceError(w, "failed to update key", err)
		return
	}

	h.logger.Info("api key updated", "id", req.KeyID)
	writeSuccess(w, http.StatusOK, summary)
}

// HandleDeleteKeys hard-deletes a key.
// DELETE /admin/api-keys?keyId=
func (h *Handler) HandleDeleteKeys(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("keyId")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "keyId is required")
		return
	}
	keyID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "keyId must be an integer")
		return
	}

	if err := h.keys.Delete(r.Context(), keyID); err != nil {
		h.writeServiceError(w, "failed to delete key", err)
		return
	}

	h.logger.Info("api key deleted", "id", keyID)
	writeSuccess(w, http.StatusOK, map[string]any{"id": keyID, "deleted": true})
}

// writeServiceError maps service-layer errors to HTTP responses.
// Validation messages are surfaced verbatim to the trusted admin audience;
// store failures get a generic message with detail logged internally.
func (h *Handler) writeServiceError(w http.ResponseWriter, logMsg string, err error) {
	var verr *keys.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, keys.ErrNotFound):
		writeError(w, http.StatusNotFound, "key not found")
	default:
		h.logger.Error(logMsg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
