// Package api serves the authenticated application surface. The handlers
// here are deliberately thin; the interesting work happens in the
// authentication middleware that fronts them.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmasters/keygate/internal/auth"
)

// Routes mounts the protected endpoints. The authentication middleware must
// run ahead of this router.
func Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/ping", HandlePing)
	r.Get("/whoami", HandleWhoami)

	return r
}

// HandlePing is a minimal authenticated reachability check.
// GET /v1/ping
func HandlePing(w http.ResponseWriter, _ *http.Request) {
	writeData(w, map[string]string{"message": "pong"})
}

// HandleWhoami reports the identity the request authenticated as.
// GET /v1/whoami
func HandleWhoami(w http.ResponseWriter, r *http.Request) {
	info := auth.InfoFromContext(r.Context())
	if info == nil {
		// Only reachable if the route was mounted without the middleware.
		writeFailure(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	permissions := info.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	writeData(w, map[string]any{
		"keyId":       info.KeyID,
		"keyName":     info.KeyName,
		"permissions": permissions,
		"rateLimit":   info.RateLimit,
		"isMaster":    info.IsMaster,
	})
}

// RequirePermission rejects requests whose key does not carry the given
// permission. The master credential passes every check.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := auth.InfoFromContext(r.Context())
			if !info.HasPermission(permission) {
				writeFailure(w, http.StatusForbidden, "permission required: "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // headers already written, nothing left to report
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // headers already written, nothing left to report
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
