package admin

import (
	"net/http"

	"github.com/flowmasters/keygate/internal/auth"
)

// RequireMaster restricts a route to requests bearing the master credential.
// It runs after the authentication middleware, so it only needs to inspect
// the attached auth info.
func RequireMaster(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := auth.InfoFromContext(r.Context())
		if info == nil || !info.IsMaster {
			writeError(w, http.StatusForbidden, "master credential required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
