package auth

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/flowmasters/keygate/internal/metrics"
)

// Authenticator gates inbound HTTP requests before they reach business logic.
type Authenticator struct {
	validator   *Validator
	master      MasterCredential
	publicPaths map[string]struct{}
	schemes     *SchemeMetrics
	logger      *slog.Logger
}

// NewAuthenticator wires the middleware's collaborators. publicPaths are
// exact request paths that bypass authentication entirely (health checks).
func NewAuthenticator(v *Validator, master MasterCredential, publicPaths []string, schemes *SchemeMetrics, logger *slog.Logger) *Authenticator {
	paths := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		paths[p] = struct{}{}
	}
	return &Authenticator{
		validator:   v,
		master:      master,
		publicPaths: paths,
		schemes:     schemes,
		logger:      logger,
	}
}

// Schemes exposes the credential-scheme collector for the operator endpoint.
func (a *Authenticator) Schemes() *SchemeMetrics {
	return a.schemes
}

// Middleware returns chi-compatible middleware that authenticates each
// request. Missing or malformed credentials are 401; a credential that was
// checked and rejected is 403, except rate-limit exhaustion which is 429.
// Any store failure during validation rejects with 500 - never allow on error.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		token, scheme, errMsg := extractCredential(r)
		if token == "" {
			metrics.RecordAuthFailure("missing_key")
			writeJSONError(w, http.StatusUnauthorized, errMsg)
			return
		}

		a.schemes.Increment(scheme)

		// Admin fast path: the master credential grants all permissions
		// without touching the key store or the rate limiter.
		if a.master.Matches(token) {
			ctx := WithInfo(r.Context(), &Info{KeyName: "master", IsMaster: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		result, err := a.validator.Validate(r.Context(), token, clientIP(r))
		if err != nil {
			// Fail closed: a store failure or timeout is a rejection,
			// with detail kept out of the response body.
			a.logger.Error("api key validation failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to verify API key")
			return
		}

		if !result.Valid {
			metrics.RecordAuthFailure(failureLabel(result.Reason))
			status := http.StatusForbidden
			if result.Reason == ReasonRateLimited {
				status = http.StatusTooManyRequests
			}
			writeJSONError(w, status, result.Reason)
			return
		}

		ctx := WithInfo(r.Context(), &Info{
			KeyID:       result.KeyID,
			KeyName:     result.KeyName,
			Permissions: result.Permissions,
			RateLimit:   result.RateLimit,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractCredential pulls the API key from the request.
// Authorization: Bearer takes precedence; when it is present the X-API-Key
// fallback is ignored entirely, even if the bearer token is invalid.
func extractCredential(r *http.Request) (token, scheme, errMsg string) {
	if authz := r.Header.Get("Authorization"); authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", "", "malformed authorization header"
		}
		return parts[1], SchemeBearer, ""
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, SchemeAPIKey, ""
	}

	return "", "", "missing API key"
}

// clientIP extracts the caller address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// failureLabel converts a human-readable rejection reason into a metric label.
func failureLabel(reason string) string {
	switch reason {
	case ReasonInvalidKey:
		return "invalid_key"
	case ReasonKeyDisabled:
		return "key_disabled"
	case ReasonKeyExpired:
		return "key_expired"
	case ReasonIPNotAllowed:
		return "ip_not_allowed"
	case ReasonRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// writeJSONError writes a rejection in the standard response envelope.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // headers already written, nothing left to report
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
