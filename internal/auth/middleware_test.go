package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowmasters/keygate/internal/keygen"
	"github.com/flowmasters/keygate/internal/storage"
)

func newTestAuthenticator(t *testing.T, store *fakeStore, limiter Limiter) *Authenticator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	master := NewMasterCredential("master-secret", "")
	return NewAuthenticator(
		NewValidator(store, limiter),
		master,
		[]string{"/health", "/ready"},
		NewSchemeMetrics(),
		logger,
	)
}

// echoInfo is a terminal handler that reports what the middleware attached.
func echoInfo(w http.ResponseWriter, r *http.Request) {
	info := InfoFromContext(r.Context())
	if info == nil {
		http.Error(w, "no auth info", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keyName":  info.KeyName,
		"isMaster": info.IsMaster,
	})
}

func doRequest(t *testing.T, a *Authenticator, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/resource", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	a.Middleware(http.HandlerFunc(echoInfo)).ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	if body.Success {
		t.Error("error responses must have success=false")
	}
	return body.Error
}

func TestMiddlewareMissingCredential(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore(), allowAll{})

	rec := doRequest(t, a, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "missing API key" {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestMiddlewareMalformedAuthorization(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore(), allowAll{})

	for _, header := range []string{"Bearer", "Basic dXNlcg==", "Bearer "} {
		rec := doRequest(t, a, func(r *http.Request) {
			r.Header.Set("Authorization", header)
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestMiddlewareBearerToken(t *testing.T) {
	store := newFakeStore()
	seedKey(store, "dev_abc", nil)
	a := newTestAuthenticator(t, store, allowAll{})

	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer dev_abc")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if counts := a.Schemes().Snapshot(); counts[SchemeBearer] != 1 {
		t.Errorf("expected one bearer request, got %v", counts)
	}
}

func TestMiddlewareAPIKeyHeader(t *testing.T) {
	store := newFakeStore()
	seedKey(store, "dev_abc", nil)
	a := newTestAuthenticator(t, store, allowAll{})

	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("X-API-Key", "dev_abc")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if counts := a.Schemes().Snapshot(); counts[SchemeAPIKey] != 1 {
		t.Errorf("expected one x-api-key request, got %v", counts)
	}
}

func TestMiddlewareBearerTakesPrecedence(t *testing.T) {
	store := newFakeStore()
	seedKey(store, "dev_abc", nil)
	a := newTestAuthenticator(t, store, allowAll{})

	// Valid bearer alongside a garbage fallback header: the fallback is
	// never consulted.
	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer dev_abc")
		r.Header.Set("X-API-Key", "not-a-key")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Invalid bearer alongside a valid fallback header: still rejected.
	rec = doRequest(t, a, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-key")
		r.Header.Set("X-API-Key", "dev_abc")
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareInvalidKey(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore(), allowAll{})

	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("X-API-Key", "dev_nope")
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != ReasonInvalidKey {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestMiddlewareDisabledKey(t *testing.T) {
	store := newFakeStore()
	seedKey(store, "dev_abc", func(k *storage.APIKey) { k.IsEnabled = false })
	a := newTestAuthenticator(t, store, allowAll{})

	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("X-API-Key", "dev_abc")
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != ReasonKeyDisabled {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestMiddlewareRateLimited(t *testing.T) {
	store := newFakeStore()
	seedKey(store, "dev_abc", nil)
	a := newTestAuthenticator(t, store, denyAll{})

	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("X-API-Key", "dev_abc")
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != ReasonRateLimited {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestMiddlewareIPRestriction(t *testing.T) {
	store := newFakeStore()
	seedKey(store, "dev_abc", func(k *storage.APIKey) { k.AllowedIPs = []string{"10.0.0.1"} })
	a := newTestAuthenticator(t, store, allowAll{})

	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("X-API-Key", "dev_abc")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from listed IP, got %d", rec.Code)
	}

	rec = doRequest(t, a, func(r *http.Request) {
		r.RemoteAddr = "192.0.2.99:1234"
		r.Header.Set("X-API-Key", "dev_abc")
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 from unlisted IP, got %d", rec.Code)
	}
}

func TestMiddlewareStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.err = io.ErrUnexpectedEOF
	a := newTestAuthenticator(t, store, allowAll{})

	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("X-API-Key", "dev_abc")
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected fail-closed 500, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "failed to verify API key" {
		t.Errorf("internal detail leaked: %q", msg)
	}
}

func TestMiddlewareMasterCredential(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore(), denyAll{})

	// The master secret bypasses the key store and the rate limiter.
	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer master-secret")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		IsMaster bool `json:"isMaster"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !body.IsMaster {
		t.Error("master request should carry IsMaster")
	}
}

func TestMiddlewarePublicPaths(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore(), allowAll{})
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("path %s: expected bypass, got %d", path, rec.Code)
		}
	}

	// Prefixes of public paths are not public.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("/healthz should require auth, got %d", rec.Code)
	}
}

func TestMiddlewareDisableThenReEnable(t *testing.T) {
	store := newFakeStore()
	key := seedKey(store, "dev_abc", nil)
	a := newTestAuthenticator(t, store, allowAll{})

	withKey := func(r *http.Request) { r.Header.Set("X-API-Key", "dev_abc") }

	if rec := doRequest(t, a, withKey); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 before disable, got %d", rec.Code)
	}

	key.IsEnabled = false
	if rec := doRequest(t, a, withKey); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 while disabled, got %d", rec.Code)
	}

	// Re-enabling restores the same plaintext without rotation.
	key.IsEnabled = true
	if rec := doRequest(t, a, withKey); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after re-enable, got %d", rec.Code)
	}
}

func TestMiddlewareRotationInvalidatesOldSecret(t *testing.T) {
	store := newFakeStore()
	key := seedKey(store, "dev_old", nil)
	a := newTestAuthenticator(t, store, allowAll{})

	delete(store.keys, key.KeyHash)
	key.KeyHash = keygen.HashKey("dev_new")
	store.keys[key.KeyHash] = key

	rec := doRequest(t, a, func(r *http.Request) {
		r.Header.Set("X-API-Key", "dev_old")
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("old secret should be rejected after rotation, got %d", rec.Code)
	}

	rec = doRequest(t, a, func(r *http.Request) {
		r.Header.Set("X-API-Key", "dev_new")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("new secret should be accepted after rotation, got %d", rec.Code)
	}
}
