//go:build e2e

// Package e2e exercises the full HTTP stack in-process: router, auth
// middleware, key service, and sqlite storage wired together the same way
// the server binary wires them.
package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/flowmasters/keygate/internal/admin"
	"github.com/flowmasters/keygate/internal/api"
	"github.com/flowmasters/keygate/internal/auth"
	"github.com/flowmasters/keygate/internal/keys"
	"github.com/flowmasters/keygate/internal/middleware"
	"github.com/flowmasters/keygate/internal/ratelimit"
	"github.com/flowmasters/keygate/internal/storage"
)

const masterSecret = "e2e-master-secret"

type env struct {
	server *httptest.Server
}

func setup(t *testing.T) *env {
	t.Helper()

	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: logLevel}))

	limiter := ratelimit.New()
	service := keys.NewService(store, storage.RateLimit{
		Enabled:           true,
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
	}, limiter)
	validator := auth.NewValidator(store, limiter)
	master := auth.NewMasterCredential(masterSecret, "")
	schemes := auth.NewSchemeMetrics()
	authenticator := auth.NewAuthenticator(validator, master, []string{"/health", "/ready"}, schemes, logger)

	adminHandler := admin.NewHandler(service, validator, schemes, logLevel, logger)
	healthHandler := admin.NewHealthHandler(store)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.HTTPLogging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(authenticator.Middleware)
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/ready", healthHandler.HandleReady)
	r.Mount("/admin", adminHandler.Routes())
	r.Mount("/v1", api.Routes())

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &env{server: server}
}

// do sends a request with the given credential and decodes the JSON body.
func (e *env) do(t *testing.T, method, path, credential string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reqBody)
	require.NoError(t, err)
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func (e *env) createKey(t *testing.T, body map[string]any) (int64, string) {
	t.Helper()

	body["action"] = "create"
	status, resp := e.do(t, http.MethodPost, "/admin/api-keys", masterSecret, body)
	require.Equal(t, http.StatusCreated, status, "create response: %v", resp)

	data := resp["data"].(map[string]any)
	return int64(data["id"].(float64)), data["key"].(string)
}

func TestE2E_HealthCheck(t *testing.T) {
	e := setup(t)

	resp, err := http.Get(e.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_KeyLifecycle(t *testing.T) {
	e := setup(t)

	id, plaintext := e.createKey(t, map[string]any{
		"name":    "lifecycle",
		"keyType": "production",
	})
	require.True(t, len(plaintext) > 40)

	// The fresh key authenticates application requests.
	status, resp := e.do(t, http.MethodGet, "/v1/whoami", plaintext, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "lifecycle", resp["data"].(map[string]any)["keyName"])

	// Rotate: the old secret dies, the new one works.
	status, resp = e.do(t, http.MethodPost, "/admin/api-keys", masterSecret, map[string]any{
		"action": "rotate", "keyId": id,
	})
	require.Equal(t, http.StatusOK, status)
	rotated := resp["data"].(map[string]any)["newKey"].(string)
	require.NotEqual(t, plaintext, rotated)

	status, _ = e.do(t, http.MethodGet, "/v1/ping", plaintext, nil)
	require.Equal(t, http.StatusForbidden, status)
	status, _ = e.do(t, http.MethodGet, "/v1/ping", rotated, nil)
	require.Equal(t, http.StatusOK, status)

	// Disable blocks the key; re-enabling restores the same secret.
	status, _ = e.do(t, http.MethodPost, "/admin/api-keys", masterSecret, map[string]any{
		"action": "disable", "keyId": id,
	})
	require.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, http.MethodGet, "/v1/ping", rotated, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(t, http.MethodPut, "/admin/api-keys", masterSecret, map[string]any{
		"keyId": id, "isEnabled": true,
	})
	require.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, http.MethodGet, "/v1/ping", rotated, nil)
	require.Equal(t, http.StatusOK, status)

	// Delete is terminal.
	status, _ = e.do(t, http.MethodDelete, "/admin/api-keys?keyId="+strconv.FormatInt(id, 10), masterSecret, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, http.MethodGet, "/v1/ping", rotated, nil)
	require.Equal(t, http.StatusForbidden, status)
}

func TestE2E_RateLimit(t *testing.T) {
	e := setup(t)

	_, plaintext := e.createKey(t, map[string]any{
		"name":    "throttled",
		"keyType": "development",
		"rateLimit": map[string]any{
			"enabled":           true,
			"requestsPerMinute": 3,
			"requestsPerHour":   100,
		},
	})

	for i := 0; i < 3; i++ {
		status, _ := e.do(t, http.MethodGet, "/v1/ping", plaintext, nil)
		require.Equal(t, http.StatusOK, status, "request %d should pass", i+1)
	}

	status, resp := e.do(t, http.MethodGet, "/v1/ping", plaintext, nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, false, resp["success"])
}

func TestE2E_AdminRequiresMaster(t *testing.T) {
	e := setup(t)

	_, plaintext := e.createKey(t, map[string]any{
		"name":    "regular",
		"keyType": "development",
	})

	status, _ := e.do(t, http.MethodGet, "/admin/api-keys?action=list", plaintext, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(t, http.MethodGet, "/admin/api-keys?action=list", masterSecret, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestE2E_StatisticsReflectLifecycle(t *testing.T) {
	e := setup(t)

	id, _ := e.createKey(t, map[string]any{"name": "a", "keyType": "development"})
	e.createKey(t, map[string]any{"name": "b", "keyType": "production"})

	status, _ := e.do(t, http.MethodPost, "/admin/api-keys", masterSecret, map[string]any{
		"action": "disable", "keyId": id,
	})
	require.Equal(t, http.StatusOK, status)

	status, resp := e.do(t, http.MethodGet, "/admin/api-keys?action=statistics", masterSecret, nil)
	require.Equal(t, http.StatusOK, status)

	data := resp["data"].(map[string]any)
	require.EqualValues(t, 2, data["total"])
	require.EqualValues(t, 1, data["enabled"])
	require.EqualValues(t, 1, data["disabled"])
}
