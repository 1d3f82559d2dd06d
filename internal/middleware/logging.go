package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/flowmasters/keygate/internal/logging"
)

// HTTPLogging logs full HTTP requests and responses at debug level.
// Credential headers and secret-bearing JSON fields are masked before
// logging; create/rotate responses carry plaintext keys that must never
// reach the log stream.
func HTTPLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.Enabled(r.Context(), slog.LevelDebug) {
				next.ServeHTTP(w, r)
				return
			}

			logRequest(logger, r)

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           new(bytes.Buffer),
			}

			start := time.Now()
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			logResponse(logger, r, rec, duration)
		})
	}
}

// logRequest logs the incoming HTTP request with masked headers and body.
func logRequest(logger *slog.Logger, r *http.Request) {
	var reqBody []byte
	if r.Body != nil {
		var err error
		reqBody, err = io.ReadAll(r.Body)
		if err != nil {
			logger.Error("failed to read request body", "error", err)
			return
		}
		// Restore body for handler
		r.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	logger.Debug("http request",
		"request_id", GetRequestID(r.Context()),
		"method", r.Method,
		"url", r.URL.Path,
		"query_params", r.URL.RawQuery,
		"headers", maskHeaders(r.Header),
		"body", maskBody(reqBody),
	)
}

// logResponse logs the HTTP response with masked headers and body.
func logResponse(logger *slog.Logger, r *http.Request, rec *responseRecorder, duration time.Duration) {
	logger.Debug("http response",
		"request_id", GetRequestID(r.Context()),
		"method", r.Method,
		"url", r.URL.Path,
		"status_code", rec.statusCode,
		"headers", maskHeaders(rec.Header()),
		"body", maskBody(rec.body.Bytes()),
		"duration_ms", duration.Milliseconds(),
	)
}

// maskHeaders masks sensitive header values.
func maskHeaders(headers http.Header) map[string]string {
	result := make(map[string]string)
	for k, v := range headers {
		if len(v) > 0 {
			result[k] = logging.MaskHeader(k, v[0])
		}
	}
	return result
}

// maskBody masks sensitive data in a request or response body.
func maskBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return logging.FormatBinaryData(body)
	}
	return string(logging.MaskJSONBody(body))
}

// responseRecorder captures response details for logging.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b) // Capture for logging
	return r.ResponseWriter.Write(b)
}
