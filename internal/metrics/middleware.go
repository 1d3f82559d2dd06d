package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// numericSegment matches numeric path segments; compiled once at init.
var numericSegment = regexp.MustCompile(`/(\d+)`)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request count and latency for each request, with
// numeric path segments normalized to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		startTime := time.Now()

		defer func() {
			duration := time.Since(startTime).Seconds()

			statusCode := recorder.statusCode
			if statusCode == 0 {
				statusCode = http.StatusInternalServerError
			}

			normalizedPath := normalizePath(r.URL.Path)
			statusStr := strconv.Itoa(statusCode)

			RecordRequest(r.Method, normalizedPath, statusStr)
			RecordRequestDuration(r.Method, normalizedPath, statusStr, duration)

			if err := recover(); err != nil {
				if !recorder.written {
					recorder.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(recorder, r)
	})
}

// normalizePath replaces numeric path segments with :id.
// Example: /admin/api-keys/123 -> /admin/api-keys/:id
func normalizePath(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id")
}
