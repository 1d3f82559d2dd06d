package auth

import (
	"sync"

	"github.com/flowmasters/keygate/internal/metrics"
)

// Credential scheme labels.
const (
	SchemeBearer = "bearer"
	SchemeAPIKey = "x_api_key"
)

// SchemeMetrics counts which credential scheme inbound requests used.
// It is owned by the middleware's construction context rather than being
// ambient global state, so tests can instantiate independent instances.
// Counts are mirrored into the Prometheus auth_scheme_total counter; the
// local copy exists so an operator endpoint can read and reset it.
type SchemeMetrics struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// NewSchemeMetrics creates an empty collector.
func NewSchemeMetrics() *SchemeMetrics {
	return &SchemeMetrics{counts: make(map[string]uint64)}
}

// Increment records one request for the given scheme.
func (s *SchemeMetrics) Increment(scheme string) {
	s.mu.Lock()
	s.counts[scheme]++
	s.mu.Unlock()

	metrics.RecordAuthScheme(scheme)
}

// Snapshot returns a copy of the current counts.
func (s *SchemeMetrics) Snapshot() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]uint64, len(s.counts))
	for scheme, count := range s.counts {
		snapshot[scheme] = count
	}
	return snapshot
}

// Reset zeroes all counts. The Prometheus mirror is cumulative and is not
// reset.
func (s *SchemeMetrics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]uint64)
}
