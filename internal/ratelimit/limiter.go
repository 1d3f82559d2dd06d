// Package ratelimit bounds per-key request throughput using fixed,
// wall-clock-aligned minute and hour windows.
package ratelimit

import (
	"sync"
	"time"

	"github.com/flowmasters/keygate/internal/storage"
)

// window tracks one key's counters for the current minute and hour buckets.
type window struct {
	minuteStart time.Time
	minuteCount int
	hourStart   time.Time
	hourCount   int
}

// Limiter counts requests per key. Counters are serialized by a mutex so
// concurrent in-flight requests cannot race an increment past the ceiling.
// Memory is bounded by the number of distinct keys seen; counters reset in
// place when their window boundary rolls over.
type Limiter struct {
	mu      sync.Mutex
	windows map[int64]*window
	now     func() time.Time
}

// New creates a Limiter using the system clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Limiter with an injectable clock for tests.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		windows: make(map[int64]*window),
		now:     now,
	}
}

// Allow records one request for keyID under the given policy and reports
// whether it is within budget. The increment is applied before the ceiling
// check and is not refunded on rejection, so retry storms keep consuming
// their slots instead of resetting state.
func (l *Limiter) Allow(keyID int64, policy storage.RateLimit) bool {
	if !policy.Enabled {
		return true
	}

	now := l.now()
	minuteStart := now.Truncate(time.Minute)
	hourStart := now.Truncate(time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[keyID]
	if w == nil {
		w = &window{}
		l.windows[keyID] = w
	}

	if !w.minuteStart.Equal(minuteStart) {
		w.minuteStart = minuteStart
		w.minuteCount = 0
	}
	if !w.hourStart.Equal(hourStart) {
		w.hourStart = hourStart
		w.hourCount = 0
	}

	w.minuteCount++
	w.hourCount++

	if policy.RequestsPerMinute > 0 && w.minuteCount > policy.RequestsPerMinute {
		return false
	}
	if policy.RequestsPerHour > 0 && w.hourCount > policy.RequestsPerHour {
		return false
	}
	return true
}

// Forget drops the counters for a key. Called after a key is deleted so the
// map does not accumulate entries for dead keys.
func (l *Limiter) Forget(keyID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, keyID)
}
