// Package auth handles API key validation and request authentication.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/flowmasters/keygate/internal/keygen"
	"github.com/flowmasters/keygate/internal/storage"
)

// Failure reasons returned in Result.Reason. These are expected negative
// outcomes, not errors; only store failures surface as Go errors.
const (
	ReasonInvalidKey   = "invalid key"
	ReasonKeyDisabled  = "key disabled"
	ReasonKeyExpired   = "key expired"
	ReasonIPNotAllowed = "IP not allowed"
	ReasonRateLimited  = "rate limit exceeded"
)

// Result is the outcome of validating a presented credential.
type Result struct {
	Valid       bool
	KeyID       int64
	KeyName     string
	Permissions []string
	RateLimit   storage.RateLimit
	Reason      string // set when Valid is false
}

// Storage is the persistence interface the validator depends on.
type Storage interface {
	GetKeyByHash(ctx context.Context, keyHash string) (*storage.APIKey, error)
	TouchLastUsed(ctx context.Context, id int64) error
}

// Limiter bounds per-key request throughput.
type Limiter interface {
	Allow(keyID int64, policy storage.RateLimit) bool
}

// Validator decides whether a presented credential authorizes a request.
type Validator struct {
	storage Storage
	limiter Limiter
	now     func() time.Time
}

// NewValidator creates a Validator using the system clock.
func NewValidator(s Storage, l Limiter) *Validator {
	return &Validator{storage: s, limiter: l, now: time.Now}
}

// NewValidatorWithClock creates a Validator with an injectable clock for
// expiry tests.
func NewValidatorWithClock(s Storage, l Limiter, now func() time.Time) *Validator {
	return &Validator{storage: s, limiter: l, now: now}
}

// Validate checks a presented credential against the key store.
// Absence, disablement, expiry, IP mismatch, and rate-limit exhaustion are
// normal negative results; an error is returned only for store failures,
// which callers must map to a 5xx (fail-closed).
//
// The lookup goes through the one-way stored form, so the presented secret
// is compared by digest rather than by value.
func (v *Validator) Validate(ctx context.Context, presented, clientIP string) (*Result, error) {
	record, err := v.storage.GetKeyByHash(ctx, keygen.HashKey(presented))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// A deleted key is indistinguishable from one that never existed.
			return &Result{Valid: false, Reason: ReasonInvalidKey}, nil
		}
		return nil, err
	}

	if !record.IsEnabled {
		return &Result{Valid: false, Reason: ReasonKeyDisabled}, nil
	}

	if record.ExpiresAt != nil && record.ExpiresAt.Before(v.now()) {
		return &Result{Valid: false, Reason: ReasonKeyExpired}, nil
	}

	if !ipAllowed(record.AllowedIPs, clientIP) {
		return &Result{Valid: false, Reason: ReasonIPNotAllowed}, nil
	}

	if !v.limiter.Allow(record.ID, record.RateLimit) {
		return &Result{Valid: false, Reason: ReasonRateLimited}, nil
	}

	// Best effort; a failed timestamp update must not reject the request.
	_ = v.storage.TouchLastUsed(ctx, record.ID) //nolint:errcheck

	return &Result{
		Valid:       true,
		KeyID:       record.ID,
		KeyName:     record.Name,
		Permissions: record.Permissions,
		RateLimit:   record.RateLimit,
	}, nil
}

// ipAllowed reports whether clientIP matches the allow-list.
// An empty list means no IP restriction. Entries are exact strings; a "*"
// entry allows any IP.
func ipAllowed(allowedIPs []string, clientIP string) bool {
	if len(allowedIPs) == 0 {
		return true
	}
	for _, ip := range allowedIPs {
		if ip == "*" || ip == clientIP {
			return true
		}
	}
	return false
}
