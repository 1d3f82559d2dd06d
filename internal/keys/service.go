// Package keys implements the API key lifecycle: create, update, rotate,
// disable, delete, list, and statistics.
package keys

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmasters/keygate/internal/keygen"
	"github.com/flowmasters/keygate/internal/storage"
)

// ErrNotFound is returned when an operation targets an unknown key ID.
var ErrNotFound = storage.ErrNotFound

// ValidationError reports malformed administrative input. Its message is
// safe to surface to the (trusted) admin audience.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Storage is the persistence interface the service depends on.
type Storage interface {
	CreateKey(ctx context.Context, key *storage.APIKey) (int64, error)
	GetKeyByID(ctx context.Context, id int64) (*storage.APIKey, error)
	ListKeys(ctx context.Context, filter storage.ListFilter) ([]*storage.APIKey, int, error)
	UpdateKey(ctx context.Context, key *storage.APIKey) error
	RotateKeyHash(ctx context.Context, id int64, newHash, newPreview string) error
	DeleteKey(ctx context.Context, id int64) error
	CountByStatus(ctx context.Context) (*storage.KeyCounts, error)
}

// CounterReset drops rate-limit counters for a key. Deleting a key frees
// its counters so the limiter map does not accumulate entries for dead IDs.
type CounterReset interface {
	Forget(keyID int64)
}

// Service manages key records.
type Service struct {
	storage       Storage
	defaultPolicy storage.RateLimit
	counters      CounterReset
}

// NewService creates a Service. defaultPolicy is applied to keys created
// without an explicit rate limit. counters may be nil.
func NewService(s Storage, defaultPolicy storage.RateLimit, counters CounterReset) *Service {
	return &Service{storage: s, defaultPolicy: defaultPolicy, counters: counters}
}

// CreateInput describes a new key. Name and KeyType are required.
type CreateInput struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	KeyType     string             `json:"keyType"`
	Permissions []string           `json:"permissions"`
	AllowedIPs  []string           `json:"allowedIPs"`
	RateLimit   *storage.RateLimit `json:"rateLimit"`
	ExpiresAt   *time.Time         `json:"expiresAt"`
	Notes       string             `json:"notes"`
	Tags        []string           `json:"tags"`
}

// CreateResult carries the new record ID and the plaintext key.
// This is the only time the plaintext is ever exposed.
type CreateResult struct {
	ID  int64  `json:"id"`
	Key string `json:"key"`
}

// Create validates the input, generates a secret, and persists the record.
func (s *Service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.Name == "" || input.KeyType == "" {
		return nil, &ValidationError{Message: "name and keyType are required"}
	}

	generated, err := keygen.Generate(input.KeyType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	permissions := input.Permissions
	if len(permissions) == 0 {
		permissions = []string{"read"}
	}

	rateLimit := s.defaultPolicy
	if input.RateLimit != nil {
		rateLimit = *input.RateLimit
	}

	record := &storage.APIKey{
		Name:        input.Name,
		Description: input.Description,
		KeyType:     input.KeyType,
		KeyHash:     generated.StoredForm,
		KeyPreview:  generated.Preview,
		Permissions: permissions,
		AllowedIPs:  input.AllowedIPs,
		RateLimit:   rateLimit,
		IsEnabled:   true,
		ExpiresAt:   input.ExpiresAt,
		Notes:       input.Notes,
		Tags:        input.Tags,
	}

	id, err := s.storage.CreateKey(ctx, record)
	if err != nil {
		return nil, err
	}

	return &CreateResult{ID: id, Key: generated.Plaintext}, nil
}

// UpdatePatch carries the mutable fields of a key record. Nil fields are
// left unchanged. Fields outside this allow-list are dropped silently by
// JSON decoding, never applied.
type UpdatePatch struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	KeyType     *string            `json:"keyType"`
	Permissions *[]string          `json:"permissions"`
	AllowedIPs  *[]string          `json:"allowedIPs"`
	RateLimit   *storage.RateLimit `json:"rateLimit"`
	ExpiresAt   *time.Time         `json:"expiresAt"`
	Notes       *string            `json:"notes"`
	Tags        *[]string          `json:"tags"`
	IsEnabled   *bool              `json:"isEnabled"`
}

// Update applies a patch to an existing record.
// Returns ErrNotFound if the ID does not resolve.
func (s *Service) Update(ctx context.Context, id int64, patch UpdatePatch) (*KeySummary, error) {
	record, err := s.storage.GetKeyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, &ValidationError{Message: "name cannot be empty"}
		}
		record.Name = *patch.Name
	}
	if patch.Description != nil {
		record.Description = *patch.Description
	}
	if patch.KeyType != nil {
		if *patch.KeyType == "" {
			return nil, &ValidationError{Message: "keyType cannot be empty"}
		}
		record.KeyType = *patch.KeyType
	}
	if patch.Permissions != nil {
		record.Permissions = *patch.Permissions
		// Permissions are never empty after creation
		if len(record.Permissions) == 0 {
			record.Permissions = []string{"read"}
		}
	}
	if patch.AllowedIPs != nil {
		record.AllowedIPs = *patch.AllowedIPs
	}
	if patch.RateLimit != nil {
		record.RateLimit = *patch.RateLimit
	}
	if patch.ExpiresAt != nil {
		record.ExpiresAt = patch.ExpiresAt
	}
	if patch.Notes != nil {
		record.Notes = *patch.Notes
	}
	if patch.Tags != nil {
		record.Tags = *patch.Tags
	}
	if patch.IsEnabled != nil {
		record.IsEnabled = *patch.IsEnabled
	}

	if err := s.storage.UpdateKey(ctx, record); err != nil {
		return nil, err
	}

	updated, err := s.storage.GetKeyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return summarize(updated), nil
}

// RotateResult carries the replacement plaintext after a rotation.
type RotateResult struct {
	ID     int64  `json:"id"`
	NewKey string `json:"newKey"`
}

// Rotate regenerates the secret for an existing record. The record identity
// and policy are preserved; the old plaintext becomes permanently unusable.
// Returns ErrNotFound if the ID does not resolve.
func (s *Service) Rotate(ctx context.Context, id int64) (*RotateResult, error) {
	record, err := s.storage.GetKeyByID(ctx, id)
	if err != nil {
		return nil, err
	}

	generated, err := keygen.Generate(record.KeyType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := s.storage.RotateKeyHash(ctx, id, generated.StoredForm, generated.Preview); err != nil {
		return nil, err
	}

	return &RotateResult{ID: id, NewKey: generated.Plaintext}, nil
}

// Disable soft-removes a key by setting isEnabled=false.
// Disabling an already-disabled key succeeds without error.
func (s *Service) Disable(ctx context.Context, id int64) error {
	record, err := s.storage.GetKeyByID(ctx, id)
	if err != nil {
		return err
	}
	if !record.IsEnabled {
		return nil
	}
	record.IsEnabled = false
	return s.storage.UpdateKey(ctx, record)
}

// Delete removes a key record permanently and frees its rate counters.
// Returns ErrNotFound if the ID does not resolve.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.storage.DeleteKey(ctx, id); err != nil {
		return err
	}
	if s.counters != nil {
		s.counters.Forget(id)
	}
	return nil
}

// Statistics returns aggregate counts computed over all records at call time.
func (s *Service) Statistics(ctx context.Context) (*storage.KeyCounts, error) {
	return s.storage.CountByStatus(ctx)
}
