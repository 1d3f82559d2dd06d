package keys

import (
	"context"
	"time"

	"github.com/flowmasters/keygate/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// KeySummary is the sanitized view of a key record. The stored hash is
// never included; keyPreview is the only credential-derived field.
type KeySummary struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	KeyType     string            `json:"keyType"`
	KeyPreview  string            `json:"keyPreview"`
	Permissions []string          `json:"permissions"`
	AllowedIPs  []string          `json:"allowedIPs"`
	RateLimit   storage.RateLimit `json:"rateLimit"`
	IsEnabled   bool              `json:"isEnabled"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time        `json:"lastUsedAt,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Tags        []string          `json:"tags"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ListFilter selects key records for listing.
type ListFilter struct {
	KeyType   string
	IsEnabled *bool
	Search    string
}

// ListResult is the pagination envelope for key listings.
type ListResult struct {
	Docs        []*KeySummary `json:"docs"`
	TotalDocs   int           `json:"totalDocs"`
	Page        int           `json:"page"`
	TotalPages  int           `json:"totalPages"`
	HasNextPage bool          `json:"hasNextPage"`
	HasPrevPage bool          `json:"hasPrevPage"`
}

// List returns a page of sanitized key records matching the filter.
// Page numbers are 1-based; out-of-range values are clamped.
func (s *Service) List(ctx context.Context, filter ListFilter, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	records, total, err := s.storage.ListKeys(ctx, storage.ListFilter{
		KeyType:   filter.KeyType,
		IsEnabled: filter.IsEnabled,
		Search:    filter.Search,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	docs := make([]*KeySummary, len(records))
	for i, record := range records {
		docs[i] = summarize(record)
	}

	return &ListResult{
		Docs:        docs,
		TotalDocs:   total,
		Page:        page,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1 && total > 0,
	}, nil
}

// summarize strips credential material from a record.
func summarize(record *storage.APIKey) *KeySummary {
	permissions := record.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	allowedIPs := record.AllowedIPs
	if allowedIPs == nil {
		allowedIPs = []string{}
	}
	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}

	return &KeySummary{
		ID:          record.ID,
		Name:        record.Name,
		Description: record.Description,
		KeyType:     record.KeyType,
		KeyPreview:  record.KeyPreview,
		Permissions: permissions,
		AllowedIPs:  allowedIPs,
		RateLimit:   record.RateLimit,
		IsEnabled:   record.IsEnabled,
		ExpiresAt:   record.ExpiresAt,
		LastUsedAt:  record.LastUsedAt,
		Notes:       record.Notes,
		Tags:        tags,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
