package storage

import "time"

// Key type values accepted for API key records.
const (
	KeyTypeDevelopment = "development"
	KeyTypeProduction  = "production"
	KeyTypeIntegration = "integration"
)

// RateLimit is the per-key throughput policy.
// JSON tags match the shape used on the admin API surface.
type RateLimit struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requestsPerMinute"`
	RequestsPerHour   int  `json:"requestsPerHour"`
}

// APIKey represents one issued credential and its policy.
// KeyHash holds the SHA-256 digest of the plaintext; the plaintext itself
// is never persisted.
type APIKey struct {
	ID          int64
	Name        string
	Description string
	KeyType     string
	KeyHash     string
	KeyPreview  string
	Permissions []string
	AllowedIPs  []string
	RateLimit   RateLimit
	IsEnabled   bool
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	Notes       string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// KeyCounts holds aggregate key statistics.
type KeyCounts struct {
	Total    int `json:"total"`
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
	Expired  int `json:"expired"`
}

// ListFilter selects and pages key records.
type ListFilter struct {
	KeyType   string // empty = all types
	IsEnabled *bool  // nil = both
	Search    string // substring match over name and description
	Limit     int
	Offset    int
}
