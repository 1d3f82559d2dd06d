// Package keygen produces API key secrets and their one-way stored forms.
package keygen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/flowmasters/keygate/internal/storage"
)

// secretBytes is the random payload size per key (256 bits).
const secretBytes = 32

// previewLength is how many leading plaintext characters are safe to display.
const previewLength = 8

// Generated holds a freshly issued credential.
// Plaintext is shown to the caller exactly once; only StoredForm and
// Preview are ever persisted.
type Generated struct {
	Plaintext  string
	StoredForm string
	Preview    string
}

// Generate creates a new random key for the given key type.
// The plaintext is a readability prefix plus 64 hex characters of
// cryptographically random material. Failure of the system random source
// is fatal and propagates to the caller.
func Generate(keyType string) (*Generated, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to read random source: %w", err)
	}

	plaintext := typePrefix(keyType) + hex.EncodeToString(b)

	return &Generated{
		Plaintext:  plaintext,
		StoredForm: HashKey(plaintext),
		Preview:    Preview(plaintext),
	}, nil
}

// HashKey computes the SHA-256 hex digest of a plaintext key.
// This is the stored form used for lookup; it cannot be reversed.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Preview returns the display-safe prefix of a plaintext key.
func Preview(plaintext string) string {
	if len(plaintext) <= previewLength {
		return plaintext + "..."
	}
	return plaintext[:previewLength] + "..."
}

// typePrefix maps a key type to its human-readable plaintext prefix.
func typePrefix(keyType string) string {
	switch keyType {
	case storage.KeyTypeDevelopment:
		return "dev_"
	case storage.KeyTypeProduction:
		return "prod_"
	case storage.KeyTypeIntegration:
		return "int_"
	default:
		return "key_"
	}
}
