package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// MasterCredential is the process-wide administrative secret. A request
// bearing it is granted all permissions without consulting the key store.
// This is a deliberate trust concentration; it exists for admin and
// bootstrap traffic only.
//
// The secret is configured either as plaintext (compared in constant time)
// or as a bcrypt hash, so deployments can avoid keeping the plaintext in
// the environment.
type MasterCredential struct {
	plaintext string
	hash      string
}

// NewMasterCredential builds a MasterCredential from configuration.
// If hash is non-empty it takes precedence over plaintext.
func NewMasterCredential(plaintext, hash string) MasterCredential {
	return MasterCredential{plaintext: plaintext, hash: hash}
}

// Matches reports whether presented equals the master secret.
// An unconfigured credential matches nothing.
func (m MasterCredential) Matches(presented string) bool {
	if presented == "" {
		return false
	}
	if m.hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(m.hash), []byte(presented)) == nil
	}
	if m.plaintext == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(m.plaintext), []byte(presented)) == 1
}
