package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMasterCredentialPlaintext(t *testing.T) {
	m := NewMasterCredential("swordfish", "")

	if !m.Matches("swordfish") {
		t.Error("exact plaintext should match")
	}
	if m.Matches("Swordfish") {
		t.Error("comparison must be case sensitive")
	}
	if m.Matches("") {
		t.Error("empty presented secret must never match")
	}
}

func TestMasterCredentialBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("swordfish"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	m := NewMasterCredential("", string(hash))

	if !m.Matches("swordfish") {
		t.Error("secret matching the hash should be accepted")
	}
	if m.Matches("not-it") {
		t.Error("wrong secret should be rejected")
	}
}

func TestMasterCredentialHashTakesPrecedence(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	m := NewMasterCredential("plaintext-secret", string(hash))

	if m.Matches("plaintext-secret") {
		t.Error("plaintext must be ignored when a hash is configured")
	}
	if !m.Matches("hashed-secret") {
		t.Error("hash comparison should apply")
	}
}

func TestMasterCredentialUnconfigured(t *testing.T) {
	m := NewMasterCredential("", "")

	if m.Matches("anything") || m.Matches("") {
		t.Error("unconfigured credential must match nothing")
	}
}
