// Package storage handles all database operations for keygate.
package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	ddlStatements := []string{
		// api_keys table: one row per issued credential
		`CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			key_type TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			key_preview TEXT NOT NULL,
			permissions TEXT NOT NULL,
			allowed_ips TEXT NOT NULL,
			rate_limit_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			requests_per_minute INTEGER NOT NULL DEFAULT 60,
			requests_per_hour INTEGER NOT NULL DEFAULT 1000,
			is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			notes TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Index on key_hash for authentication lookups
		`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,

		// Index on key_type for filtered listings
		`CREATE INDEX IF NOT EXISTS idx_api_keys_type ON api_keys(key_type)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
