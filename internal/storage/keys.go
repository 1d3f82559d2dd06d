package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const keyColumns = `id, name, description, key_type, key_hash, key_preview,
	permissions, allowed_ips, rate_limit_enabled, requests_per_minute,
	requests_per_hour, is_enabled, expires_at, last_used_at, notes, tags,
	created_at, updated_at`

// CreateKey inserts a new key record and returns its ID.
// Returns ErrDuplicate if a key with this hash already exists.
func (s *SQLiteStorage) CreateKey(ctx context.Context, key *APIKey) (int64, error) {
	permissionsJSON, err := marshalStringArray(key.Permissions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal permissions: %w", err)
	}
	allowedIPsJSON, err := marshalStringArray(key.AllowedIPs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal allowed IPs: %w", err)
	}
	tagsJSON, err := marshalStringArray(key.Tags)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tags: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (name, description, key_type, key_hash, key_preview,
			permissions, allowed_ips, rate_limit_enabled, requests_per_minute,
			requests_per_hour, is_enabled, expires_at, notes, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.Name, key.Description, key.KeyType, key.KeyHash, key.KeyPreview,
		permissionsJSON, allowedIPsJSON, key.RateLimit.Enabled,
		key.RateLimit.RequestsPerMinute, key.RateLimit.RequestsPerHour,
		key.IsEnabled, nullableTime(key.ExpiresAt), key.Notes, tagsJSON)

	if err != nil {
		// Check for UNIQUE constraint violation (extended error code 2067)
		// or base constraint error code 19
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) {
			if sqliteErr.Code() == 2067 || (sqliteErr.Code()&0xFF) == sqlite3.SQLITE_CONSTRAINT {
				return 0, ErrDuplicate
			}
		}
		return 0, fmt.Errorf("failed to create key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert ID: %w", err)
	}

	return id, nil
}

// GetKeyByID retrieves a key record by ID.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStorage) GetKeyByID(ctx context.Context, id int64) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+keyColumns+" FROM api_keys WHERE id = ?", id)

	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key by ID: %w", err)
	}

	return key, nil
}

// GetKeyByHash retrieves a key record by its stored hash.
// This is the authentication lookup path.
// Returns ErrNotFound if the hash doesn't exist.
func (s *SQLiteStorage) GetKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+keyColumns+" FROM api_keys WHERE key_hash = ?", keyHash)

	key, err := scanKey(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key by hash: %w", err)
	}

	return key, nil
}

// ListKeys returns key records matching the filter plus the total match count
// before pagination.
func (s *SQLiteStorage) ListKeys(ctx context.Context, filter ListFilter) ([]*APIKey, int, error) {
	where, args := buildKeyFilter(filter)

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM api_keys"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count keys: %w", err)
	}

	query := "SELECT " + keyColumns + " FROM api_keys" + where + " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var keys []*APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan key row: %w", err)
		}
		keys = append(keys, key)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating keys: %w", err)
	}

	// Return empty slice instead of nil
	if keys == nil {
		keys = make([]*APIKey, 0)
	}

	return keys, total, nil
}

// UpdateKey persists the mutable fields of a key record.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStorage) UpdateKey(ctx context.Context, key *APIKey) error {
	permissionsJSON, err := marshalStringArray(key.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	allowedIPsJSON, err := marshalStringArray(key.AllowedIPs)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed IPs: %w", err)
	}
	tagsJSON, err := marshalStringArray(key.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET name = ?, description = ?, key_type = ?,
			permissions = ?, allowed_ips = ?, rate_limit_enabled = ?,
			requests_per_minute = ?, requests_per_hour = ?, is_enabled = ?,
			expires_at = ?, notes = ?, tags = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		key.Name, key.Description, key.KeyType, permissionsJSON, allowedIPsJSON,
		key.RateLimit.Enabled, key.RateLimit.RequestsPerMinute,
		key.RateLimit.RequestsPerHour, key.IsEnabled,
		nullableTime(key.ExpiresAt), key.Notes, tagsJSON, key.ID)
	if err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}

	return requireRowsAffected(result)
}

// RotateKeyHash replaces the stored hash and preview for an existing record.
// All other fields, including the record identity, are preserved.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStorage) RotateKeyHash(ctx context.Context, id int64, newHash, newPreview string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET key_hash = ?, key_preview = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		newHash, newPreview, id)
	if err != nil {
		return fmt.Errorf("failed to rotate key hash: %w", err)
	}

	return requireRowsAffected(result)
}

// DeleteKey removes a key record permanently.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStorage) DeleteKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return requireRowsAffected(result)
}

// TouchLastUsed records that a key was just used for authentication.
func (s *SQLiteStorage) TouchLastUsed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	return nil
}

// CountByStatus computes aggregate key statistics at call time.
// The expiry cutoff is bound from Go so it uses the same time encoding
// as the stored expires_at values.
func (s *SQLiteStorage) CountByStatus(ctx context.Context) (*KeyCounts, error) {
	var counts KeyCounts

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN is_enabled THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN NOT is_enabled THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at IS NOT NULL AND expires_at < ? THEN 1 ELSE 0 END), 0)
		FROM api_keys`, time.Now().UTC()).
		Scan(&counts.Total, &counts.Enabled, &counts.Disabled, &counts.Expired)
	if err != nil {
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}

	return &counts, nil
}

// buildKeyFilter assembles the WHERE clause and arguments for a list filter.
func buildKeyFilter(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.KeyType != "" {
		clauses = append(clauses, "key_type = ?")
		args = append(args, filter.KeyType)
	}
	if filter.IsEnabled != nil {
		clauses = append(clauses, "is_enabled = ?")
		args = append(args, *filter.IsEnabled)
	}
	if filter.Search != "" {
		clauses = append(clauses, "(name LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanKey reads one api_keys row into an APIKey.
func scanKey(row rowScanner) (*APIKey, error) {
	var key APIKey
	var permissionsJSON, allowedIPsJSON, tagsJSON string
	var expiresAt, lastUsedAt sql.NullTime

	err := row.Scan(&key.ID, &key.Name, &key.Description, &key.KeyType,
		&key.KeyHash, &key.KeyPreview, &permissionsJSON, &allowedIPsJSON,
		&key.RateLimit.Enabled, &key.RateLimit.RequestsPerMinute,
		&key.RateLimit.RequestsPerHour, &key.IsEnabled, &expiresAt, &lastUsedAt,
		&key.Notes, &tagsJSON, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalStringArray(permissionsJSON, &key.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if err := unmarshalStringArray(allowedIPsJSON, &key.AllowedIPs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed IPs: %w", err)
	}
	if err := unmarshalStringArray(tagsJSON, &key.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		key.LastUsedAt = &t
	}

	return &key, nil
}

// requireRowsAffected maps a zero-row mutation to ErrNotFound.
func requireRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// nullableTime converts an optional time into a driver-friendly value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// marshalStringArray is a helper to marshal a string array to JSON.
// nil slices are stored as empty arrays.
func marshalStringArray(arr []string) (string, error) {
	if arr == nil {
		arr = []string{}
	}
	data, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalStringArray is a helper to unmarshal a JSON string array.
func unmarshalStringArray(data string, arr *[]string) error {
	return json.Unmarshal([]byte(data), arr)
}
