// Package logging provides masking helpers so credentials never reach log output.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaskHeader redacts sensitive header values based on header name.
// Returns the redacted value suitable for logging.
//
// Rules:
// - Password/secret headers: "[REDACTED]" (no partial reveal)
// - Credential headers (Authorization, X-API-Key): "****" + last4chars
// - Other headers: returned unchanged
func MaskHeader(name, value string) string {
	lowerName := strings.ToLower(name)

	// Password/secret headers - full redaction
	if strings.Contains(lowerName, "password") ||
		strings.Contains(lowerName, "secret") ||
		strings.Contains(lowerName, "private-key") {
		return "[REDACTED]"
	}

	// Credential headers - show last 4 chars only
	if lowerName == "authorization" ||
		lowerName == "x-api-key" ||
		lowerName == "x-master-key" {
		if len(value) < 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	}

	return value
}

// sensitiveFields are JSON body fields that carry secret material.
// Create and rotate responses return the plaintext key exactly once;
// it must never be duplicated into debug logs.
var sensitiveFields = map[string]bool{
	"key":    true,
	"newKey": true,
	"token":  true,
	"secret": true,
}

// MaskJSONBody redacts secret-bearing fields in a JSON body.
// Non-JSON bodies are returned unchanged.
func MaskJSONBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		// Not JSON - return original
		return body
	}

	masked := maskJSONValue(data)

	result, err := json.Marshal(masked)
	if err != nil {
		return body
	}

	return result
}

// maskJSONValue recursively redacts sensitive fields.
func maskJSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{})
		for key, val := range v {
			if sensitiveFields[key] {
				result[key] = "[REDACTED]"
				continue
			}
			result[key] = maskJSONValue(val)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = maskJSONValue(item)
		}
		return result
	default:
		return value
	}
}

// FormatBinaryData formats binary data for logging.
// Returns a human-readable size indicator.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
