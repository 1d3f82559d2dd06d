package logging

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMaskHeader_CredentialHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"authorization shows last 4", "Authorization", "Bearer dev_abcd1234", "****1234"},
		{"x-api-key shows last 4", "X-API-Key", "prod_deadbeef", "****beef"},
		{"short value fully masked", "Authorization", "ab", "****"},
		{"secret header fully redacted", "X-Webhook-Secret", "hunter2", "[REDACTED]"},
		{"password header fully redacted", "X-Admin-Password", "hunter2", "[REDACTED]"},
		{"plain header unchanged", "Content-Type", "application/json", "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskHeader(tt.header, tt.value)
			if got != tt.want {
				t.Errorf("MaskHeader(%q, %q) = %q, want %q", tt.header, tt.value, got, tt.want)
			}
		})
	}
}

func TestMaskJSONBody_RedactsSecrets(t *testing.T) {
	body := []byte(`{"success":true,"data":{"id":1,"key":"dev_secret123","name":"ci"}}`)

	masked := MaskJSONBody(body)

	if strings.Contains(string(masked), "dev_secret123") {
		t.Errorf("masked body still contains plaintext key: %s", masked)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(masked, &decoded); err != nil {
		t.Fatalf("masked body is not valid JSON: %v", err)
	}

	data := decoded["data"].(map[string]interface{})
	if data["key"] != "[REDACTED]" {
		t.Errorf("key = %v, want [REDACTED]", data["key"])
	}
	if data["name"] != "ci" {
		t.Errorf("name = %v, want ci (non-secret fields must survive)", data["name"])
	}
}

func TestMaskJSONBody_RotateResponse(t *testing.T) {
	body := []byte(`{"success":true,"data":{"newKey":"prod_rotated456"}}`)

	masked := MaskJSONBody(body)

	if strings.Contains(string(masked), "prod_rotated456") {
		t.Errorf("masked body still contains rotated key: %s", masked)
	}
}

func TestMaskJSONBody_NonJSONUnchanged(t *testing.T) {
	body := []byte("not json at all")

	masked := MaskJSONBody(body)

	if string(masked) != "not json at all" {
		t.Errorf("non-JSON body was modified: %q", masked)
	}
}

func TestMaskJSONBody_EmptyBody(t *testing.T) {
	if got := MaskJSONBody(nil); len(got) != 0 {
		t.Errorf("expected empty result for nil body, got %q", got)
	}
}

func TestFormatBinaryData(t *testing.T) {
	got := FormatBinaryData([]byte{0x00, 0x01, 0x02})
	if got != "[BINARY: 3 bytes]" {
		t.Errorf("FormatBinaryData = %q", got)
	}
}
