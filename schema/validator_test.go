package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateRecordPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"owner_id":"owner-7",
		"record_id":"rec-1001",
		"text":"The quick brown fox jumps over the lazy dog",
		"title":"Quick fox",
		"canonical_url":"https://example.com/stories/1001",
		"language":"en",
		"metadata":{"batch":"nightly","attempt":1}
	}`)

	record, err := ValidateRecordPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if record.OwnerID != "owner-7" {
		t.Fatalf("expected owner_id=owner-7, got %q", record.OwnerID)
	}
	if record.RecordID != "rec-1001" {
		t.Fatalf("expected record_id=rec-1001, got %q", record.RecordID)
	}
	if record.Text == nil || *record.Text != "The quick brown fox jumps over the lazy dog" {
		t.Fatalf("unexpected text field: %v", record.Text)
	}
}

func TestValidateRecordPayload_MissingRequired(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"owner_id":"owner-7",
		"text":"missing record id"
	}`)

	_, err := ValidateRecordPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for missing record_id")
	}
}

func TestValidateRecordPayload_WhitespaceOwnerID(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"owner_id":"   ",
		"record_id":"rec-1"
	}`)

	_, err := ValidateRecordPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only owner_id")
	}
	if !strings.Contains(err.Error(), "owner_id must not be empty") {
		t.Fatalf("expected owner_id semantic error, got: %v", err)
	}
}

func TestValidateRecordPayload_WrongVersion(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v2",
		"owner_id":"owner-7",
		"record_id":"rec-1"
	}`)

	_, err := ValidateRecordPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unsupported payload_version")
	}
	if !strings.Contains(err.Error(), "payload_version must be v1") {
		t.Fatalf("expected payload_version semantic error, got: %v", err)
	}
}

func TestValidateRecordPayload_InvalidCanonicalURL(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"owner_id":"owner-7",
		"record_id":"rec-1",
		"canonical_url":"not a uri"
	}`)

	_, err := ValidateRecordPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for invalid canonical_url")
	}
}

func TestValidateRecordPayload_UnknownField(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"owner_id":"owner-7",
		"record_id":"rec-1",
		"shadow":"unexpected"
	}`)

	_, err := ValidateRecordPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unknown top-level field")
	}
}

func TestValidateRecordPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","owner_id":"o","record_id":"r"} {}`)

	_, err := ValidateRecordPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for trailing JSON content")
	}
}
