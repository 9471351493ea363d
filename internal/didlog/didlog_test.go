package didlog_test

import (
	"testing"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/didlog"
)

func TestExtractDIDIDFromStateID(t *testing.T) {
	jsonl := `{"versionId":"1-abc","parameters":{"method":"did:webvh:1.0"},"state":{"id":"did:webvh:abc123:example.com:test"}}`
	if got := didlog.ExtractDIDID(jsonl); got != "did:webvh:abc123:example.com:test" {
		t.Fatalf("ExtractDIDID = %q", got)
	}
}

func TestExtractDIDIDIgnoresParametersMethod(t *testing.T) {
	jsonl := `{"parameters":{"method":"did:webvh:1.0"},"state":{"id":"did:webvh:real:host:path"}}`
	if got := didlog.ExtractDIDID(jsonl); got != "did:webvh:real:host:path" {
		t.Fatalf("ExtractDIDID = %q", got)
	}
}

func TestExtractDIDIDReturnsEmptyWithoutState(t *testing.T) {
	if got := didlog.ExtractDIDID(`{"parameters":{"method":"did:webvh:1.0"}}`); got != "" {
		t.Fatalf("ExtractDIDID = %q, want empty", got)
	}
}

func TestExtractDIDIDReturnsEmptyForNonWebvhStateID(t *testing.T) {
	if got := didlog.ExtractDIDID(`{"state":{"id":"did:key:z6Mk"}}`); got != "" {
		t.Fatalf("ExtractDIDID = %q, want empty", got)
	}
}

func TestExtractDIDIDReturnsEmptyForInvalidJSON(t *testing.T) {
	if got := didlog.ExtractDIDID("not valid json"); got != "" {
		t.Fatalf("ExtractDIDID = %q, want empty", got)
	}
}

func TestExtractDIDIDUsesLastLine(t *testing.T) {
	jsonl := "{\"state\":{\"id\":\"did:webvh:first:host:path\"}}\n{\"state\":{\"id\":\"did:webvh:second:host:path\"}}"
	if got := didlog.ExtractDIDID(jsonl); got != "did:webvh:second:host:path" {
		t.Fatalf("ExtractDIDID = %q", got)
	}
}

func TestExtractMetadataEmptyContent(t *testing.T) {
	meta := didlog.ExtractMetadata("")
	if meta.LogEntryCount != 0 || meta.LatestVersionID != nil {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestExtractMetadataBasicEntry(t *testing.T) {
	jsonl := `{"versionId":"1-QmHash","versionTime":"2025-01-23T04:12:36Z","parameters":{"method":"did:webvh:1.0","portable":true}}`
	meta := didlog.ExtractMetadata(jsonl)
	if meta.LogEntryCount != 1 {
		t.Fatalf("LogEntryCount = %d", meta.LogEntryCount)
	}
	if meta.LatestVersionID == nil || *meta.LatestVersionID != "1-QmHash" {
		t.Fatalf("LatestVersionID = %v", meta.LatestVersionID)
	}
	if meta.Method == nil || *meta.Method != "did:webvh:1.0" {
		t.Fatalf("Method = %v", meta.Method)
	}
	if !meta.Portable || meta.PreRotation || meta.Witnesses || meta.Watchers || meta.Deactivated {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestExtractMetadataWitnessesAndWatchers(t *testing.T) {
	jsonl := `{"versionId":"2-QmXyz","parameters":{"witness":{"threshold":2,"witnesses":[{"id":"did:key:z1"},{"id":"did:key:z2"},{"id":"did:key:z3"}]},"watchers":["https://w1.example.com","https://w2.example.com"],"nextKeyHashes":["QmHash1"]}}`
	meta := didlog.ExtractMetadata(jsonl)
	if !meta.Witnesses || meta.WitnessCount != 3 || meta.WitnessThreshold != 2 {
		t.Fatalf("meta = %+v", meta)
	}
	if !meta.Watchers || meta.WatcherCount != 2 {
		t.Fatalf("meta = %+v", meta)
	}
	if !meta.PreRotation {
		t.Fatalf("expected PreRotation true: %+v", meta)
	}
}

func TestExtractMetadataMultiLineUsesLast(t *testing.T) {
	jsonl := "{\"versionId\":\"1-first\",\"parameters\":{\"method\":\"did:webvh:1.0\"}}\n{\"versionId\":\"2-second\",\"parameters\":{\"portable\":true,\"deactivated\":true,\"ttl\":300}}"
	meta := didlog.ExtractMetadata(jsonl)
	if meta.LogEntryCount != 2 {
		t.Fatalf("LogEntryCount = %d", meta.LogEntryCount)
	}
	if meta.LatestVersionID == nil || *meta.LatestVersionID != "2-second" {
		t.Fatalf("LatestVersionID = %v", meta.LatestVersionID)
	}
	if !meta.Portable || !meta.Deactivated {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.TTL == nil || *meta.TTL != 300 {
		t.Fatalf("TTL = %v", meta.TTL)
	}
}

func TestValidateEmptyStringRejected(t *testing.T) {
	err := didlog.Validate("")
	if apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestValidateInvalidJSONRejected(t *testing.T) {
	err := didlog.Validate("this is not json")
	if apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestValidateBlankLinesSkipped(t *testing.T) {
	entry := `{"state":{"id":"did:webvh:abc:host:test"}}`
	if err := didlog.Validate("\n" + entry + "\n\n"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateSecondLineInvalid(t *testing.T) {
	entry := `{"state":{"id":"did:webvh:abc:host:test"}}`
	err := didlog.Validate(entry + "\nnot valid json")
	if apperr.KindOf(err) != apperr.Validation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestEncodeHostWithPort(t *testing.T) {
	got, err := didlog.EncodeHost("http://localhost:8085")
	if err != nil || got != "localhost%3A8085" {
		t.Fatalf("EncodeHost = %q, err=%v", got, err)
	}
}

func TestEncodeHostWithoutPort(t *testing.T) {
	got, err := didlog.EncodeHost("https://example.com")
	if err != nil || got != "example.com" {
		t.Fatalf("EncodeHost = %q, err=%v", got, err)
	}
}
