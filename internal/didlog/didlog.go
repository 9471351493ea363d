// Package didlog implements the syntactic half of did:webvh log-entry
// handling this server is responsible for: line-by-line JSONL
// validation and metadata extraction from stored did.jsonl content.
// Cryptographic proof verification belongs to the log-entry codec and
// is out of scope here.
package didlog

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/affinidi/webvh-server/internal/apperr"
)

// Entry is one parsed log entry, surfaced on GET /api/dids/{mnemonic}/log.
type Entry struct {
	VersionID   *string         `json:"versionId"`
	VersionTime *string         `json:"versionTime"`
	State       json.RawMessage `json:"state"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Metadata summarizes a did.jsonl log's parameters as of its last entry.
type Metadata struct {
	LogEntryCount     int     `json:"logEntryCount"`
	LatestVersionID   *string `json:"latestVersionId"`
	LatestVersionTime *string `json:"latestVersionTime"`
	Method            *string `json:"method"`
	Portable          bool    `json:"portable"`
	PreRotation       bool    `json:"preRotation"`
	Deactivated       bool    `json:"deactivated"`
	TTL               *int    `json:"ttl"`
	Witnesses         bool    `json:"witnesses"`
	WitnessCount      int     `json:"witnessCount"`
	WitnessThreshold  int     `json:"witnessThreshold"`
	Watchers          bool    `json:"watchers"`
	WatcherCount      int     `json:"watcherCount"`
}

// Validate checks that content is non-empty and that every non-blank
// line deserializes as JSON carrying a "state" object — the minimal
// syntactic shape of a did:webvh log entry this server can check
// without the log-entry codec. The first bad line aborts with
// Validation citing its 1-based line number.
func Validate(content string) error {
	if content == "" {
		return apperr.New(apperr.Validation, "did.jsonl content cannot be empty")
	}
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v map[string]any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return apperr.New(apperr.Validation, fmt.Sprintf("invalid log entry at line %d: %v", i+1, err))
		}
		if _, ok := v["state"].(map[string]any); !ok {
			return apperr.New(apperr.Validation, fmt.Sprintf("invalid log entry at line %d: missing state object", i+1))
		}
	}
	return nil
}

func lastNonEmptyLine(content string) (string, bool) {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line, true
		}
	}
	return "", false
}

// ExtractDIDID returns the did:webvh:... identifier found at
// state.id in the last line of jsonlContent, or "" if absent or not
// a did:webvh identifier.
func ExtractDIDID(jsonlContent string) string {
	last, ok := lastNonEmptyLine(jsonlContent)
	if !ok {
		return ""
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(last), &v); err != nil {
		return ""
	}
	state, _ := v["state"].(map[string]any)
	id, _ := state["id"].(string)
	if !strings.HasPrefix(id, "did:webvh:") {
		return ""
	}
	return id
}

// ExtractVersionID returns the versionId field of the last line, or ""
// if absent.
func ExtractVersionID(jsonlContent string) string {
	last, ok := lastNonEmptyLine(jsonlContent)
	if !ok {
		return ""
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(last), &v); err != nil {
		return ""
	}
	id, _ := v["versionId"].(string)
	return id
}

// ExtractMetadata parses jsonlContent's last line into a Metadata
// summary for the DID info endpoint.
func ExtractMetadata(jsonlContent string) Metadata {
	lines := strings.Split(jsonlContent, "\n")
	nonEmpty := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty++
		}
	}
	meta := Metadata{LogEntryCount: nonEmpty}

	last, ok := lastNonEmptyLine(jsonlContent)
	if !ok {
		return meta
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(last), &v); err != nil {
		return meta
	}

	if s, ok := v["versionId"].(string); ok {
		meta.LatestVersionID = &s
	}
	if s, ok := v["versionTime"].(string); ok {
		meta.LatestVersionTime = &s
	}

	params, _ := v["parameters"].(map[string]any)
	if params == nil {
		return meta
	}

	if s, ok := params["method"].(string); ok {
		meta.Method = &s
	}
	if b, ok := params["portable"].(bool); ok {
		meta.Portable = b
	}
	if arr, ok := params["nextKeyHashes"].([]any); ok && len(arr) > 0 {
		meta.PreRotation = true
	}
	if b, ok := params["deactivated"].(bool); ok {
		meta.Deactivated = b
	}
	if n, ok := params["ttl"].(float64); ok {
		ttl := int(n)
		meta.TTL = &ttl
	}
	if witness, ok := params["witness"].(map[string]any); ok {
		threshold := 0
		if n, ok := witness["threshold"].(float64); ok {
			threshold = int(n)
		}
		count := 0
		if arr, ok := witness["witnesses"].([]any); ok {
			count = len(arr)
		}
		if count > 0 {
			meta.Witnesses = true
			meta.WitnessCount = count
			meta.WitnessThreshold = threshold
		}
	}
	if arr, ok := params["watchers"].([]any); ok && len(arr) > 0 {
		meta.Watchers = true
		meta.WatcherCount = len(arr)
	}

	return meta
}

// ParseEntries splits jsonlContent into individual Entry values for
// GET /api/dids/{mnemonic}/log, skipping lines that fail to parse.
func ParseEntries(jsonlContent string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(jsonlContent, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		e := Entry{State: v["state"], Parameters: v["parameters"]}
		if raw, ok := v["versionId"]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				e.VersionID = &s
			}
		}
		if raw, ok := v["versionTime"]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				e.VersionTime = &s
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// EncodeHost turns baseURL's host (with any port percent-encoded,
// ':' -> "%3A") into the host component of a did:webvh identifier.
func EncodeHost(baseURL string) (string, error) {
	host, port, err := splitHostPort(baseURL)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "parsing base URL", err)
	}
	if port == "" {
		return host, nil
	}
	return host + "%3A" + port, nil
}

func splitHostPort(rawURL string) (host, port string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("URL has no host: %q", rawURL)
	}
	return u.Hostname(), u.Port(), nil
}
