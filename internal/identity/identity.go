// Package identity normalizes and compares the heterogeneous identity
// references that reach the API: bare id strings, legacy records that embed
// the id under "_id" or "id", raw JSON fragments, and strings damaged by
// stray quoting or whitespace. Every ownership and winner check in the
// engagement lifecycle goes through Equals; nothing else compares ids.
package identity

import (
	"encoding/json"
	"strings"
)

// Canonical reduces an identity reference to its canonical string form.
// Embedded objects prefer "_id" over "id" over nothing. Returns "" when the
// reference is absent or unusable.
func Canonical(ref any) string {
	switch v := ref.(type) {
	case nil:
		return ""
	case string:
		return canonicalString(v)
	case json.RawMessage:
		return canonicalJSON(v)
	case []byte:
		return canonicalJSON(v)
	case map[string]any:
		return canonicalMap(v)
	case map[string]string:
		if id, ok := v["_id"]; ok && canonicalString(id) != "" {
			return canonicalString(id)
		}
		return canonicalString(v["id"])
	}
	return ""
}

// Equals reports whether two identity references resolve to the same
// canonical id. Absent references are never equal to anything, including
// each other.
func Equals(a, b any) bool {
	left := Canonical(a)
	if left == "" {
		return false
	}
	right := Canonical(b)
	if right == "" {
		return false
	}
	return left == right
}

func canonicalString(value string) string {
	trimmed := strings.TrimSpace(value)
	// Legacy clients double-encode ids, leaving literal quotes around the value.
	for len(trimmed) >= 2 {
		first := trimmed[0]
		last := trimmed[len(trimmed)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			continue
		}
		break
	}
	if trimmed == "null" || trimmed == "undefined" {
		return ""
	}
	return trimmed
}

func canonicalJSON(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		// Not valid JSON; treat the raw bytes as a plain string reference.
		return canonicalString(trimmed)
	}
	switch v := decoded.(type) {
	case string:
		return canonicalString(v)
	case map[string]any:
		return canonicalMap(v)
	}
	return ""
}

func canonicalMap(obj map[string]any) string {
	if id := Canonical(obj["_id"]); id != "" {
		return id
	}
	return Canonical(obj["id"])
}
