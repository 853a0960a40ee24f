package identity

import (
	"encoding/json"
	"testing"
)

func TestCanonicalStringForms(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "bare id", in: "usr_1", want: "usr_1"},
		{name: "surrounding whitespace", in: "  usr_1\n", want: "usr_1"},
		{name: "stray double quotes", in: `"usr_1"`, want: "usr_1"},
		{name: "stray single quotes", in: "'usr_1'", want: "usr_1"},
		{name: "quotes around whitespace", in: `" usr_1 "`, want: "usr_1"},
		{name: "double-encoded", in: `""usr_1""`, want: "usr_1"},
		{name: "empty", in: "", want: ""},
		{name: "whitespace only", in: "   ", want: ""},
		{name: "literal null", in: "null", want: ""},
		{name: "literal undefined", in: "undefined", want: ""},
		{name: "nil", in: nil, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Canonical(tc.in); got != tc.want {
				t.Fatalf("Canonical(%#v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalEmbeddedObjects(t *testing.T) {
	underscore := map[string]any{"_id": "usr_1", "id": "usr_2"}
	if got := Canonical(underscore); got != "usr_1" {
		t.Fatalf("_id must win over id, got %q", got)
	}

	plain := map[string]any{"id": "usr_2", "name": "Lucía"}
	if got := Canonical(plain); got != "usr_2" {
		t.Fatalf("expected usr_2, got %q", got)
	}

	nested := map[string]any{"_id": map[string]any{"id": "usr_3"}}
	if got := Canonical(nested); got != "usr_3" {
		t.Fatalf("expected usr_3 from nested reference, got %q", got)
	}

	if got := Canonical(map[string]any{"name": "no id here"}); got != "" {
		t.Fatalf("expected empty canonical form, got %q", got)
	}
}

func TestCanonicalRawJSON(t *testing.T) {
	if got := Canonical(json.RawMessage(`"usr_1"`)); got != "usr_1" {
		t.Fatalf("expected usr_1 from JSON string, got %q", got)
	}
	if got := Canonical(json.RawMessage(`{"_id":"usr_1","id":"usr_2"}`)); got != "usr_1" {
		t.Fatalf("expected usr_1 from JSON object, got %q", got)
	}
	if got := Canonical(json.RawMessage(`usr_raw`)); got != "usr_raw" {
		t.Fatalf("invalid JSON should fall back to plain string, got %q", got)
	}
	if got := Canonical(json.RawMessage(`[1,2]`)); got != "" {
		t.Fatalf("arrays carry no identity, got %q", got)
	}
}

func TestEquals(t *testing.T) {
	if !Equals("usr_1", `"usr_1"`) {
		t.Fatal("quoted and bare forms of the same id must be equal")
	}
	if !Equals(map[string]any{"_id": "usr_1"}, " usr_1 ") {
		t.Fatal("embedded object and padded string must be equal")
	}
	if Equals("usr_1", "usr_2") {
		t.Fatal("distinct ids must not be equal")
	}
	if Equals("", "") {
		t.Fatal("absent references are never equal, even to each other")
	}
	if Equals(nil, nil) {
		t.Fatal("nil references are never equal")
	}
	if Equals(map[string]any{}, map[string]any{}) {
		t.Fatal("objects without ids are never equal")
	}
}
