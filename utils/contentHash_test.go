package utils

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDigestDeterministicForEquivalentPayloads(t *testing.T) {
	a := map[string]any{
		"berth":  "B-12",
		"crew":   []any{"alice", "bob"},
		"checks": map[string]any{"y": true, "x": 1},
	}
	b := map[string]any{
		"checks": map[string]any{"x": 1.0, "y": true},
		"crew":   []any{"alice", "bob"},
		"berth":  "B-12",
	}

	ha, err := Digest(a)
	if err != nil {
		t.Fatalf("Digest(a): %v", err)
	}
	hb, err := Digest(b)
	if err != nil {
		t.Fatalf("Digest(b): %v", err)
	}
	if ha != hb {
		t.Fatalf("expected same hash, got %s vs %s", ha, hb)
	}
	if !strings.HasPrefix(ha, ContentHashPrefix) || len(ha) != len(ContentHashPrefix)+64 {
		t.Fatalf("unexpected hash format %q", ha)
	}
}

func TestDigestChangesWhenDataChanges(t *testing.T) {
	ha, _ := Digest(map[string]any{"berth": "B-12"})
	hb, _ := Digest(map[string]any{"berth": "B-14"})
	if ha == hb {
		t.Fatalf("expected different hashes")
	}
	hc, _ := Digest(map[string]any{"berth": "B-12", "extra": nil})
	if ha == hc {
		t.Fatalf("expected an added key to change the hash")
	}
}

func TestCanonicalJSONNormalizesNumbersAndKeys(t *testing.T) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(`{"b": 1.50, "a": [3, 1e2, -0.25]}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := CanonicalJSON(decoded)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"a":[3,100,-0.25],"b":1.5}`
	if string(got) != want {
		t.Fatalf("CanonicalJSON expected %s, got %s", want, got)
	}
}

func TestCanonicalEqual(t *testing.T) {
	cases := []struct {
		a, b any
		want bool
	}{
		{map[string]any{"x": 1}, map[string]any{"x": 1.0}, true},
		{[]any{1, 2}, []any{2, 1}, false},
		{"a", "a", true},
		{nil, nil, true},
		{map[string]any{"x": nil}, map[string]any{}, false},
	}
	for i, tc := range cases {
		if got := CanonicalEqual(tc.a, tc.b); got != tc.want {
			t.Fatalf("case %d: CanonicalEqual(%v, %v) expected %v, got %v", i, tc.a, tc.b, tc.want, got)
		}
	}
}
