package password

import (
	"strings"
	"testing"
)

func TestEncodeMatches(t *testing.T) {
	e := NewEncoder()
	encoded, err := e.Encode("secret1")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(encoded, "{bcrypt}") {
		t.Fatalf("expected {bcrypt} prefix, got %q", encoded)
	}
	if !e.Matches("secret1", encoded) {
		t.Fatal("expected password to match its own hash")
	}
	if e.Matches("secret2", encoded) {
		t.Fatal("expected wrong password to fail")
	}
}

func TestMatchesRejectsUnknownPrefix(t *testing.T) {
	e := NewEncoder()
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "no prefix", encoded: "$2a$10$abcdefghijklmnopqrstuv"},
		{name: "unknown prefix", encoded: "{noop}secret1"},
		{name: "empty", encoded: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if e.Matches("secret1", tc.encoded) {
				t.Fatalf("expected no match for %q", tc.encoded)
			}
		})
	}
}

func TestEncodeIsSalted(t *testing.T) {
	e := NewEncoder()
	a, _ := e.Encode("secret1")
	b, _ := e.Encode("secret1")
	if a == b {
		t.Fatal("expected distinct hashes for the same plaintext")
	}
}
