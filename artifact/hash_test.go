// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"strings"
	"testing"
)

func TestHashComponentDeterministic(t *testing.T) {
	data := []byte("\x00asm\x01\x00\x00\x00")
	first := HashComponent(data)
	second := HashComponent(data)
	if first != second {
		t.Error("same bytes produced different hashes")
	}
	if first == HashComponent([]byte("\x00asm\x01\x00\x00\x01")) {
		t.Error("different bytes produced the same hash")
	}
}

func TestHashStringRoundTrip(t *testing.T) {
	hash := HashComponent([]byte("component"))
	encoded := hash.String()
	if len(encoded) != 64 || strings.ToLower(encoded) != encoded {
		t.Fatalf("String() = %q, want 64 lowercase hex characters", encoded)
	}

	parsed, err := ParseHash(encoded)
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != hash {
		t.Error("round trip changed the hash")
	}
}

func TestParseHashRejectsBadInput(t *testing.T) {
	for _, input := range []string{
		"",
		"abc",
		strings.Repeat("g", 64),
		strings.Repeat("ab", 33),
	} {
		if _, err := ParseHash(input); err == nil {
			t.Errorf("ParseHash(%q) = nil error", input)
		}
	}
}
