// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package digest_test

import (
	"testing"

	"github.com/bsmd-foundation/bsmd/lib/digest"
)

func TestPayloadIsDeterministic(t *testing.T) {
	first := digest.Payload(`[0.1, 0.2, 0.3]`)
	second := digest.Payload(`[0.1, 0.2, 0.3]`)
	if first != second {
		t.Errorf("same payload produced different digests: %s vs %s", first, second)
	}
}

func TestPayloadDistinguishesValues(t *testing.T) {
	if digest.Payload("a") == digest.Payload("b") {
		t.Error("distinct payloads produced the same digest")
	}
	if digest.Payload("") == digest.Payload("a") {
		t.Error("empty and non-empty payloads produced the same digest")
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := digest.Payload("round trip")

	parsed, err := digest.Parse(original.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", original.String(), err)
	}
	if parsed != original {
		t.Errorf("round trip = %s, want %s", parsed, original)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := digest.Parse("not hex"); err == nil {
		t.Error("Parse of non-hex input succeeded, want error")
	}
	if _, err := digest.Parse("abcd"); err == nil {
		t.Error("Parse of short input succeeded, want error")
	}
}
