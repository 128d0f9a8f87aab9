// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"bytes"
	"testing"

	"github.com/bsmd-foundation/bsmd/lib/codec"
)

func TestDeterministicMapEncoding(t *testing.T) {
	// Same logical map, two insertion orders. Signatures depend on
	// both producing identical bytes.
	first := map[string]any{"account": "alice@transit", "key": "betas", "value": "0.1"}
	second := map[string]any{"value": "0.1", "key": "betas", "account": "alice@transit"}

	firstBytes, err := codec.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal first: %v", err)
	}
	secondBytes, err := codec.Marshal(second)
	if err != nil {
		t.Fatalf("Marshal second: %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("encodings differ:\n  first  = %x\n  second = %x", firstBytes, secondBytes)
	}
}

func TestAnyTargetDecodesStringKeyedMaps(t *testing.T) {
	data, err := codec.Marshal(map[string]any{"nested": map[string]any{"cost": "42.5"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	nested, ok := top["nested"].(map[string]any)
	if !ok {
		t.Fatalf("nested type = %T, want map[string]any", top["nested"])
	}
	if nested["cost"] != "42.5" {
		t.Errorf("cost = %v, want %q", nested["cost"], "42.5")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	type record struct {
		Action string `cbor:"action"`
		Round  int    `cbor:"round"`
	}

	var buffer bytes.Buffer
	encoder := codec.NewEncoder(&buffer)
	for i := range 3 {
		if err := encoder.Encode(record{Action: "compute_cost", Round: i}); err != nil {
			t.Fatalf("Encode %d: %v", i, err)
		}
	}

	decoder := codec.NewDecoder(&buffer)
	for i := range 3 {
		var got record
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if got.Round != i || got.Action != "compute_cost" {
			t.Errorf("record %d = %+v", i, got)
		}
	}
}
