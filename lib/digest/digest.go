// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes BLAKE3 keyed digests of detail payloads.
//
// When a coordinator writes a detail and then triggers a worker, the
// worker has no way to know whether the value it reads back is the one
// just written or a stale value from an earlier round: the detail
// channel only guarantees eventual visibility. The coordinator
// therefore sends the expected payload digest alongside the trigger,
// and the worker polls its account until the stored value hashes to
// that digest.
package digest

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed digest of a detail payload.
type Digest [32]byte

// payloadDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// detail payloads. It is a fixed constant; changing it invalidates
// every digest in flight. The byte values are the ASCII encoding of
// the domain name, zero-padded to 32 bytes, so the key is inspectable
// in hex dumps without sacrificing any cryptographic property.
var payloadDomainKey = [32]byte{
	'b', 's', 'm', 'd', '.', 'd', 'e', 't', 'a', 'i', 'l', '.',
	'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Payload computes the payload-domain BLAKE3 keyed digest of a detail
// value. Both the writing and reading side must digest the exact value
// string as stored on the ledger.
func Payload(value string) Digest {
	// NewKeyed only fails for a wrong key length, which the fixed-size
	// array rules out.
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(value))
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

// String returns the hex-encoded form used in logs and wire messages.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse parses a 64-character hex string into a Digest.
func Parse(hexString string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return d, fmt.Errorf("parsing payload digest: %w", err)
	}
	if len(decoded) != 32 {
		return d, fmt.Errorf("payload digest is %d bytes, want 32", len(decoded))
	}
	copy(d[:], decoded)
	return d, nil
}
