// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package keys manages the Ed25519 identities that sign ledger
// transactions and queries. Every node (coordinator, worker, admin)
// holds one keypair; the ledger maps each account to the public key
// registered at account creation and verifies every submission
// against it.
//
// Key files on disk are age-encrypted with a scrypt passphrase, so a
// leaked disk image does not leak signing authority. Public keys
// travel as lowercase hex strings.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Keypair holds an Ed25519 signing identity. The private key must
// never be logged or written to disk unencrypted; use SaveEncrypted.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a fresh Ed25519 keypair from crypto/rand.
func Generate() (*Keypair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 keypair: %w", err)
	}
	return &Keypair{Public: public, Private: private}, nil
}

// PublicHex returns the public key as a lowercase hex string, the
// format used in account creation commands and key files.
func (k *Keypair) PublicHex() string {
	return hex.EncodeToString(k.Public)
}

// ParsePublicKey decodes a hex-encoded Ed25519 public key. Validates
// that the key is valid hex and the correct length.
func ParsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("hex-decoding public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has wrong length: got %d bytes, want %d", len(keyBytes), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(keyBytes), nil
}

// ParsePrivateKey decodes a hex-encoded Ed25519 private key seed and
// expands it to a full private key.
func ParsePrivateKey(hexSeed string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("hex-decoding private key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key seed has wrong length: got %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
