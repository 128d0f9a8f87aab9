// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/bsmd-foundation/bsmd/lib/clock"
	"github.com/bsmd-foundation/bsmd/lib/codec"
	"github.com/bsmd-foundation/bsmd/lib/keys"
	"github.com/bsmd-foundation/bsmd/lib/ref"
)

// Signer produces signed transactions and queries for one account.
type Signer struct {
	account ref.Account
	keypair *keys.Keypair
	clock   clock.Clock
}

// NewSigner binds an account reference to its keypair. The clock
// stamps CreatedAt on payloads; pass nil for the real clock.
func NewSigner(account ref.Account, keypair *keys.Keypair, clk clock.Clock) (*Signer, error) {
	if account.IsZero() {
		return nil, fmt.Errorf("ledger: signer account is required")
	}
	if keypair == nil {
		return nil, fmt.Errorf("ledger: signer keypair is required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Signer{account: account, keypair: keypair, clock: clk}, nil
}

// Account returns the account this signer acts as.
func (s *Signer) Account() ref.Account { return s.account }

// PublicKey returns the signer's Ed25519 public key.
func (s *Signer) PublicKey() ed25519.PublicKey { return s.keypair.Public }

// NewTransaction builds and signs a transaction carrying the given
// commands. Each call draws a fresh nonce, so resubmitting the same
// commands produces a distinct transaction.
func (s *Signer) NewTransaction(commands ...Command) (*Transaction, error) {
	payload := TransactionPayload{
		Creator:   s.account,
		CreatedAt: s.clock.Now().UnixMilli(),
		Nonce:     newNonce(),
		Commands:  commands,
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	signature, err := s.sign(&payload)
	if err != nil {
		return nil, err
	}
	return &Transaction{Payload: payload, Signature: signature}, nil
}

// NewQuery builds and signs a query. Exactly one of detail and assets
// must be non-nil.
func (s *Signer) NewQuery(detail *GetAccountDetail, assets *GetAccountAssets) (*Query, error) {
	payload := QueryPayload{
		Creator:          s.account,
		CreatedAt:        s.clock.Now().UnixMilli(),
		Nonce:            newNonce(),
		GetAccountDetail: detail,
		GetAccountAssets: assets,
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	signature, err := s.sign(&payload)
	if err != nil {
		return nil, err
	}
	return &Query{Payload: payload, Signature: signature}, nil
}

func (s *Signer) sign(payload any) (Signature, error) {
	digest, err := PayloadHash(payload)
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		PublicKey: append([]byte(nil), s.keypair.Public...),
		Signature: ed25519.Sign(s.keypair.Private, digest[:]),
	}, nil
}

// PayloadHash computes the SHA3-256 hash of the deterministic CBOR
// encoding of a payload. This is the value signatures cover and the
// value the node uses for replay detection.
func PayloadHash(payload any) ([32]byte, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ledger: encoding payload for signing: %w", err)
	}
	return sha3.Sum256(encoded), nil
}

// TransactionHash returns the hex payload hash of a transaction.
func TransactionHash(tx *Transaction) (string, error) {
	digest, err := PayloadHash(&tx.Payload)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest[:]), nil
}

// VerifySignature checks a signature against the key registered for
// the creator account. The carried public key must equal the
// registered key exactly; a valid signature under some other key is
// an impersonation attempt, not a key rotation.
func VerifySignature(registered ed25519.PublicKey, payload any, signature Signature) error {
	if !registered.Equal(ed25519.PublicKey(signature.PublicKey)) {
		return fmt.Errorf("ledger: signature public key does not match registered account key")
	}
	digest, err := PayloadHash(payload)
	if err != nil {
		return err
	}
	if !ed25519.Verify(registered, digest[:], signature.Signature) {
		return fmt.Errorf("ledger: signature verification failed")
	}
	return nil
}

// newNonce draws a random 64-bit nonce from the system entropy pool.
func newNonce() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic("ledger: reading nonce entropy: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}
