// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"

	"github.com/bsmd-foundation/bsmd/lib/ref"
)

// TransactionPayload is the signed portion of a transaction. The
// nonce makes two otherwise identical submissions distinct, which is
// what lets the node reject an exact replay by payload hash.
type TransactionPayload struct {
	Creator   ref.Account `cbor:"creator"`
	CreatedAt int64       `cbor:"created_at"` // Unix milliseconds.
	Nonce     uint64      `cbor:"nonce"`
	Commands  []Command   `cbor:"commands"`
}

// Transaction is a signed list of commands. Commands apply atomically
// in order: if any command is rejected, none of them take effect.
type Transaction struct {
	Payload   TransactionPayload `cbor:"payload"`
	Signature Signature          `cbor:"signature"`
}

// Signature is an Ed25519 signature over the SHA3-256 hash of the
// deterministically encoded payload. PublicKey is carried for
// self-containment; the node verifies it matches the key registered
// for the creator account, not just that the signature checks out.
type Signature struct {
	PublicKey []byte `cbor:"public_key"`
	Signature []byte `cbor:"signature"`
}

// Validate checks payload structure before signing or applying.
func (p *TransactionPayload) Validate() error {
	if p.Creator.IsZero() {
		return fmt.Errorf("ledger: transaction creator is required")
	}
	if len(p.Commands) == 0 {
		return fmt.Errorf("ledger: transaction has no commands")
	}
	for i, command := range p.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("ledger: command %d: %w", i, err)
		}
	}
	return nil
}

// TransactionResult is the node's response to an accepted
// transaction. Hash is the hex payload hash, usable as an idempotency
// reference in logs.
type TransactionResult struct {
	Hash string `cbor:"hash"`
}
