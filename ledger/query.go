// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"

	"github.com/bsmd-foundation/bsmd/lib/ref"
)

// QueryPayload is the signed portion of a query. Exactly one request
// branch is set.
type QueryPayload struct {
	Creator   ref.Account `cbor:"creator"`
	CreatedAt int64       `cbor:"created_at"` // Unix milliseconds.
	Nonce     uint64      `cbor:"nonce"`

	GetAccountDetail *GetAccountDetail `cbor:"get_account_detail,omitempty"`
	GetAccountAssets *GetAccountAssets `cbor:"get_account_assets,omitempty"`
}

// Query is a signed read request. Queries are signed so the node can
// enforce visibility: an account may read its own details and assets,
// plus the details of accounts that granted it CanSetMyDetail.
type Query struct {
	Payload   QueryPayload `cbor:"payload"`
	Signature Signature    `cbor:"signature"`
}

// GetAccountDetail reads details stored on an account, optionally
// narrowed to one writer, one key, or both. A filter that matches
// nothing yields an empty result, not an error.
type GetAccountDetail struct {
	Account ref.Account `cbor:"account"`
	Writer  ref.Account `cbor:"writer,omitempty"` // Zero means all writers.
	Key     string      `cbor:"key,omitempty"`    // Empty means all keys.
}

// GetAccountAssets reads an account's asset balances.
type GetAccountAssets struct {
	Account ref.Account `cbor:"account"`
}

// Validate checks query structure before signing or serving.
func (p *QueryPayload) Validate() error {
	if p.Creator.IsZero() {
		return fmt.Errorf("ledger: query creator is required")
	}
	set := 0
	if p.GetAccountDetail != nil {
		set++
		if p.GetAccountDetail.Account.IsZero() {
			return fmt.Errorf("ledger: get_account_detail: account is required")
		}
		if p.GetAccountDetail.Key != "" {
			if err := ValidateDetailKey(p.GetAccountDetail.Key); err != nil {
				return err
			}
		}
	}
	if p.GetAccountAssets != nil {
		set++
		if p.GetAccountAssets.Account.IsZero() {
			return fmt.Errorf("ledger: get_account_assets: account is required")
		}
	}
	if set != 1 {
		return fmt.Errorf("ledger: query must set exactly one branch, has %d", set)
	}
	return nil
}

// AccountDetailResult is the wire response to GetAccountDetail.
// Details maps writer account ("name@domain") to key to value.
type AccountDetailResult struct {
	Details map[string]map[string]string `cbor:"details"`
}

// AccountAssetsResult is the wire response to GetAccountAssets.
// Balances maps asset ("name#domain") to held units.
type AccountAssetsResult struct {
	Balances map[string]uint64 `cbor:"balances"`
}
