// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"crypto/ed25519"
	"fmt"

	"github.com/bsmd-foundation/bsmd/lib/ref"
)

// Permission names a grantable permission. The only permission in the
// system today is CanSetMyDetail; the type exists so new permissions
// extend the grant table instead of a boolean column.
type Permission string

// CanSetMyDetail lets the grantee write key/value details into the
// grantor's account. This is the substrate for all cross-node data
// exchange: a node never reads another node's raw data, it receives
// exactly the facts the peer chooses to publish into its account.
const CanSetMyDetail Permission = "can_set_my_detail"

// MaxDetailValueLength bounds a detail value in bytes. Writes above
// the limit are rejected by the node and fast-failed by clients
// before signing.
const MaxDetailValueLength = 4096

// maxDetailKeyLength bounds a detail key.
const maxDetailKeyLength = 64

// Command is a one-of: exactly one field is non-nil. The CBOR
// encoding carries only the populated branch.
type Command struct {
	CreateDomain     *CreateDomain     `cbor:"create_domain,omitempty"`
	CreateAccount    *CreateAccount    `cbor:"create_account,omitempty"`
	CreateAsset      *CreateAsset      `cbor:"create_asset,omitempty"`
	AddAssetQuantity *AddAssetQuantity `cbor:"add_asset_quantity,omitempty"`
	TransferAsset    *TransferAsset    `cbor:"transfer_asset,omitempty"`
	SetAccountDetail *SetAccountDetail `cbor:"set_account_detail,omitempty"`
	GrantPermission  *GrantPermission  `cbor:"grant_permission,omitempty"`
	RevokePermission *RevokePermission `cbor:"revoke_permission,omitempty"`
}

// CreateDomain registers a new domain.
type CreateDomain struct {
	Domain string `cbor:"domain"`
}

// CreateAccount registers a new account with its Ed25519 public key.
// The key is the account's identity: every later transaction or query
// from this account must verify against it.
type CreateAccount struct {
	Account   ref.Account `cbor:"account"`
	PublicKey []byte      `cbor:"public_key"`
}

// CreateAsset registers a new asset within a domain.
type CreateAsset struct {
	Asset ref.Asset `cbor:"asset"`
}

// AddAssetQuantity mints amount units of the asset into the
// creator's own balance.
type AddAssetQuantity struct {
	Asset  ref.Asset `cbor:"asset"`
	Amount uint64    `cbor:"amount"`
}

// TransferAsset moves amount units from the creator's balance to the
// destination account.
type TransferAsset struct {
	Asset       ref.Asset   `cbor:"asset"`
	Destination ref.Account `cbor:"destination"`
	Amount      uint64      `cbor:"amount"`
	Description string      `cbor:"description,omitempty"`
}

// SetAccountDetail writes a key/value detail into the target account.
// Writing to the creator's own account is always allowed; writing to
// another account requires that account's CanSetMyDetail grant. The
// detail is upserted on (account, writer, key), so two writers can
// use the same key on the same account without clobbering each other.
type SetAccountDetail struct {
	Account ref.Account `cbor:"account"`
	Key     string      `cbor:"key"`
	Value   string      `cbor:"value"`
}

// GrantPermission gives the grantee a permission over the creator's
// account. Granting an already-held permission is a no-op.
type GrantPermission struct {
	Grantee    ref.Account `cbor:"grantee"`
	Permission Permission  `cbor:"permission"`
}

// RevokePermission removes a permission previously granted to the
// grantee. Revoking an absent permission is a no-op.
type RevokePermission struct {
	Grantee    ref.Account `cbor:"grantee"`
	Permission Permission  `cbor:"permission"`
}

// Validate checks that exactly one branch is set and that the set
// branch is well formed. The node validates before applying; clients
// validate before signing so malformed commands fail without a
// network round trip.
func (c Command) Validate() error {
	set := 0
	if c.CreateDomain != nil {
		set++
	}
	if c.CreateAccount != nil {
		set++
	}
	if c.CreateAsset != nil {
		set++
	}
	if c.AddAssetQuantity != nil {
		set++
	}
	if c.TransferAsset != nil {
		set++
	}
	if c.SetAccountDetail != nil {
		set++
	}
	if c.GrantPermission != nil {
		set++
	}
	if c.RevokePermission != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("ledger: command must set exactly one branch, has %d", set)
	}

	switch {
	case c.CreateDomain != nil:
		if c.CreateDomain.Domain == "" {
			return fmt.Errorf("ledger: create_domain: domain is required")
		}
	case c.CreateAccount != nil:
		if c.CreateAccount.Account.IsZero() {
			return fmt.Errorf("ledger: create_account: account is required")
		}
		if len(c.CreateAccount.PublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("ledger: create_account: public key is %d bytes, want %d",
				len(c.CreateAccount.PublicKey), ed25519.PublicKeySize)
		}
	case c.CreateAsset != nil:
		if c.CreateAsset.Asset.IsZero() {
			return fmt.Errorf("ledger: create_asset: asset is required")
		}
	case c.AddAssetQuantity != nil:
		if c.AddAssetQuantity.Asset.IsZero() {
			return fmt.Errorf("ledger: add_asset_quantity: asset is required")
		}
		if c.AddAssetQuantity.Amount == 0 {
			return fmt.Errorf("ledger: add_asset_quantity: amount must be positive")
		}
	case c.TransferAsset != nil:
		if c.TransferAsset.Asset.IsZero() {
			return fmt.Errorf("ledger: transfer_asset: asset is required")
		}
		if c.TransferAsset.Destination.IsZero() {
			return fmt.Errorf("ledger: transfer_asset: destination is required")
		}
		if c.TransferAsset.Amount == 0 {
			return fmt.Errorf("ledger: transfer_asset: amount must be positive")
		}
	case c.SetAccountDetail != nil:
		if c.SetAccountDetail.Account.IsZero() {
			return fmt.Errorf("ledger: set_account_detail: account is required")
		}
		if err := ValidateDetailKey(c.SetAccountDetail.Key); err != nil {
			return err
		}
		if len(c.SetAccountDetail.Value) > MaxDetailValueLength {
			return fmt.Errorf("ledger: set_account_detail: value is %d bytes, limit %d",
				len(c.SetAccountDetail.Value), MaxDetailValueLength)
		}
	case c.GrantPermission != nil:
		if c.GrantPermission.Grantee.IsZero() {
			return fmt.Errorf("ledger: grant_permission: grantee is required")
		}
		if c.GrantPermission.Permission != CanSetMyDetail {
			return fmt.Errorf("ledger: grant_permission: unknown permission %q", c.GrantPermission.Permission)
		}
	case c.RevokePermission != nil:
		if c.RevokePermission.Grantee.IsZero() {
			return fmt.Errorf("ledger: revoke_permission: grantee is required")
		}
		if c.RevokePermission.Permission != CanSetMyDetail {
			return fmt.Errorf("ledger: revoke_permission: unknown permission %q", c.RevokePermission.Permission)
		}
	}
	return nil
}

// ValidateDetailKey checks a detail key: non-empty, at most 64
// characters, lowercase letters, digits, underscore, and dot. Dots
// let callers build compound keys such as "cost.42".
func ValidateDetailKey(key string) error {
	if key == "" {
		return fmt.Errorf("ledger: detail key is empty")
	}
	if len(key) > maxDetailKeyLength {
		return fmt.Errorf("ledger: detail key %q exceeds %d characters", key, maxDetailKeyLength)
	}
	for _, r := range key {
		valid := r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '.'
		if !valid {
			return fmt.Errorf("ledger: detail key %q contains invalid character %q", key, r)
		}
	}
	return nil
}
