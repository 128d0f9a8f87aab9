// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// Asset references a transferable asset inside a domain, rendered
// "name#domain" (e.g. "fedcoin#transit"). Assets can only move
// between accounts of the same domain.
type Asset struct {
	name   string
	domain string
}

// NewAsset constructs a validated asset reference.
func NewAsset(name, domain string) (Asset, error) {
	if err := validateName(name, "asset name"); err != nil {
		return Asset{}, fmt.Errorf("invalid asset ref: %w", err)
	}
	if err := validateDomain(domain); err != nil {
		return Asset{}, fmt.Errorf("invalid asset ref: %w", err)
	}
	return Asset{name: name, domain: domain}, nil
}

// MustAsset is NewAsset that panics on error. For tests only.
func MustAsset(name, domain string) Asset {
	asset, err := NewAsset(name, domain)
	if err != nil {
		panic(err.Error())
	}
	return asset
}

// ParseAsset parses the canonical "name#domain" form.
func ParseAsset(s string) (Asset, error) {
	name, domain, ok := strings.Cut(s, "#")
	if !ok {
		return Asset{}, fmt.Errorf("invalid asset ref %q: missing '#'", s)
	}
	return NewAsset(name, domain)
}

// Name returns the bare asset name.
func (a Asset) Name() string { return a.name }

// Domain returns the asset's domain.
func (a Asset) Domain() string { return a.domain }

// String returns the canonical "name#domain" form.
func (a Asset) String() string { return a.name + "#" + a.domain }

// IsZero reports whether this is an uninitialized reference.
func (a Asset) IsZero() bool { return a.name == "" }

// MarshalText implements encoding.TextMarshaler.
func (a Asset) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return nil, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Asset) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Asset{}
		return nil
	}
	parsed, err := ParseAsset(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
