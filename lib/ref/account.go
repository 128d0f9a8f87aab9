// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// Account references a ledger account: a named identity inside a
// domain, rendered "name@domain". The zero value is invalid; construct
// with NewAccount or ParseAccount.
type Account struct {
	name   string
	domain string
}

// NewAccount constructs a validated account reference.
func NewAccount(name, domain string) (Account, error) {
	if err := validateName(name, "account name"); err != nil {
		return Account{}, fmt.Errorf("invalid account ref: %w", err)
	}
	if err := validateDomain(domain); err != nil {
		return Account{}, fmt.Errorf("invalid account ref: %w", err)
	}
	return Account{name: name, domain: domain}, nil
}

// MustAccount is NewAccount that panics on error. For tests and
// package-level constants only.
func MustAccount(name, domain string) Account {
	account, err := NewAccount(name, domain)
	if err != nil {
		panic(err.Error())
	}
	return account
}

// ParseAccount parses the canonical "name@domain" form.
func ParseAccount(s string) (Account, error) {
	name, domain, ok := strings.Cut(s, "@")
	if !ok {
		return Account{}, fmt.Errorf("invalid account ref %q: missing '@'", s)
	}
	return NewAccount(name, domain)
}

// Name returns the bare account name (e.g. "chief").
func (a Account) Name() string { return a.name }

// Domain returns the account's domain (e.g. "transit").
func (a Account) Domain() string { return a.domain }

// String returns the canonical "name@domain" form.
func (a Account) String() string { return a.name + "@" + a.domain }

// IsZero reports whether this is an uninitialized reference.
func (a Account) IsZero() bool { return a.name == "" }

// MarshalText implements encoding.TextMarshaler. A zero value
// marshals as the empty string, the symmetric counterpart to
// UnmarshalText's zero-value handling.
func (a Account) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return nil, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Account) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = Account{}
		return nil
	}
	parsed, err := ParseAccount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
