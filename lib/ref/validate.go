// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// maxNameLength bounds account and asset names. Matches the upstream
// ledger's account grammar.
const maxNameLength = 32

// maxDomainLength bounds domain identifiers.
const maxDomainLength = 64

// validateName checks an account or asset name: non-empty, at most 32
// characters, lowercase letters, digits, and underscore only.
func validateName(name, what string) error {
	if name == "" {
		return fmt.Errorf("%s is empty", what)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%s %q exceeds %d characters", what, name, maxNameLength)
	}
	for _, r := range name {
		if !isNameRune(r) {
			return fmt.Errorf("%s %q contains invalid character %q", what, name, r)
		}
	}
	return nil
}

// validateDomain checks a domain identifier: non-empty, at most 64
// characters, lowercase labels of letters/digits separated by single
// dots, no leading or trailing dot.
func validateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain is empty")
	}
	if len(domain) > maxDomainLength {
		return fmt.Errorf("domain %q exceeds %d characters", domain, maxDomainLength)
	}
	lastWasDot := true // Catches a leading dot.
	for _, r := range domain {
		if r == '.' {
			if lastWasDot {
				return fmt.Errorf("domain %q has an empty label", domain)
			}
			lastWasDot = true
			continue
		}
		if !isDomainRune(r) {
			return fmt.Errorf("domain %q contains invalid character %q", domain, r)
		}
		lastWasDot = false
	}
	if lastWasDot {
		return fmt.Errorf("domain %q has an empty label", domain)
	}
	return nil
}

func isNameRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_'
}

func isDomainRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9'
}
