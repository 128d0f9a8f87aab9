// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity loads a node's signing identity from its
// configuration: the age-encrypted key file plus a passphrase from a
// file or a terminal prompt.
package identity

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bsmd-foundation/bsmd/lib/config"
	"github.com/bsmd-foundation/bsmd/lib/keys"
	"github.com/bsmd-foundation/bsmd/ledger"
)

// PromptPassphrase reads a passphrase from the terminal without echo.
func PromptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("identity: stdin is not a terminal; configure identity.passphrase_file")
	}
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("identity: reading passphrase: %w", err)
	}
	return string(passphrase), nil
}

// passphrase resolves the key passphrase: from the configured file
// when set, interactively otherwise.
func passphrase(cfg config.IdentityConfig) (string, error) {
	if cfg.PassphraseFile != "" {
		data, err := os.ReadFile(cfg.PassphraseFile)
		if err != nil {
			return "", fmt.Errorf("identity: reading passphrase file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return PromptPassphrase(fmt.Sprintf("Passphrase for %s: ", cfg.KeyFile))
}

// Load decrypts the configured key file and builds a signer for the
// configured account.
func Load(cfg config.IdentityConfig) (*ledger.Signer, error) {
	secret, err := passphrase(cfg)
	if err != nil {
		return nil, err
	}
	keypair, err := keys.LoadEncrypted(cfg.KeyFile, secret)
	if err != nil {
		return nil, err
	}
	return ledger.NewSigner(cfg.Account, keypair, nil)
}
