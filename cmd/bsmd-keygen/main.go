// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// bsmd-keygen generates the Ed25519 signing key for a BSMD node and
// writes it to an age-encrypted key file. The hex public key is
// printed so it can be pasted into a ledger node's genesis section.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bsmd-foundation/bsmd/lib/identity"
	"github.com/bsmd-foundation/bsmd/lib/keys"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var out string
	var show string
	var passphraseFile string

	flagSet := pflag.NewFlagSet("bsmd-keygen", pflag.ContinueOnError)
	flagSet.StringVar(&out, "out", "", "write a new encrypted key file to this path")
	flagSet.StringVar(&show, "show", "", "print the public key of an existing key file")
	flagSet.StringVar(&passphraseFile, "passphrase-file", "", "read the passphrase from this file instead of prompting")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	switch {
	case out != "" && show != "":
		return fmt.Errorf("--out and --show are mutually exclusive")
	case out != "":
		return generate(out, passphraseFile)
	case show != "":
		return showPublicKey(show, passphraseFile)
	default:
		return fmt.Errorf("one of --out or --show is required")
	}
}

func resolvePassphrase(passphraseFile string, confirm bool) (string, error) {
	if passphraseFile != "" {
		data, err := os.ReadFile(passphraseFile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	passphrase, err := identity.PromptPassphrase("Passphrase: ")
	if err != nil {
		return "", err
	}
	if confirm {
		again, err := identity.PromptPassphrase("Confirm passphrase: ")
		if err != nil {
			return "", err
		}
		if passphrase != again {
			return "", fmt.Errorf("passphrases do not match")
		}
	}
	return passphrase, nil
}

func generate(path, passphraseFile string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists; refusing to overwrite a key file", path)
	}

	passphrase, err := resolvePassphrase(passphraseFile, true)
	if err != nil {
		return err
	}

	keypair, err := keys.Generate()
	if err != nil {
		return err
	}
	if err := keys.SaveEncrypted(path, keypair, passphrase); err != nil {
		return err
	}

	fmt.Printf("key file:   %s\n", path)
	fmt.Printf("public key: %s\n", keypair.PublicHex())
	return nil
}

func showPublicKey(path, passphraseFile string) error {
	passphrase, err := resolvePassphrase(passphraseFile, false)
	if err != nil {
		return err
	}
	keypair, err := keys.LoadEncrypted(path, passphrase)
	if err != nil {
		return err
	}
	fmt.Println(keypair.PublicHex())
	return nil
}
