// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// SaveEncrypted writes the keypair's private key seed to path,
// age-encrypted with a scrypt passphrase. The file is created with
// mode 0600. The plaintext inside the age envelope is the hex seed
// followed by a newline.
func SaveEncrypted(path string, keypair *Keypair, passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("refusing to write key file with empty passphrase")
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	seedHex := hex.EncodeToString(keypair.Private.Seed())
	if _, err := io.WriteString(writer, seedHex+"\n"); err != nil {
		return fmt.Errorf("writing key material: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}

	if err := os.WriteFile(path, ciphertext.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing key file %s: %w", path, err)
	}
	return nil
}

// LoadEncrypted reads an age-encrypted key file written by
// SaveEncrypted and reconstructs the keypair.
func LoadEncrypted(path, passphrase string) (*Keypair, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting key file %s: %w", path, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key material: %w", err)
	}

	private, err := ParsePrivateKey(strings.TrimSpace(string(plaintext)))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return &Keypair{
		Public:  private.Public().(ed25519.PublicKey),
		Private: private,
	}, nil
}
