// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"crypto/ed25519"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bsmd-foundation/bsmd/lib/ref"
)

// Row-level state helpers. All of them run inside the caller's
// savepoint; none of them open transactions of their own.

func domainExists(conn *sqlite.Conn, name string) (bool, error) {
	found := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM domains WHERE name = ?", &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("node: checking domain %q: %w", name, err)
	}
	return found, nil
}

func insertDomain(conn *sqlite.Conn, name string) error {
	err := sqlitex.Execute(conn, "INSERT INTO domains (name) VALUES (?)", &sqlitex.ExecOptions{
		Args: []any{name},
	})
	if err != nil {
		return fmt.Errorf("node: inserting domain %q: %w", name, err)
	}
	return nil
}

// accountKey returns the registered public key for an account, or
// found=false if the account does not exist.
func accountKey(conn *sqlite.Conn, account ref.Account) (ed25519.PublicKey, bool, error) {
	var key []byte
	found := false
	err := sqlitex.Execute(conn, "SELECT public_key FROM accounts WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{account.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			key = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, key)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("node: looking up account %s: %w", account, err)
	}
	return ed25519.PublicKey(key), found, nil
}

func insertAccount(conn *sqlite.Conn, account ref.Account, publicKey []byte) error {
	err := sqlitex.Execute(conn, "INSERT INTO accounts (id, domain, public_key) VALUES (?, ?, ?)", &sqlitex.ExecOptions{
		Args: []any{account.String(), account.Domain(), publicKey},
	})
	if err != nil {
		return fmt.Errorf("node: inserting account %s: %w", account, err)
	}
	return nil
}

func assetExists(conn *sqlite.Conn, asset ref.Asset) (bool, error) {
	found := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM assets WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{asset.String()},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("node: checking asset %s: %w", asset, err)
	}
	return found, nil
}

func insertAsset(conn *sqlite.Conn, asset ref.Asset) error {
	err := sqlitex.Execute(conn, "INSERT INTO assets (id, domain) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{asset.String(), asset.Domain()},
	})
	if err != nil {
		return fmt.Errorf("node: inserting asset %s: %w", asset, err)
	}
	return nil
}

func balance(conn *sqlite.Conn, account ref.Account, asset ref.Asset) (uint64, error) {
	var amount uint64
	err := sqlitex.Execute(conn, "SELECT amount FROM balances WHERE account = ? AND asset = ?", &sqlitex.ExecOptions{
		Args: []any{account.String(), asset.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			amount = uint64(stmt.ColumnInt64(0))
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("node: reading balance of %s for %s: %w", asset, account, err)
	}
	return amount, nil
}

func creditBalance(conn *sqlite.Conn, account ref.Account, asset ref.Asset, amount uint64) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO balances (account, asset, amount) VALUES (?, ?, ?)
		ON CONFLICT (account, asset) DO UPDATE SET amount = amount + excluded.amount`,
		&sqlitex.ExecOptions{
			Args: []any{account.String(), asset.String(), int64(amount)},
		})
	if err != nil {
		return fmt.Errorf("node: crediting %d %s to %s: %w", amount, asset, account, err)
	}
	return nil
}

func debitBalance(conn *sqlite.Conn, account ref.Account, asset ref.Asset, amount uint64) error {
	err := sqlitex.Execute(conn, "UPDATE balances SET amount = amount - ? WHERE account = ? AND asset = ?", &sqlitex.ExecOptions{
		Args: []any{int64(amount), account.String(), asset.String()},
	})
	if err != nil {
		return fmt.Errorf("node: debiting %d %s from %s: %w", amount, asset, account, err)
	}
	return nil
}

func selectBalances(conn *sqlite.Conn, account ref.Account) (map[string]uint64, error) {
	balances := make(map[string]uint64)
	err := sqlitex.Execute(conn, "SELECT asset, amount FROM balances WHERE account = ?", &sqlitex.ExecOptions{
		Args: []any{account.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			balances[stmt.ColumnText(0)] = uint64(stmt.ColumnInt64(1))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("node: reading balances of %s: %w", account, err)
	}
	return balances, nil
}

func grantExists(conn *sqlite.Conn, grantor, grantee ref.Account, permission string) (bool, error) {
	found := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM grants WHERE grantor = ? AND grantee = ? AND permission = ?", &sqlitex.ExecOptions{
		Args: []any{grantor.String(), grantee.String(), permission},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("node: checking grant %s->%s: %w", grantor, grantee, err)
	}
	return found, nil
}

// insertGrant is idempotent: granting an already-held permission is a
// no-op.
func insertGrant(conn *sqlite.Conn, grantor, grantee ref.Account, permission string) error {
	err := sqlitex.Execute(conn, "INSERT OR IGNORE INTO grants (grantor, grantee, permission) VALUES (?, ?, ?)", &sqlitex.ExecOptions{
		Args: []any{grantor.String(), grantee.String(), permission},
	})
	if err != nil {
		return fmt.Errorf("node: inserting grant %s->%s: %w", grantor, grantee, err)
	}
	return nil
}

// deleteGrant is idempotent: revoking an absent permission is a no-op.
func deleteGrant(conn *sqlite.Conn, grantor, grantee ref.Account, permission string) error {
	err := sqlitex.Execute(conn, "DELETE FROM grants WHERE grantor = ? AND grantee = ? AND permission = ?", &sqlitex.ExecOptions{
		Args: []any{grantor.String(), grantee.String(), permission},
	})
	if err != nil {
		return fmt.Errorf("node: deleting grant %s->%s: %w", grantor, grantee, err)
	}
	return nil
}

// upsertDetail writes a detail, replacing any previous value for the
// same (account, writer, key).
func upsertDetail(conn *sqlite.Conn, account, writer ref.Account, key, value string, now int64) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO details (account, writer, key, value, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account, writer, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{account.String(), writer.String(), key, value, now},
		})
	if err != nil {
		return fmt.Errorf("node: writing detail %s on %s: %w", key, account, err)
	}
	return nil
}

// selectDetails reads details on an account, optionally narrowed by
// writer and key. Result maps writer id to key to value.
func selectDetails(conn *sqlite.Conn, account ref.Account, writer ref.Account, key string) (map[string]map[string]string, error) {
	query := "SELECT writer, key, value FROM details WHERE account = ?"
	args := []any{account.String()}
	if !writer.IsZero() {
		query += " AND writer = ?"
		args = append(args, writer.String())
	}
	if key != "" {
		query += " AND key = ?"
		args = append(args, key)
	}

	details := make(map[string]map[string]string)
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			writerID := stmt.ColumnText(0)
			if details[writerID] == nil {
				details[writerID] = make(map[string]string)
			}
			details[writerID][stmt.ColumnText(1)] = stmt.ColumnText(2)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("node: reading details of %s: %w", account, err)
	}
	return details, nil
}

func transactionApplied(conn *sqlite.Conn, hash string) (bool, error) {
	found := false
	err := sqlitex.Execute(conn, "SELECT 1 FROM applied_transactions WHERE hash = ?", &sqlitex.ExecOptions{
		Args: []any{hash},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("node: checking transaction %s: %w", hash, err)
	}
	return found, nil
}

func recordTransaction(conn *sqlite.Conn, hash string, creator ref.Account, now int64) error {
	err := sqlitex.Execute(conn, "INSERT INTO applied_transactions (hash, creator, applied_at) VALUES (?, ?, ?)", &sqlitex.ExecOptions{
		Args: []any{hash, creator.String(), now},
	})
	if err != nil {
		return fmt.Errorf("node: recording transaction %s: %w", hash, err)
	}
	return nil
}
