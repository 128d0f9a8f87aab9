// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package node

// schema is applied to every pool connection. All statements are
// idempotent so reconnects and restarts are safe.
const schema = `
CREATE TABLE IF NOT EXISTS domains (
	name TEXT PRIMARY KEY
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL REFERENCES domains(name),
	public_key BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS assets (
	id     TEXT PRIMARY KEY,
	domain TEXT NOT NULL REFERENCES domains(name)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS balances (
	account TEXT NOT NULL REFERENCES accounts(id),
	asset   TEXT NOT NULL REFERENCES assets(id),
	amount  INTEGER NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (account, asset)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS grants (
	grantor    TEXT NOT NULL REFERENCES accounts(id),
	grantee    TEXT NOT NULL REFERENCES accounts(id),
	permission TEXT NOT NULL,
	PRIMARY KEY (grantor, grantee, permission)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS details (
	account    TEXT NOT NULL REFERENCES accounts(id),
	writer     TEXT NOT NULL REFERENCES accounts(id),
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (account, writer, key)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS applied_transactions (
	hash       TEXT PRIMARY KEY,
	creator    TEXT NOT NULL,
	applied_at INTEGER NOT NULL
) WITHOUT ROWID;
`
