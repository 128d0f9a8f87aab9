// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger defines the wire protocol for the BSMD ledger and
// the client used to speak it.
//
// The ledger is a permissioned append-only store. Every mutation is a
// Transaction: a list of Commands signed by the creator account's
// Ed25519 key. Every read is a Query, also signed, so the node can
// enforce visibility rules. Payloads are deterministic CBOR; the
// signature covers the SHA3-256 hash of the encoded payload, so both
// sides must agree byte for byte on the encoding (see lib/codec).
//
// Client wraps the node's HTTP API. Transport and node-side failures
// surface as *LedgerError with a stable machine-readable code;
// callers branch with IsLedgerError rather than string matching.
package ledger
