// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package node implements the single-process ledger node.
//
// The node keeps the whole world state in SQLite: domains, accounts
// with their registered Ed25519 keys, asset balances, the permission
// grant table, the detail store, and the set of applied transaction
// hashes. A transaction's commands apply atomically inside one
// savepoint; a rejected command rolls the whole transaction back.
//
// Engine is the state machine; Server wraps it in the HTTP API the
// ledger.Client speaks (POST /v1/transaction, POST /v1/query), plus
// /healthz and Prometheus /metrics.
package node
