// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated references to ledger objects.
//
// An Account is "name@domain", an Asset is "name#domain". The pair
// (name, domain) is the globally unique account reference; every
// ledger command and query addresses accounts through these types, so
// an invalid identifier is rejected at construction instead of
// surfacing as a ledger-side rejection three layers later.
//
// All types are comparable values, implement fmt.Stringer, and
// marshal as their canonical text form so they embed directly in
// CBOR, JSON, and YAML structures.
package ref
