// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"
)

// LedgerError represents a structured error response from the ledger
// node. Callers can use errors.As to extract the structured
// information:
//
//	var ledgerErr *ledger.LedgerError
//	if errors.As(err, &ledgerErr) {
//	    if ledgerErr.Code == ledger.ErrCodeNotFound { ... }
//	}
type LedgerError struct {
	// Code is the stable machine-readable error code.
	Code string `cbor:"code"`
	// Message is the human-readable description from the node.
	Message string `cbor:"message"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `cbor:"-"`
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Error codes returned by the ledger node.
const (
	ErrCodeTxRejected          = "TX_REJECTED"
	ErrCodeQueryDenied         = "QUERY_DENIED"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAccountExists       = "ACCOUNT_EXISTS"
	ErrCodeDomainExists        = "DOMAIN_EXISTS"
	ErrCodeAssetExists         = "ASSET_EXISTS"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeValueTooLarge       = "VALUE_TOO_LARGE"
	ErrCodeBadSignature        = "BAD_SIGNATURE"
	ErrCodeStaleTransaction    = "STALE_TRANSACTION"
	ErrCodeInternal            = "INTERNAL"
)

// IsLedgerError checks whether err is a *LedgerError with the given
// error code.
func IsLedgerError(err error, code string) bool {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Code == code
	}
	return false
}
