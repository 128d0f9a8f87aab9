// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission manages the CanSetMyDetail grants an account
// hands out. Grant and revoke are idempotent on the ledger; the
// registry additionally keeps an optimistic local view so repeated
// grants to the same peer skip the network entirely. The view is
// advisory only: any failure drops the cached entry, and the ledger
// remains the source of truth.
package permission

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/ledger"
)

// Registry manages grants from the client's account to its peers.
// Safe for concurrent use.
type Registry struct {
	client *ledger.Client
	logger *slog.Logger

	mu      sync.Mutex
	granted map[ref.Account]bool
}

// NewRegistry wraps a ledger client.
func NewRegistry(client *ledger.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		client:  client,
		logger:  logger,
		granted: make(map[ref.Account]bool),
	}
}

// Grant lets grantee write details into this account. Submits at most
// one transaction per grantee while the grant is believed to hold.
func (r *Registry) Grant(ctx context.Context, grantee ref.Account) error {
	r.mu.Lock()
	alreadyGranted := r.granted[grantee]
	r.mu.Unlock()
	if alreadyGranted {
		return nil
	}

	if err := r.client.GrantPermission(ctx, grantee, ledger.CanSetMyDetail); err != nil {
		r.forget(grantee)
		return err
	}
	r.logger.Info("write permission granted", "grantor", r.client.Account(), "grantee", grantee)

	r.mu.Lock()
	r.granted[grantee] = true
	r.mu.Unlock()
	return nil
}

// GrantAll grants every listed peer, stopping at the first failure.
func (r *Registry) GrantAll(ctx context.Context, grantees ...ref.Account) error {
	for _, grantee := range grantees {
		if err := r.Grant(ctx, grantee); err != nil {
			return err
		}
	}
	return nil
}

// Revoke withdraws grantee's write access. Always submits: revocation
// must reach the ledger even if the local view never saw the grant.
func (r *Registry) Revoke(ctx context.Context, grantee ref.Account) error {
	// Drop the cached entry first so a failed revoke cannot leave a
	// stale "granted" belief alongside an unknown ledger state.
	r.forget(grantee)

	if err := r.client.RevokePermission(ctx, grantee, ledger.CanSetMyDetail); err != nil {
		return err
	}
	r.logger.Info("write permission revoked", "grantor", r.client.Account(), "grantee", grantee)
	return nil
}

// Granted reports the optimistic local view. A false result means
// "not known to be granted", not "known to be revoked".
func (r *Registry) Granted(grantee ref.Account) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.granted[grantee]
}

func (r *Registry) forget(grantee ref.Account) {
	r.mu.Lock()
	delete(r.granted, grantee)
	r.mu.Unlock()
}
