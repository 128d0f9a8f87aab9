// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package detail is the data exchange layer between nodes. A node
// publishes key/value facts into an account it may write to; the
// account's owner reads them back, filtered by writer and key. No
// node ever sees another node's raw data, only the facts the peer
// chose to publish.
//
// The ledger is eventually visible from a reader's perspective, so
// Poll wraps Read in a bounded retry loop: a fixed number of attempts
// with a fixed interval, then a typed exhaustion error. Unbounded
// waiting is never an option; a silent peer must surface as an error
// the caller can act on.
package detail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsmd-foundation/bsmd/lib/clock"
	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/ledger"
)

// ErrValueTooLarge is returned before signing when a value exceeds
// the ledger's detail limit. Failing locally keeps a doomed
// transaction off the wire.
var ErrValueTooLarge = errors.New("detail: value exceeds ledger limit")

// ErrExhausted is wrapped by Poll when the retry budget runs out
// before the awaited value becomes visible.
var ErrExhausted = errors.New("detail: poll attempts exhausted")

// Filter narrows a Read to one writer, one key, or both. The zero
// Filter matches everything on the account.
type Filter struct {
	Writer ref.Account // Zero means all writers.
	Key    string      // Empty means all keys.
}

// Channel publishes and reads details through a ledger client.
type Channel struct {
	client *ledger.Client
	clock  clock.Clock
	logger *slog.Logger
}

// NewChannel wraps a ledger client. Pass a nil clock for the real
// one.
func NewChannel(client *ledger.Client, clk clock.Clock, logger *slog.Logger) *Channel {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{client: client, clock: clk, logger: logger}
}

// Account returns the account this channel publishes and signs as.
func (c *Channel) Account() ref.Account {
	return c.client.Account()
}

// Publish writes a key/value fact into the channel owner's own
// account.
func (c *Channel) Publish(ctx context.Context, key, value string) error {
	return c.PublishTo(ctx, c.client.Account(), key, value)
}

// PublishTo writes a key/value fact into another account. The owner
// must have granted this node CanSetMyDetail, or the ledger rejects
// the write with PERMISSION_DENIED.
func (c *Channel) PublishTo(ctx context.Context, owner ref.Account, key, value string) error {
	if len(value) > ledger.MaxDetailValueLength {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrValueTooLarge, len(value), ledger.MaxDetailValueLength)
	}
	if err := c.client.SetAccountDetail(ctx, owner, key, value); err != nil {
		return err
	}
	c.logger.Debug("detail published", "owner", owner, "key", key, "bytes", len(value))
	return nil
}

// Read fetches details on an account. The result maps writer to key
// to value; a filter that matches nothing yields an empty map, not an
// error.
func (c *Channel) Read(ctx context.Context, owner ref.Account, filter Filter) (map[ref.Account]map[string]string, error) {
	return c.client.AccountDetail(ctx, ledger.GetAccountDetail{
		Account: owner,
		Writer:  filter.Writer,
		Key:     filter.Key,
	})
}

// PollConfig bounds a Poll loop.
type PollConfig struct {
	// Interval is the delay between attempts.
	Interval time.Duration
	// Attempts is the total read budget. Must be at least 1.
	Attempts int
}

// maxConsecutiveReadFailures is how many transient read failures in a
// row a Poll rides out before giving up.
const maxConsecutiveReadFailures = 5

// fatalReadError reports whether a poll read error cannot heal by
// waiting. Permission and signature failures are misconfigurations;
// retrying them would only hide the problem.
func fatalReadError(err error) bool {
	return ledger.IsLedgerError(err, ledger.ErrCodePermissionDenied) ||
		ledger.IsLedgerError(err, ledger.ErrCodeQueryDenied) ||
		ledger.IsLedgerError(err, ledger.ErrCodeBadSignature)
}

// Poll reads until accept returns true for the result, retrying up to
// cfg.Attempts times. Permission and signature failures abort
// immediately; NOT_FOUND means the data is not there yet and keeps
// polling; any other read error counts as transient and is tolerated
// up to maxConsecutiveReadFailures in a row. Returns the accepted
// result, or an error wrapping ErrExhausted when the budget runs out.
func (c *Channel) Poll(ctx context.Context, owner ref.Account, filter Filter, cfg PollConfig, accept func(map[ref.Account]map[string]string) bool) (map[ref.Account]map[string]string, error) {
	if cfg.Attempts < 1 {
		return nil, fmt.Errorf("detail: poll needs at least one attempt")
	}

	failures := 0
	for attempt := 1; ; attempt++ {
		result, err := c.Read(ctx, owner, filter)
		switch {
		case err == nil:
			failures = 0
			if accept(result) {
				return result, nil
			}
		case fatalReadError(err):
			return nil, fmt.Errorf("detail: poll read on %s: %w", owner, err)
		case ledger.IsLedgerError(err, ledger.ErrCodeNotFound):
			// The owner account may simply not exist yet.
			failures = 0
		default:
			failures++
			if failures > maxConsecutiveReadFailures {
				return nil, fmt.Errorf("detail: poll read on %s failed %d times in a row: %w", owner, failures, err)
			}
			c.logger.Warn("poll read failed, retrying",
				"owner", owner, "key", filter.Key, "failures", failures, "error", err)
		}
		if attempt >= cfg.Attempts {
			return nil, fmt.Errorf("%w: %s key %q after %d attempts", ErrExhausted, owner, filter.Key, cfg.Attempts)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(cfg.Interval):
		}
	}
}
