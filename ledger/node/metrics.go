// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bsmd-foundation/bsmd/ledger"
)

var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bsmd_ledger_transactions_total",
		Help: "Transactions processed, labeled by result code or ok.",
	}, []string{"result"})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bsmd_ledger_commands_total",
		Help: "Commands applied, labeled by command type.",
	}, []string{"type"})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bsmd_ledger_queries_total",
		Help: "Queries served, labeled by result code or ok.",
	}, []string{"result"})
)

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var ledgerErr *ledger.LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Code
	}
	return ledger.ErrCodeInternal
}

func observeTransaction(err error) {
	transactionsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func observeQuery(err error) {
	queriesTotal.WithLabelValues(resultLabel(err)).Inc()
}

func observeCommand(command ledger.Command) {
	switch {
	case command.CreateDomain != nil:
		commandsTotal.WithLabelValues("create_domain").Inc()
	case command.CreateAccount != nil:
		commandsTotal.WithLabelValues("create_account").Inc()
	case command.CreateAsset != nil:
		commandsTotal.WithLabelValues("create_asset").Inc()
	case command.AddAssetQuantity != nil:
		commandsTotal.WithLabelValues("add_asset_quantity").Inc()
	case command.TransferAsset != nil:
		commandsTotal.WithLabelValues("transfer_asset").Inc()
	case command.SetAccountDetail != nil:
		commandsTotal.WithLabelValues("set_account_detail").Inc()
	case command.GrantPermission != nil:
		commandsTotal.WithLabelValues("grant_permission").Inc()
	case command.RevokePermission != nil:
		commandsTotal.WithLabelValues("revoke_permission").Inc()
	}
}
