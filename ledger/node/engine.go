// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"zombiezen.com/go/sqlite"

	"github.com/bsmd-foundation/bsmd/lib/clock"
	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/lib/sqlitepool"
	"github.com/bsmd-foundation/bsmd/ledger"
)

// GenesisAccount seeds one account into an empty ledger.
type GenesisAccount struct {
	Account   ref.Account
	PublicKey ed25519.PublicKey
}

// EngineConfig holds the parameters for opening an Engine.
type EngineConfig struct {
	// Database is the SQLite file path. ":memory:" works for tests
	// with PoolSize 1.
	Database string

	// PoolSize is passed through to the connection pool.
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger

	// Clock stamps applied transactions. If nil, the real clock is
	// used.
	Clock clock.Clock

	// GenesisDomains and GenesisAccounts seed an empty ledger.
	// Seeding is idempotent; existing rows are left untouched.
	GenesisDomains  []string
	GenesisAccounts []GenesisAccount
}

// Engine is the ledger state machine. It is safe for concurrent use;
// SQLite serializes writes underneath.
type Engine struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens the database, applies the schema, and seeds genesis
// state. The caller must Close the engine when done.
func Open(cfg EngineConfig) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Database,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		Schema:   schema,
	})
	if err != nil {
		return nil, fmt.Errorf("node: opening database: %w", err)
	}

	engine := &Engine{pool: pool, clock: clk, logger: logger}
	if err := engine.seedGenesis(cfg.GenesisDomains, cfg.GenesisAccounts); err != nil {
		pool.Close()
		return nil, err
	}
	return engine, nil
}

// Close closes the underlying connection pool.
func (e *Engine) Close() error {
	return e.pool.Close()
}

func (e *Engine) seedGenesis(domains []string, accounts []GenesisAccount) error {
	// Collect the domains referenced by genesis accounts so the
	// config does not have to repeat them.
	wanted := make(map[string]bool)
	for _, domain := range domains {
		wanted[domain] = true
	}
	for _, account := range accounts {
		wanted[account.Account.Domain()] = true
	}
	if len(wanted) == 0 && len(accounts) == 0 {
		return nil
	}

	return e.pool.WithTx(context.Background(), func(conn *sqlite.Conn) error {
		for domain := range wanted {
			exists, err := domainExists(conn, domain)
			if err != nil {
				return err
			}
			if !exists {
				if err := insertDomain(conn, domain); err != nil {
					return err
				}
				e.logger.Info("genesis domain created", "domain", domain)
			}
		}
		for _, account := range accounts {
			if len(account.PublicKey) != ed25519.PublicKeySize {
				return fmt.Errorf("node: genesis account %s has invalid public key", account.Account)
			}
			_, exists, err := accountKey(conn, account.Account)
			if err != nil {
				return err
			}
			if !exists {
				if err := insertAccount(conn, account.Account, account.PublicKey); err != nil {
					return err
				}
				e.logger.Info("genesis account created", "account", account.Account)
			}
		}
		return nil
	})
}

// reject builds the structured error the HTTP layer serializes.
func reject(code string, statusCode int, format string, args ...any) *ledger.LedgerError {
	return &ledger.LedgerError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// ApplyTransaction verifies and applies one signed transaction. All
// commands apply atomically: the first rejection rolls back every
// prior command's effect.
func (e *Engine) ApplyTransaction(ctx context.Context, tx *ledger.Transaction) (result *ledger.TransactionResult, err error) {
	defer func() { observeTransaction(err) }()

	// Oversized detail values get their dedicated code before the
	// generic structural validation.
	for _, command := range tx.Payload.Commands {
		if command.SetAccountDetail != nil && len(command.SetAccountDetail.Value) > ledger.MaxDetailValueLength {
			return nil, reject(ledger.ErrCodeValueTooLarge, http.StatusRequestEntityTooLarge,
				"detail value is %d bytes, limit %d", len(command.SetAccountDetail.Value), ledger.MaxDetailValueLength)
		}
	}
	if validateErr := tx.Payload.Validate(); validateErr != nil {
		return nil, reject(ledger.ErrCodeTxRejected, http.StatusBadRequest, "%v", validateErr)
	}

	hash, err := ledger.TransactionHash(tx)
	if err != nil {
		return nil, reject(ledger.ErrCodeInternal, http.StatusInternalServerError, "hashing transaction: %v", err)
	}

	now := e.clock.Now().UnixMilli()
	err = e.pool.WithTx(ctx, func(conn *sqlite.Conn) error {
		registered, exists, err := accountKey(conn, tx.Payload.Creator)
		if err != nil {
			return err
		}
		if !exists {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "creator account %s does not exist", tx.Payload.Creator)
		}
		if err := ledger.VerifySignature(registered, &tx.Payload, tx.Signature); err != nil {
			return reject(ledger.ErrCodeBadSignature, http.StatusUnauthorized, "%v", err)
		}

		applied, err := transactionApplied(conn, hash)
		if err != nil {
			return err
		}
		if applied {
			return reject(ledger.ErrCodeStaleTransaction, http.StatusConflict, "transaction %s was already applied", hash)
		}

		for i, command := range tx.Payload.Commands {
			if err := e.applyCommand(conn, tx.Payload.Creator, command, now); err != nil {
				var ledgerErr *ledger.LedgerError
				if errors.As(err, &ledgerErr) {
					ledgerErr.Message = fmt.Sprintf("command %d: %s", i, ledgerErr.Message)
					return ledgerErr
				}
				return err
			}
			observeCommand(command)
		}

		return recordTransaction(conn, hash, tx.Payload.Creator, now)
	})
	if err != nil {
		var ledgerErr *ledger.LedgerError
		if errors.As(err, &ledgerErr) {
			return nil, ledgerErr
		}
		e.logger.Error("transaction apply failed", "creator", tx.Payload.Creator, "error", err)
		return nil, reject(ledger.ErrCodeInternal, http.StatusInternalServerError, "internal error")
	}

	e.logger.Debug("transaction applied",
		"creator", tx.Payload.Creator,
		"commands", len(tx.Payload.Commands),
		"hash", hash,
	)
	return &ledger.TransactionResult{Hash: hash}, nil
}

func (e *Engine) applyCommand(conn *sqlite.Conn, creator ref.Account, command ledger.Command, now int64) error {
	switch {
	case command.CreateDomain != nil:
		cmd := command.CreateDomain
		exists, err := domainExists(conn, cmd.Domain)
		if err != nil {
			return err
		}
		if exists {
			return reject(ledger.ErrCodeDomainExists, http.StatusConflict, "domain %q already exists", cmd.Domain)
		}
		return insertDomain(conn, cmd.Domain)

	case command.CreateAccount != nil:
		cmd := command.CreateAccount
		domainOK, err := domainExists(conn, cmd.Account.Domain())
		if err != nil {
			return err
		}
		if !domainOK {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "domain %q does not exist", cmd.Account.Domain())
		}
		_, exists, err := accountKey(conn, cmd.Account)
		if err != nil {
			return err
		}
		if exists {
			return reject(ledger.ErrCodeAccountExists, http.StatusConflict, "account %s already exists", cmd.Account)
		}
		return insertAccount(conn, cmd.Account, cmd.PublicKey)

	case command.CreateAsset != nil:
		cmd := command.CreateAsset
		domainOK, err := domainExists(conn, cmd.Asset.Domain())
		if err != nil {
			return err
		}
		if !domainOK {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "domain %q does not exist", cmd.Asset.Domain())
		}
		exists, err := assetExists(conn, cmd.Asset)
		if err != nil {
			return err
		}
		if exists {
			return reject(ledger.ErrCodeAssetExists, http.StatusConflict, "asset %s already exists", cmd.Asset)
		}
		return insertAsset(conn, cmd.Asset)

	case command.AddAssetQuantity != nil:
		cmd := command.AddAssetQuantity
		exists, err := assetExists(conn, cmd.Asset)
		if err != nil {
			return err
		}
		if !exists {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "asset %s does not exist", cmd.Asset)
		}
		return creditBalance(conn, creator, cmd.Asset, cmd.Amount)

	case command.TransferAsset != nil:
		cmd := command.TransferAsset
		exists, err := assetExists(conn, cmd.Asset)
		if err != nil {
			return err
		}
		if !exists {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "asset %s does not exist", cmd.Asset)
		}
		_, destExists, err := accountKey(conn, cmd.Destination)
		if err != nil {
			return err
		}
		if !destExists {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "destination account %s does not exist", cmd.Destination)
		}
		if cmd.Destination.Domain() != cmd.Asset.Domain() {
			return reject(ledger.ErrCodeTxRejected, http.StatusBadRequest,
				"asset %s cannot move to account %s outside its domain", cmd.Asset, cmd.Destination)
		}
		held, err := balance(conn, creator, cmd.Asset)
		if err != nil {
			return err
		}
		if held < cmd.Amount {
			return reject(ledger.ErrCodeInsufficientBalance, http.StatusConflict,
				"%s holds %d of %s, transfer needs %d", creator, held, cmd.Asset, cmd.Amount)
		}
		if err := debitBalance(conn, creator, cmd.Asset, cmd.Amount); err != nil {
			return err
		}
		return creditBalance(conn, cmd.Destination, cmd.Asset, cmd.Amount)

	case command.SetAccountDetail != nil:
		cmd := command.SetAccountDetail
		_, exists, err := accountKey(conn, cmd.Account)
		if err != nil {
			return err
		}
		if !exists {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "account %s does not exist", cmd.Account)
		}
		if cmd.Account != creator {
			granted, err := grantExists(conn, cmd.Account, creator, string(ledger.CanSetMyDetail))
			if err != nil {
				return err
			}
			if !granted {
				return reject(ledger.ErrCodePermissionDenied, http.StatusForbidden,
					"%s may not set details on %s", creator, cmd.Account)
			}
		}
		return upsertDetail(conn, cmd.Account, creator, cmd.Key, cmd.Value, now)

	case command.GrantPermission != nil:
		cmd := command.GrantPermission
		_, exists, err := accountKey(conn, cmd.Grantee)
		if err != nil {
			return err
		}
		if !exists {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "grantee account %s does not exist", cmd.Grantee)
		}
		return insertGrant(conn, creator, cmd.Grantee, string(cmd.Permission))

	case command.RevokePermission != nil:
		cmd := command.RevokePermission
		_, exists, err := accountKey(conn, cmd.Grantee)
		if err != nil {
			return err
		}
		if !exists {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "grantee account %s does not exist", cmd.Grantee)
		}
		return deleteGrant(conn, creator, cmd.Grantee, string(cmd.Permission))
	}

	return reject(ledger.ErrCodeTxRejected, http.StatusBadRequest, "empty command")
}

// ServeQuery verifies a signed query and returns the result payload:
// *ledger.AccountDetailResult or *ledger.AccountAssetsResult.
func (e *Engine) ServeQuery(ctx context.Context, query *ledger.Query) (result any, err error) {
	defer func() { observeQuery(err) }()

	if validateErr := query.Payload.Validate(); validateErr != nil {
		return nil, reject(ledger.ErrCodeQueryDenied, http.StatusBadRequest, "%v", validateErr)
	}

	err = e.pool.WithTx(ctx, func(conn *sqlite.Conn) error {
		registered, exists, err := accountKey(conn, query.Payload.Creator)
		if err != nil {
			return err
		}
		if !exists {
			return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "creator account %s does not exist", query.Payload.Creator)
		}
		if err := ledger.VerifySignature(registered, &query.Payload, query.Signature); err != nil {
			return reject(ledger.ErrCodeBadSignature, http.StatusUnauthorized, "%v", err)
		}

		switch {
		case query.Payload.GetAccountDetail != nil:
			request := query.Payload.GetAccountDetail
			_, targetExists, err := accountKey(conn, request.Account)
			if err != nil {
				return err
			}
			if !targetExists {
				return reject(ledger.ErrCodeNotFound, http.StatusNotFound, "account %s does not exist", request.Account)
			}
			if err := e.checkDetailVisibility(conn, query.Payload.Creator, request.Account); err != nil {
				return err
			}
			details, err := selectDetails(conn, request.Account, request.Writer, request.Key)
			if err != nil {
				return err
			}
			result = &ledger.AccountDetailResult{Details: details}
			return nil

		case query.Payload.GetAccountAssets != nil:
			request := query.Payload.GetAccountAssets
			if request.Account != query.Payload.Creator {
				return reject(ledger.ErrCodeQueryDenied, http.StatusForbidden,
					"%s may not read balances of %s", query.Payload.Creator, request.Account)
			}
			balances, err := selectBalances(conn, request.Account)
			if err != nil {
				return err
			}
			result = &ledger.AccountAssetsResult{Balances: balances}
			return nil
		}
		return reject(ledger.ErrCodeQueryDenied, http.StatusBadRequest, "empty query")
	})
	if err != nil {
		var ledgerErr *ledger.LedgerError
		if errors.As(err, &ledgerErr) {
			return nil, ledgerErr
		}
		e.logger.Error("query failed", "creator", query.Payload.Creator, "error", err)
		return nil, reject(ledger.ErrCodeInternal, http.StatusInternalServerError, "internal error")
	}
	return result, nil
}

// checkDetailVisibility allows an account to read its own details,
// and lets a writer read back from accounts that granted it
// CanSetMyDetail. Anyone else is denied.
func (e *Engine) checkDetailVisibility(conn *sqlite.Conn, creator, target ref.Account) error {
	if creator == target {
		return nil
	}
	granted, err := grantExists(conn, target, creator, string(ledger.CanSetMyDetail))
	if err != nil {
		return err
	}
	if !granted {
		return reject(ledger.ErrCodeQueryDenied, http.StatusForbidden,
			"%s may not read details of %s", creator, target)
	}
	return nil
}
