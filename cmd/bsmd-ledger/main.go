// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// bsmd-ledger runs a ledger node: the permissioned append-only store
// every other BSMD component talks to. It serves signed transactions
// and queries over HTTP, backed by SQLite, and seeds its genesis
// domains and accounts from configuration on first start.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bsmd-foundation/bsmd/lib/config"
	"github.com/bsmd-foundation/bsmd/lib/keys"
	"github.com/bsmd-foundation/bsmd/ledger/node"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("bsmd-ledger", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (overrides BSMD_CONFIG)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateNode(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	genesis := make([]node.GenesisAccount, len(cfg.Node.Genesis.Accounts))
	for i, account := range cfg.Node.Genesis.Accounts {
		publicKey, err := keys.ParsePublicKey(account.PublicKey)
		if err != nil {
			return fmt.Errorf("genesis account %s: %w", account.Account, err)
		}
		genesis[i] = node.GenesisAccount{Account: account.Account, PublicKey: publicKey}
	}

	engine, err := node.Open(node.EngineConfig{
		Database:        cfg.Node.Database,
		Logger:          logger,
		GenesisDomains:  cfg.Node.Genesis.Domains,
		GenesisAccounts: genesis,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	server, err := node.NewServer(node.ServerConfig{
		Listen: cfg.Node.Listen,
		Engine: engine,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	server.Start()
	logger.Info("ledger node running", "listen", server.Addr(), "database", cfg.Node.Database)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
