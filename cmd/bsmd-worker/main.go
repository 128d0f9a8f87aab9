// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// bsmd-worker runs a compute node. It loads its private observations
// from CSV, listens for compute triggers from its coordinator, and
// publishes partial costs back through the ledger. The observations
// never leave the process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bsmd-foundation/bsmd/choice"
	"github.com/bsmd-foundation/bsmd/detail"
	"github.com/bsmd-foundation/bsmd/lib/config"
	"github.com/bsmd-foundation/bsmd/lib/identity"
	"github.com/bsmd-foundation/bsmd/ledger"
	"github.com/bsmd-foundation/bsmd/trigger"
	"github.com/bsmd-foundation/bsmd/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("bsmd-worker", pflag.ContinueOnError)
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
	if err := cfg.ValidateLedger(); err != nil {
		return err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	signer, err := identity.Load(cfg.Identity)
	if err != nil {
		return err
	}
	client, err := ledger.NewClient(ledger.ClientConfig{
		NodeURL:    cfg.Ledger.URL,
		Signer:     signer,
		HTTPClient: &http.Client{Timeout: config.Duration(cfg.Ledger.Timeout)},
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	observations, err := choice.LoadCSV(cfg.Worker.Observations)
	if err != nil {
		return err
	}
	logger.Info("observations loaded",
		"path", cfg.Worker.Observations, "count", len(observations))

	runtime, err := worker.New(worker.Config{
		Channel:     detail.NewChannel(client, nil, logger),
		Coordinator: cfg.Worker.Coordinator,
		Cost:        choice.Model(observations),
		Poll: detail.PollConfig{
			Interval: config.Duration(cfg.Worker.PollInterval),
			Attempts: cfg.Worker.PollAttempts,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	server := trigger.NewServer(cfg.Worker.Listen, logger)
	runtime.Register(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = server.Serve(ctx)
	// Let in-flight evaluations publish their costs before exiting.
	runtime.Wait()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
