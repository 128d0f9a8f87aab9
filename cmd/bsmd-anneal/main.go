// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// bsmd-anneal runs the annealing coordinator. It grants its workers
// write access, fans proposals out through the ledger, triggers the
// workers, and anneals the shared parameter vector until the
// temperature schedule ends.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bsmd-foundation/bsmd/anneal"
	"github.com/bsmd-foundation/bsmd/choice"
	"github.com/bsmd-foundation/bsmd/detail"
	"github.com/bsmd-foundation/bsmd/lib/config"
	"github.com/bsmd-foundation/bsmd/lib/identity"
	"github.com/bsmd-foundation/bsmd/ledger"
	"github.com/bsmd-foundation/bsmd/permission"
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

	flagSet := pflag.NewFlagSet("bsmd-anneal", pflag.ContinueOnError)
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
	if err := cfg.ValidateAnneal(); err != nil {
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

	workers := make([]anneal.Worker, len(cfg.Anneal.Workers))
	for i, w := range cfg.Anneal.Workers {
		workers[i] = anneal.Worker{
			Account: w.Account,
			Trigger: trigger.NewClient(w.Trigger),
		}
	}

	controllerConfig := anneal.Config{
		Channel:                  detail.NewChannel(client, nil, logger),
		Permissions:              permission.NewRegistry(client, logger),
		Workers:                  workers,
		InitialBetas:             initialBetas(cfg.Anneal.Dimensions),
		InitialTemperature:       cfg.Anneal.InitialTemperature,
		MinimumTemperature:       cfg.Anneal.MinimumTemperature,
		CoolingRate:              cfg.Anneal.CoolingRate,
		IterationsPerTemperature: cfg.Anneal.IterationsPerTemperature,
		CollectTimeout:           config.Duration(cfg.Anneal.CollectTimeout),
		PollInterval:             config.Duration(cfg.Anneal.PollInterval),
		Logger:                   logger,
	}
	if cfg.Anneal.Seed != 0 {
		seed := uint64(cfg.Anneal.Seed)
		controllerConfig.Rand = rand.New(rand.NewPCG(seed, seed))
	}
	if cfg.Anneal.TrajectoryFile != "" {
		trajectory, err := anneal.NewTrajectoryWriter(cfg.Anneal.TrajectoryFile)
		if err != nil {
			return err
		}
		defer trajectory.Close()
		controllerConfig.Trajectory = trajectory
	}

	controller, err := anneal.New(controllerConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := controller.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("rounds:      %d (%d incomplete)\n", result.Rounds, result.IncompleteRounds)
	fmt.Printf("accepted:    %d\n", len(result.History))
	fmt.Printf("initial:     %g\n", result.InitialCost)
	fmt.Printf("final:       %g\n", result.Cost)
	fmt.Printf("parameters:  %s\n", worker.EncodeParams(result.Betas))
	return nil
}

// initialBetas returns the conventional starting vector when the
// configured dimensionality matches the mode choice model, and a zero
// vector otherwise.
func initialBetas(dimensions int) []float64 {
	if dimensions == choice.Dimensions {
		return anneal.DefaultBetas
	}
	return make([]float64, dimensions)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
