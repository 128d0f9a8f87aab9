// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker runs the compute side of an annealing network. A
// worker holds a private cost function, listens for compute triggers
// from its coordinator, reads the proposed parameters off the ledger,
// and publishes its partial cost back into the coordinator's account.
//
// The trigger is fire-and-continue: the handler acknowledges
// immediately and the evaluation runs in the background. The
// coordinator never waits on the trigger call itself, only on the
// cost key appearing in its own account.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bsmd-foundation/bsmd/choice"
	"github.com/bsmd-foundation/bsmd/detail"
	"github.com/bsmd-foundation/bsmd/lib/codec"
	"github.com/bsmd-foundation/bsmd/lib/digest"
	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/trigger"
)

// ActionComputeCost is the trigger action a coordinator sends to start
// one evaluation round.
const ActionComputeCost = "compute_cost"

// ComputeCostRequest is the trigger payload for ActionComputeCost.
// The parameters themselves travel over the ledger, not the trigger:
// the request only says where to find them and where to put the
// result.
type ComputeCostRequest struct {
	// Round numbers the evaluation for logging.
	Round uint64 `cbor:"round"`
	// ParameterKey is the detail key in the worker's own account,
	// written by the coordinator, holding the encoded parameters.
	ParameterKey string `cbor:"parameter_key"`
	// ParameterDigest is the hex BLAKE3 digest of the expected
	// parameter value. The worker polls until the stored value hashes
	// to it, so a read that races a slow write never evaluates stale
	// parameters.
	ParameterDigest string `cbor:"parameter_digest"`
	// CostKey is the detail key in the coordinator's account to
	// publish the cost under.
	CostKey string `cbor:"cost_key"`
}

// ComputeCostAck is the immediate trigger response.
type ComputeCostAck struct {
	Round uint64 `cbor:"round"`
}

// Config assembles a worker runtime.
type Config struct {
	// Channel is the worker's own ledger channel.
	Channel *detail.Channel
	// Coordinator is the account that writes parameters and receives
	// costs.
	Coordinator ref.Account
	// Cost evaluates the worker's private objective.
	Cost choice.CostFunc
	// Poll bounds the wait for parameters to become visible.
	Poll detail.PollConfig
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Runtime handles compute triggers for one worker node.
type Runtime struct {
	channel     *detail.Channel
	coordinator ref.Account
	cost        choice.CostFunc
	poll        detail.PollConfig
	logger      *slog.Logger

	pending sync.WaitGroup
}

// New validates cfg and builds a runtime. Register it on a trigger
// server with Register.
func New(cfg Config) (*Runtime, error) {
	if cfg.Channel == nil {
		return nil, fmt.Errorf("worker: channel is required")
	}
	if cfg.Coordinator.IsZero() {
		return nil, fmt.Errorf("worker: coordinator account is required")
	}
	if cfg.Cost == nil {
		return nil, fmt.Errorf("worker: cost function is required")
	}
	if cfg.Poll.Attempts < 1 {
		return nil, fmt.Errorf("worker: poll needs at least one attempt")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		channel:     cfg.Channel,
		coordinator: cfg.Coordinator,
		cost:        cfg.Cost,
		poll:        cfg.Poll,
		logger:      logger,
	}, nil
}

// Register installs the runtime's actions on a trigger server.
func (r *Runtime) Register(server *trigger.Server) {
	server.Handle(ActionComputeCost, r.handleComputeCost)
}

// Wait blocks until all in-flight evaluations have finished. Call
// after the trigger server has stopped accepting.
func (r *Runtime) Wait() {
	r.pending.Wait()
}

// handleComputeCost validates the request, acknowledges it, and runs
// the evaluation in the background.
func (r *Runtime) handleComputeCost(ctx context.Context, raw []byte) (any, error) {
	var request ComputeCostRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.ParameterKey == "" {
		return nil, fmt.Errorf("missing required field: parameter_key")
	}
	if request.CostKey == "" {
		return nil, fmt.Errorf("missing required field: cost_key")
	}
	expected, err := digest.Parse(request.ParameterDigest)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter_digest: %w", err)
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.compute(ctx, request, expected)
	}()

	return ComputeCostAck{Round: request.Round}, nil
}

// compute is one full evaluation: wait for the parameters, evaluate,
// publish the cost. Failures are logged, not returned; the
// coordinator's collect timeout is the error path.
func (r *Runtime) compute(ctx context.Context, request ComputeCostRequest, expected digest.Digest) {
	logger := r.logger.With("round", request.Round)

	own := r.channel.Account()
	filter := detail.Filter{Writer: r.coordinator, Key: request.ParameterKey}
	result, err := r.channel.Poll(ctx, own, filter, r.poll,
		func(result map[ref.Account]map[string]string) bool {
			value, ok := result[r.coordinator][request.ParameterKey]
			return ok && digest.Payload(value) == expected
		})
	if err != nil {
		logger.Error("parameters never became visible", "key", request.ParameterKey, "error", err)
		return
	}
	value := result[r.coordinator][request.ParameterKey]

	betas, err := DecodeParams(value)
	if err != nil {
		logger.Error("unparseable parameters", "value", value, "error", err)
		return
	}

	cost, err := r.cost(betas)
	if err != nil {
		logger.Error("cost evaluation failed", "error", err)
		return
	}

	encoded := strconv.FormatFloat(cost, 'g', -1, 64)
	if err := r.channel.PublishTo(ctx, r.coordinator, request.CostKey, encoded); err != nil {
		logger.Error("publishing cost failed", "key", request.CostKey, "error", err)
		return
	}
	logger.Info("cost published", "key", request.CostKey, "cost", cost)
}
