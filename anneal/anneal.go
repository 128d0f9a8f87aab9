// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package anneal drives distributed simulated annealing over a set of
// worker nodes. The coordinator proposes parameter vectors, fans them
// out through the ledger, triggers each worker to evaluate its
// private share of the objective, sums the returned partial costs,
// and applies the Metropolis acceptance criterion under a
// multiplicative cooling schedule.
//
// The objective is maximized: a proposal that raises the summed cost
// is always accepted, and a worse one is accepted with probability
// exp((new-old)/T).
//
// A round either completes with every worker's cost or it does not
// count. When any worker is unreachable or its cost never appears
// within the collect budget, the round is abandoned and the same
// proposal is retried; partial sums are never compared against
// complete ones.
package anneal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bsmd-foundation/bsmd/detail"
	"github.com/bsmd-foundation/bsmd/lib/digest"
	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/permission"
	"github.com/bsmd-foundation/bsmd/trigger"
	"github.com/bsmd-foundation/bsmd/worker"
)

// parameterKey is the detail key the coordinator writes proposals
// under in each worker's account. Rounds overwrite it in place; the
// digest carried by the trigger tells workers which value to wait
// for.
const parameterKey = "betas"

// perturbationRange bounds the uniform noise added to one coordinate
// per proposal.
const perturbationRange = 0.01

// DefaultBetas is the conventional starting point for the transit
// mode choice model.
var DefaultBetas = []float64{0.00123, 0.00664, 0.006463}

// Phase is where the controller currently is in its round cycle.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDistribute
	PhaseCollect
	PhaseDecide
	PhaseCool
	PhaseTerminated
)

var phaseNames = map[Phase]string{
	PhaseInit:       "INIT",
	PhaseDistribute: "DISTRIBUTE",
	PhaseCollect:    "COLLECT",
	PhaseDecide:     "DECIDE",
	PhaseCool:       "COOL",
	PhaseTerminated: "TERMINATED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Worker is one compute node the coordinator drives.
type Worker struct {
	Account ref.Account
	Trigger *trigger.Client
}

// IncompleteRoundError reports a round that could not gather every
// worker's cost. The round's partial results are discarded.
type IncompleteRoundError struct {
	Round   uint64
	Missing []ref.Account
}

func (e *IncompleteRoundError) Error() string {
	names := make([]string, len(e.Missing))
	for i, account := range e.Missing {
		names[i] = account.String()
	}
	return fmt.Sprintf("anneal: round %d incomplete, missing costs from %s",
		e.Round, strings.Join(names, ", "))
}

// Proposal is one accepted point on the annealing trajectory.
type Proposal struct {
	Round       uint64    `json:"round"`
	Temperature float64   `json:"temperature"`
	Betas       []float64 `json:"betas"`
	Cost        float64   `json:"cost"`
}

// Result summarizes a completed run.
type Result struct {
	// Betas is the final accepted parameter vector.
	Betas []float64
	// Cost is the objective at Betas.
	Cost float64
	// InitialCost is the objective at the starting vector.
	InitialCost float64
	// Rounds counts every evaluation round, including abandoned ones.
	Rounds uint64
	// IncompleteRounds counts rounds abandoned for missing costs.
	IncompleteRounds uint64
	// History holds the accepted proposals in order. Rejected
	// proposals leave no trace.
	History []Proposal
}

// Config assembles a coordinator.
type Config struct {
	// Channel is the coordinator's ledger channel.
	Channel *detail.Channel
	// Permissions optionally grants each worker write access to the
	// coordinator's account during INIT. Leave nil when grants are
	// managed elsewhere.
	Permissions *permission.Registry
	// Workers are the compute nodes, at least one.
	Workers []Worker
	// InitialBetas is the starting vector. Defaults to DefaultBetas.
	InitialBetas []float64
	// InitialTemperature starts the schedule. Must be positive.
	InitialTemperature float64
	// MinimumTemperature ends the schedule. Must be positive and
	// below InitialTemperature.
	MinimumTemperature float64
	// CoolingRate multiplies the temperature per level, in (0, 1).
	CoolingRate float64
	// IterationsPerTemperature is the rounds per temperature level.
	IterationsPerTemperature int
	// CollectTimeout bounds the wait for all costs in one round.
	CollectTimeout time.Duration
	// PollInterval is the delay between cost reads during COLLECT.
	PollInterval time.Duration
	// MaxRoundRetries is the total evaluation attempts one proposal
	// gets before incomplete rounds fail the run, so 3 means the
	// original round plus two retries. Zero means the default of 3;
	// negative values are rejected.
	MaxRoundRetries int
	// Rand drives proposals and acceptance. Nil seeds from entropy.
	Rand *rand.Rand
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Trajectory optionally records accepted proposals.
	Trajectory *TrajectoryWriter
}

// Validate checks the numeric schedule and the worker list.
func (c *Config) Validate() error {
	var errs []error
	if c.Channel == nil {
		errs = append(errs, fmt.Errorf("channel is required"))
	}
	if len(c.Workers) == 0 {
		errs = append(errs, fmt.Errorf("at least one worker is required"))
	}
	for i, w := range c.Workers {
		if w.Account.IsZero() {
			errs = append(errs, fmt.Errorf("worker %d has no account", i))
		}
		if w.Trigger == nil {
			errs = append(errs, fmt.Errorf("worker %d has no trigger client", i))
		}
	}
	if c.InitialTemperature <= 0 {
		errs = append(errs, fmt.Errorf("initial temperature must be positive"))
	}
	if c.MinimumTemperature <= 0 || c.MinimumTemperature >= c.InitialTemperature {
		errs = append(errs, fmt.Errorf("minimum temperature must be in (0, initial)"))
	}
	if c.CoolingRate <= 0 || c.CoolingRate >= 1 {
		errs = append(errs, fmt.Errorf("cooling rate must be in (0, 1)"))
	}
	if c.IterationsPerTemperature <= 0 {
		errs = append(errs, fmt.Errorf("iterations per temperature must be positive"))
	}
	if c.CollectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("collect timeout must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive"))
	}
	if c.MaxRoundRetries < 0 {
		errs = append(errs, fmt.Errorf("max round retries must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("anneal: %w", err)
	}
	return nil
}

// Controller runs the annealing schedule.
type Controller struct {
	channel     *detail.Channel
	permissions *permission.Registry
	workers     []Worker
	initial     []float64
	tInitial    float64
	tMinimum    float64
	cooling     float64
	iterations  int
	collect     detail.PollConfig
	maxRetries  int
	rand        *rand.Rand
	logger      *slog.Logger
	trajectory  *TrajectoryWriter

	mu    sync.Mutex
	phase Phase
	round uint64
}

// New validates cfg and builds a controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	initial := cfg.InitialBetas
	if initial == nil {
		initial = DefaultBetas
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	maxRetries := cfg.MaxRoundRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempts := int(cfg.CollectTimeout / cfg.PollInterval)
	if attempts < 1 {
		attempts = 1
	}

	return &Controller{
		channel:     cfg.Channel,
		permissions: cfg.Permissions,
		workers:     slices.Clone(cfg.Workers),
		initial:     slices.Clone(initial),
		tInitial:    cfg.InitialTemperature,
		tMinimum:    cfg.MinimumTemperature,
		cooling:     cfg.CoolingRate,
		iterations:  cfg.IterationsPerTemperature,
		collect:     detail.PollConfig{Interval: cfg.PollInterval, Attempts: attempts},
		maxRetries:  maxRetries,
		rand:        rng,
		logger:      logger,
		trajectory:  cfg.Trajectory,
	}, nil
}

// Phase reports the controller's current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(phase Phase) {
	c.mu.Lock()
	previous := c.phase
	c.phase = phase
	c.mu.Unlock()
	if previous != phase {
		c.logger.Debug("phase transition", "from", previous, "to", phase)
	}
}

// nextRound allocates a fresh round number. Retried proposals get new
// numbers too, so a late cost from an abandoned round can never leak
// into a later collection.
func (c *Controller) nextRound() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.round++
	return c.round
}

// Run executes the full schedule and returns the final accepted
// state. The run fails when the context is cancelled, a ledger
// operation errors, or a proposal stays incomplete past the retry
// budget.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	c.setPhase(PhaseInit)
	result := &Result{}

	if c.permissions != nil {
		accounts := make([]ref.Account, len(c.workers))
		for i, w := range c.workers {
			accounts[i] = w.Account
		}
		if err := c.permissions.GrantAll(ctx, accounts...); err != nil {
			return nil, fmt.Errorf("anneal: granting worker write access: %w", err)
		}
	}

	current := slices.Clone(c.initial)
	currentCost, _, err := c.evaluate(ctx, current, result)
	if err != nil {
		return nil, err
	}
	result.InitialCost = currentCost
	metricCurrentCost.Set(currentCost)
	c.logger.Info("baseline evaluated", "cost", currentCost, "betas", worker.EncodeParams(current))

	temperature := c.tInitial
	metricTemperature.Set(temperature)

	for temperature >= c.tMinimum {
		for iteration := 0; iteration < c.iterations; iteration++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			candidate := c.perturb(current)
			candidateCost, round, err := c.evaluate(ctx, candidate, result)
			if err != nil {
				return nil, err
			}

			c.setPhase(PhaseDecide)
			if c.accept(candidateCost, currentCost, temperature) {
				current = candidate
				currentCost = candidateCost
				metricAccepted.Inc()
				metricCurrentCost.Set(currentCost)

				proposal := Proposal{
					Round:       round,
					Temperature: temperature,
					Betas:       slices.Clone(current),
					Cost:        currentCost,
				}
				result.History = append(result.History, proposal)
				if c.trajectory != nil {
					if err := c.trajectory.Record(proposal); err != nil {
						return nil, err
					}
				}
				c.logger.Debug("proposal accepted",
					"temperature", temperature, "cost", currentCost)
			}
		}

		c.setPhase(PhaseCool)
		temperature *= c.cooling
		metricTemperature.Set(temperature)
		c.logger.Info("temperature level complete",
			"temperature", temperature, "cost", currentCost,
			"accepted", len(result.History))
	}

	c.setPhase(PhaseTerminated)
	result.Betas = current
	result.Cost = currentCost
	return result, nil
}

// AcceptanceProbability is the Metropolis acceptance probability of a
// candidate cost against the current one for a maximized objective:
// min(1, exp((new-old)/T)). An improvement is always accepted; a
// regression survives with a probability that shrinks as the
// temperature falls.
func AcceptanceProbability(newCost, oldCost, temperature float64) float64 {
	probability := math.Exp((newCost - oldCost) / temperature)
	if probability > 1 {
		return 1
	}
	return probability
}

// accept draws the Metropolis decision.
func (c *Controller) accept(newCost, oldCost, temperature float64) bool {
	return AcceptanceProbability(newCost, oldCost, temperature) > c.rand.Float64()
}

// perturb nudges one randomly chosen coordinate by uniform noise in
// [-perturbationRange, perturbationRange).
func (c *Controller) perturb(betas []float64) []float64 {
	next := slices.Clone(betas)
	coordinate := c.rand.IntN(len(next))
	next[coordinate] += c.rand.Float64()*2*perturbationRange - perturbationRange
	return next
}

// evaluate runs rounds for one proposal until a complete cost comes
// back, retrying the same proposal after incomplete rounds up to the
// retry budget. Returns the cost and the ledger round number that
// produced it.
func (c *Controller) evaluate(ctx context.Context, betas []float64, result *Result) (float64, uint64, error) {
	for attempt := 1; ; attempt++ {
		result.Rounds++
		cost, round, err := c.runRound(ctx, betas)
		if err == nil {
			metricRounds.WithLabelValues("complete").Inc()
			return cost, round, nil
		}

		var incomplete *IncompleteRoundError
		if !errors.As(err, &incomplete) {
			return 0, round, err
		}
		metricRounds.WithLabelValues("incomplete").Inc()
		result.IncompleteRounds++
		if attempt >= c.maxRetries {
			return 0, round, err
		}
		c.logger.Warn("round incomplete, retrying proposal",
			"round", incomplete.Round, "missing", len(incomplete.Missing), "attempt", attempt)
	}
}

// runRound distributes one proposal and collects every worker's cost.
func (c *Controller) runRound(ctx context.Context, betas []float64) (float64, uint64, error) {
	round := c.nextRound()
	value := worker.EncodeParams(betas)
	valueDigest := digest.Payload(value).String()
	costKey := fmt.Sprintf("cost.%d", round)

	c.setPhase(PhaseDistribute)
	var missing []ref.Account
	for _, w := range c.workers {
		if err := c.channel.PublishTo(ctx, w.Account, parameterKey, value); err != nil {
			return 0, round, fmt.Errorf("anneal: publishing parameters to %s: %w", w.Account, err)
		}

		err := w.Trigger.Call(ctx, worker.ActionComputeCost, map[string]any{
			"round":            round,
			"parameter_key":    parameterKey,
			"parameter_digest": valueDigest,
			"cost_key":         costKey,
		}, nil)
		var unreachable *trigger.UnreachableError
		if errors.As(err, &unreachable) {
			c.logger.Warn("worker unreachable", "worker", w.Account, "error", err)
			missing = append(missing, w.Account)
			continue
		}
		if err != nil {
			return 0, round, fmt.Errorf("anneal: triggering %s: %w", w.Account, err)
		}
	}
	if len(missing) > 0 {
		// No point collecting: the round can never complete.
		return 0, round, &IncompleteRoundError{Round: round, Missing: missing}
	}

	c.setPhase(PhaseCollect)
	own := c.channel.Account()
	filter := detail.Filter{Key: costKey}
	collected, err := c.channel.Poll(ctx, own, filter, c.collect,
		func(result map[ref.Account]map[string]string) bool {
			for _, w := range c.workers {
				if _, ok := result[w.Account][costKey]; !ok {
					return false
				}
			}
			return true
		})
	if errors.Is(err, detail.ErrExhausted) {
		final, readErr := c.channel.Read(ctx, own, filter)
		if readErr != nil {
			return 0, round, readErr
		}
		for _, w := range c.workers {
			if _, ok := final[w.Account][costKey]; !ok {
				missing = append(missing, w.Account)
			}
		}
		return 0, round, &IncompleteRoundError{Round: round, Missing: missing}
	}
	if err != nil {
		return 0, round, err
	}

	// Unparseable or NaN costs count as missing. The aggregate is
	// never partial.
	total := 0.0
	for _, w := range c.workers {
		cost, err := strconv.ParseFloat(collected[w.Account][costKey], 64)
		if err != nil || math.IsNaN(cost) {
			c.logger.Warn("unusable cost", "worker", w.Account,
				"round", round, "value", collected[w.Account][costKey])
			missing = append(missing, w.Account)
			continue
		}
		total += cost
	}
	if len(missing) > 0 {
		return 0, round, &IncompleteRoundError{Round: round, Missing: missing}
	}
	return total, round, nil
}
