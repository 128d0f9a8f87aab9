// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package choice implements the binary mode choice model whose
// log-likelihood the network maximizes. Each worker holds private
// travel observations (car versus train, with per-mode cost and
// travel time) and evaluates the model on them; only the summed
// log-likelihood ever leaves the node.
package choice

import (
	"fmt"
	"math"
)

// Dimensions is the length of the model's parameter vector:
// car-specific constant, cost coefficient, travel time coefficient.
const Dimensions = 3

// Observation is one recorded trip: which mode was chosen and the
// cost and travel time of both alternatives.
type Observation struct {
	ChoseCar  bool
	CarCost   float64
	CarTime   float64
	TrainCost float64
	TrainTime float64
}

// LogLikelihood evaluates the binary logit log-likelihood of betas on
// the observations. The utility difference of car over train is
//
//	u = betas[0] + betas[1]*(carCost-trainCost) + betas[2]*(carTime-trainTime)
//
// and each observation contributes log of the probability of its
// chosen mode. Returns an error when a probability collapses to zero
// under the given betas, since log(0) would poison the sum.
func LogLikelihood(betas []float64, observations []Observation) (float64, error) {
	if len(betas) != Dimensions {
		return 0, fmt.Errorf("choice: got %d parameters, want %d", len(betas), Dimensions)
	}

	total := 0.0
	for i, obs := range observations {
		utility := betas[0] +
			betas[1]*(obs.CarCost-obs.TrainCost) +
			betas[2]*(obs.CarTime-obs.TrainTime)
		probCar := math.Exp(utility) / (1 + math.Exp(utility))

		probChosen := probCar
		if !obs.ChoseCar {
			probChosen = 1 - probCar
		}
		if probChosen <= 0 || math.IsNaN(probChosen) {
			return 0, fmt.Errorf("choice: observation %d has degenerate probability %v", i, probChosen)
		}
		total += math.Log(probChosen)
	}
	return total, nil
}

// CostFunc is the shape workers plug into their runtime: parameters
// in, partial objective out.
type CostFunc func(betas []float64) (float64, error)

// Model binds a set of observations into a CostFunc.
func Model(observations []Observation) CostFunc {
	return func(betas []float64) (float64, error) {
		return LogLikelihood(betas, observations)
	}
}
