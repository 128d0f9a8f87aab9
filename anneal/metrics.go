// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package anneal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bsmd_anneal_rounds_total",
		Help: "Evaluation rounds by outcome (complete or incomplete).",
	}, []string{"result"})

	metricAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bsmd_anneal_accepted_total",
		Help: "Proposals accepted by the Metropolis criterion.",
	})

	metricTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bsmd_anneal_temperature",
		Help: "Current annealing temperature.",
	})

	metricCurrentCost = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bsmd_anneal_current_cost",
		Help: "Objective value of the currently accepted parameters.",
	})
)
