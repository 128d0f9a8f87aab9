// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package choice_test

import (
	"math"
	"strings"
	"testing"

	"github.com/bsmd-foundation/bsmd/choice"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestLogLikelihoodSingleObservation(t *testing.T) {
	// With all betas zero the utility difference is zero, so both
	// modes have probability 0.5 and the contribution is log(0.5).
	observations := []choice.Observation{
		{ChoseCar: true, CarCost: 10, CarTime: 30, TrainCost: 12, TrainTime: 45},
	}
	got, err := choice.LogLikelihood([]float64{0, 0, 0}, observations)
	if err != nil {
		t.Fatalf("LogLikelihood: %v", err)
	}
	if !almostEqual(got, math.Log(0.5)) {
		t.Errorf("LogLikelihood = %v, want %v", got, math.Log(0.5))
	}
}

func TestLogLikelihoodMatchesHandComputation(t *testing.T) {
	betas := []float64{0.00123, 0.00664, 0.006463}
	obs := choice.Observation{
		ChoseCar: false, CarCost: 20, CarTime: 25, TrainCost: 15, TrainTime: 40,
	}

	utility := betas[0] + betas[1]*(obs.CarCost-obs.TrainCost) + betas[2]*(obs.CarTime-obs.TrainTime)
	probCar := math.Exp(utility) / (1 + math.Exp(utility))
	want := math.Log(1 - probCar)

	got, err := choice.LogLikelihood(betas, []choice.Observation{obs})
	if err != nil {
		t.Fatalf("LogLikelihood: %v", err)
	}
	if !almostEqual(got, want) {
		t.Errorf("LogLikelihood = %v, want %v", got, want)
	}
}

func TestLogLikelihoodSumsOverObservations(t *testing.T) {
	observations := []choice.Observation{
		{ChoseCar: true, CarCost: 10, CarTime: 30, TrainCost: 12, TrainTime: 45},
		{ChoseCar: false, CarCost: 20, CarTime: 25, TrainCost: 15, TrainTime: 40},
	}
	betas := []float64{0.1, -0.02, -0.01}

	first, err := choice.LogLikelihood(betas, observations[:1])
	if err != nil {
		t.Fatalf("LogLikelihood: %v", err)
	}
	second, err := choice.LogLikelihood(betas, observations[1:])
	if err != nil {
		t.Fatalf("LogLikelihood: %v", err)
	}
	total, err := choice.LogLikelihood(betas, observations)
	if err != nil {
		t.Fatalf("LogLikelihood: %v", err)
	}
	if !almostEqual(total, first+second) {
		t.Errorf("total = %v, want %v", total, first+second)
	}
}

func TestLogLikelihoodRejectsWrongDimensions(t *testing.T) {
	observations := []choice.Observation{{ChoseCar: true}}
	if _, err := choice.LogLikelihood([]float64{1, 2}, observations); err == nil {
		t.Error("LogLikelihood with 2 betas succeeded, want error")
	}
}

func TestLogLikelihoodRejectsDegenerateProbability(t *testing.T) {
	// A huge utility drives the train probability to exactly zero in
	// float64, which would make the log-likelihood -Inf.
	observations := []choice.Observation{
		{ChoseCar: false, CarCost: 1000, CarTime: 0, TrainCost: 0, TrainTime: 0},
	}
	if _, err := choice.LogLikelihood([]float64{0, 1, 0}, observations); err == nil {
		t.Error("LogLikelihood with degenerate probability succeeded, want error")
	}
}

const sampleCSV = `chose_car,car_cost,car_time,train_cost,train_time
1,10.5,30,12,45
0,20,25.5,15,40
1,8,35,9,50
`

func TestReadCSV(t *testing.T) {
	observations, err := choice.ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(observations) != 3 {
		t.Fatalf("len = %d, want 3", len(observations))
	}
	want := choice.Observation{ChoseCar: false, CarCost: 20, CarTime: 25.5, TrainCost: 15, TrainTime: 40}
	if observations[1] != want {
		t.Errorf("observations[1] = %+v, want %+v", observations[1], want)
	}
}

func TestReadCSVRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong header", "a,b,c,d,e\n1,2,3,4,5\n"},
		{"bad chose value", "chose_car,car_cost,car_time,train_cost,train_time\n2,1,1,1,1\n"},
		{"non-numeric field", "chose_car,car_cost,car_time,train_cost,train_time\n1,x,1,1,1\n"},
		{"empty body", "chose_car,car_cost,car_time,train_cost,train_time\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := choice.ReadCSV(strings.NewReader(test.input)); err == nil {
				t.Error("ReadCSV succeeded, want error")
			}
		})
	}
}
