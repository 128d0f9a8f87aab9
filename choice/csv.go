// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package choice

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// csv columns, in order.
var csvHeader = []string{"chose_car", "car_cost", "car_time", "train_cost", "train_time"}

// LoadCSV reads observations from a CSV file with the header
// "chose_car,car_cost,car_time,train_cost,train_time". The chose_car
// column is 1 for car and 0 for train.
func LoadCSV(path string) ([]Observation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("choice: opening observations: %w", err)
	}
	defer file.Close()

	observations, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("choice: %s: %w", path, err)
	}
	return observations, nil
}

// ReadCSV parses observations from r. See LoadCSV for the format.
func ReadCSV(r io.Reader) ([]Observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, want := range csvHeader {
		if header[i] != want {
			return nil, fmt.Errorf("header column %d is %q, want %q", i, header[i], want)
		}
	}

	var observations []Observation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		chose, err := strconv.Atoi(record[0])
		if err != nil || (chose != 0 && chose != 1) {
			return nil, fmt.Errorf("line %d: chose_car must be 0 or 1, got %q", line, record[0])
		}
		values := make([]float64, 4)
		for i, field := range record[1:] {
			values[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %q: %w", line, csvHeader[i+1], err)
			}
		}
		observations = append(observations, Observation{
			ChoseCar:  chose == 1,
			CarCost:   values[0],
			CarTime:   values[1],
			TrainCost: values[2],
			TrainTime: values[3],
		})
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("no observations")
	}
	return observations, nil
}
