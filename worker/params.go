// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeParams renders a parameter vector as the comma-joined string
// stored on the ledger, e.g. "0.00123,0.00664,0.006463".
func EncodeParams(betas []float64) string {
	parts := make([]string, len(betas))
	for i, beta := range betas {
		parts[i] = strconv.FormatFloat(beta, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// DecodeParams parses a comma-joined parameter string back into a
// vector.
func DecodeParams(value string) ([]float64, error) {
	parts := strings.Split(value, ",")
	betas := make([]float64, len(parts))
	for i, part := range parts {
		beta, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("worker: parameter %d of %q: %w", i, value, err)
		}
		betas[i] = beta
	}
	return betas, nil
}
