// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package anneal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// TrajectoryWriter appends accepted proposals to a zstd-compressed
// JSONL file, one proposal per line. Safe for concurrent use.
type TrajectoryWriter struct {
	mu      sync.Mutex
	file    *os.File
	encoder *zstd.Encoder
	json    *json.Encoder
	closed  bool
}

// NewTrajectoryWriter creates or truncates the trajectory file at
// path.
func NewTrajectoryWriter(path string) (*TrajectoryWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("anneal: creating trajectory file: %w", err)
	}
	encoder, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("anneal: creating zstd writer: %w", err)
	}
	return &TrajectoryWriter{
		file:    file,
		encoder: encoder,
		json:    json.NewEncoder(encoder),
	}, nil
}

// Record appends one proposal.
func (w *TrajectoryWriter) Record(proposal Proposal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("anneal: trajectory writer is closed")
	}
	if err := w.json.Encode(proposal); err != nil {
		return fmt.Errorf("anneal: recording proposal: %w", err)
	}
	return nil
}

// Close flushes the compressed stream and closes the file.
func (w *TrajectoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.encoder.Close()
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ReadTrajectory loads all proposals from a trajectory file written by
// TrajectoryWriter.
func ReadTrajectory(path string) ([]Proposal, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("anneal: opening trajectory file: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("anneal: reading trajectory file: %w", err)
	}
	defer decoder.Close()

	var proposals []Proposal
	jsonDecoder := json.NewDecoder(decoder.IOReadCloser())
	for {
		var proposal Proposal
		if err := jsonDecoder.Decode(&proposal); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("anneal: decoding trajectory: %w", err)
		}
		proposals = append(proposals, proposal)
	}
	return proposals, nil
}
