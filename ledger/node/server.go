// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bsmd-foundation/bsmd/lib/codec"
	"github.com/bsmd-foundation/bsmd/ledger"
)

// maxRequestSize caps request bodies. A transaction carrying the
// largest allowed detail values stays well under this.
const maxRequestSize = 1 << 20

// ServerConfig holds the parameters for starting a Server.
type ServerConfig struct {
	// Listen is the TCP listen address, e.g. "127.0.0.1:8420".
	// ":0" picks a free port; see Server.Addr.
	Listen string

	// Engine serves the transactions and queries.
	Engine *Engine

	// Logger receives request-level messages. If nil, a no-op
	// logger is used.
	Logger *slog.Logger
}

// Server exposes an Engine over HTTP.
type Server struct {
	engine     *Engine
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	done       chan error
}

// NewServer binds the listen address and prepares the handler. Call
// Start to begin serving.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("node: Engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("node: listening on %s: %w", cfg.Listen, err)
	}

	server := &Server{
		engine:   cfg.Engine,
		logger:   logger,
		listener: listener,
		done:     make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transaction", server.handleTransaction)
	mux.HandleFunc("POST /v1/query", server.handleQuery)
	mux.HandleFunc("GET /healthz", server.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	server.httpServer = &http.Server{Handler: mux}

	return server, nil
}

// Addr returns the bound listen address, useful when Listen was ":0".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving in a background goroutine. Use Shutdown to
// stop.
func (s *Server) Start() {
	s.logger.Info("ledger node listening", "addr", s.Addr())
	go func() {
		err := s.httpServer.Serve(s.listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
}

// Shutdown gracefully stops the server, waiting for in-flight
// requests up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("node: shutdown: %w", err)
	}
	return <-s.done
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var tx ledger.Transaction
	if !s.decodeBody(w, r, &tx) {
		return
	}
	result, err := s.engine.ApplyTransaction(r.Context(), &tx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, result)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var query ledger.Query
	if !s.decodeBody(w, r, &query) {
		return
	}
	result, err := s.engine.ServeQuery(r.Context(), &query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		s.writeError(w, reject(ledger.ErrCodeTxRejected, http.StatusBadRequest, "reading request body: %v", err))
		return false
	}
	if err := codec.Unmarshal(body, target); err != nil {
		s.writeError(w, reject(ledger.ErrCodeTxRejected, http.StatusBadRequest, "decoding request body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeResult(w http.ResponseWriter, result any) {
	encoded, err := codec.Marshal(result)
	if err != nil {
		s.logger.Error("encoding response failed", "error", err)
		s.writeError(w, reject(ledger.ErrCodeInternal, http.StatusInternalServerError, "internal error"))
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	w.Write(encoded)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ledgerErr *ledger.LedgerError
	if !errors.As(err, &ledgerErr) {
		ledgerErr = reject(ledger.ErrCodeInternal, http.StatusInternalServerError, "internal error")
	}
	encoded, encodeErr := codec.Marshal(ledgerErr)
	if encodeErr != nil {
		http.Error(w, ledgerErr.Message, ledgerErr.StatusCode)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(ledgerErr.StatusCode)
	w.Write(encoded)
}
