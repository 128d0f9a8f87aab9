// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ledger_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bsmd-foundation/bsmd/lib/codec"
	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/ledger"
)

// fakeNode records the last request and serves a canned response.
type fakeNode struct {
	t          *testing.T
	lastPath   string
	lastBody   []byte
	statusCode int
	response   any
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.t.Errorf("reading request body: %v", err)
	}
	f.lastPath = r.URL.Path
	f.lastBody = body

	encoded, err := codec.Marshal(f.response)
	if err != nil {
		f.t.Errorf("encoding canned response: %v", err)
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(f.statusCode)
	w.Write(encoded)
}

func newTestClient(t *testing.T, node *fakeNode) *ledger.Client {
	t.Helper()
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	client, err := ledger.NewClient(ledger.ClientConfig{
		NodeURL: server.URL,
		Signer:  newTestSigner(t, "chief"),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestSubmitSendsSignedTransaction(t *testing.T) {
	node := &fakeNode{
		t:          t,
		statusCode: http.StatusOK,
		response:   ledger.TransactionResult{Hash: "abc123"},
	}
	client := newTestClient(t, node)

	result, err := client.Submit(context.Background(), ledger.Command{
		SetAccountDetail: &ledger.SetAccountDetail{
			Account: client.Account(),
			Key:     "betas",
			Value:   "[0.5]",
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Hash != "abc123" {
		t.Errorf("Hash = %q, want %q", result.Hash, "abc123")
	}
	if node.lastPath != "/v1/transaction" {
		t.Errorf("path = %q, want /v1/transaction", node.lastPath)
	}

	var tx ledger.Transaction
	if err := codec.Unmarshal(node.lastBody, &tx); err != nil {
		t.Fatalf("decoding submitted transaction: %v", err)
	}
	if tx.Payload.Creator.String() != "chief@transit" {
		t.Errorf("creator = %v", tx.Payload.Creator)
	}
	if len(tx.Payload.Commands) != 1 || tx.Payload.Commands[0].SetAccountDetail == nil {
		t.Fatalf("commands = %+v", tx.Payload.Commands)
	}
}

func TestErrorEnvelopeBecomesLedgerError(t *testing.T) {
	node := &fakeNode{
		t:          t,
		statusCode: http.StatusForbidden,
		response: ledger.LedgerError{
			Code:    ledger.ErrCodePermissionDenied,
			Message: "worker1@transit may not write to chief@transit",
		},
	}
	client := newTestClient(t, node)

	err := client.SetAccountDetail(context.Background(), ref.MustAccount("worker1", "transit"), "cost.1", "42")
	if err == nil {
		t.Fatal("SetAccountDetail succeeded, want error")
	}
	if !ledger.IsLedgerError(err, ledger.ErrCodePermissionDenied) {
		t.Errorf("error = %v, want PERMISSION_DENIED ledger error", err)
	}
	if ledger.IsLedgerError(err, ledger.ErrCodeNotFound) {
		t.Error("IsLedgerError matched the wrong code")
	}
}

func TestAccountDetailParsesWriters(t *testing.T) {
	node := &fakeNode{
		t:          t,
		statusCode: http.StatusOK,
		response: ledger.AccountDetailResult{
			Details: map[string]map[string]string{
				"worker1@transit": {"cost.3": "12.5"},
				"worker2@transit": {"cost.3": "13.1"},
			},
		},
	}
	client := newTestClient(t, node)

	details, err := client.AccountDetail(context.Background(), ledger.GetAccountDetail{
		Account: client.Account(),
		Key:     "cost.3",
	})
	if err != nil {
		t.Fatalf("AccountDetail: %v", err)
	}
	if node.lastPath != "/v1/query" {
		t.Errorf("path = %q, want /v1/query", node.lastPath)
	}
	if len(details) != 2 {
		t.Fatalf("writers = %d, want 2", len(details))
	}
	worker1 := ref.MustAccount("worker1", "transit")
	if details[worker1]["cost.3"] != "12.5" {
		t.Errorf("details[worker1] = %v", details[worker1])
	}
}

func TestAccountDetailEmptyResultIsNotAnError(t *testing.T) {
	node := &fakeNode{
		t:          t,
		statusCode: http.StatusOK,
		response:   ledger.AccountDetailResult{Details: map[string]map[string]string{}},
	}
	client := newTestClient(t, node)

	details, err := client.AccountDetail(context.Background(), ledger.GetAccountDetail{
		Account: client.Account(),
		Key:     "missing",
	})
	if err != nil {
		t.Fatalf("AccountDetail: %v", err)
	}
	if len(details) != 0 {
		t.Errorf("details = %v, want empty", details)
	}
}

func TestAccountAssetsParsesBalances(t *testing.T) {
	node := &fakeNode{
		t:          t,
		statusCode: http.StatusOK,
		response: ledger.AccountAssetsResult{
			Balances: map[string]uint64{"fedcoin#transit": 100},
		},
	}
	client := newTestClient(t, node)

	balances, err := client.AccountAssets(context.Background(), client.Account())
	if err != nil {
		t.Fatalf("AccountAssets: %v", err)
	}
	if balances[ref.MustAsset("fedcoin", "transit")] != 100 {
		t.Errorf("balances = %v", balances)
	}
}
