// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package detail_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsmd-foundation/bsmd/detail"
	"github.com/bsmd-foundation/bsmd/lib/codec"
	"github.com/bsmd-foundation/bsmd/lib/keys"
	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/ledger"
	"github.com/bsmd-foundation/bsmd/ledger/node"
)

var (
	chiefAccount  = ref.MustAccount("chief", "transit")
	workerAccount = ref.MustAccount("worker1", "transit")
)

// harness is a running node with a chief and one worker account.
type harness struct {
	chief  *detail.Channel
	worker *detail.Channel

	chiefClient  *ledger.Client
	workerClient *ledger.Client
}

func startHarness(t *testing.T) *harness {
	t.Helper()

	chiefKeys, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	workerKeys, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	engine, err := node.Open(node.EngineConfig{
		Database: filepath.Join(t.TempDir(), "ledger.db"),
		GenesisAccounts: []node.GenesisAccount{
			{Account: chiefAccount, PublicKey: chiefKeys.Public},
			{Account: workerAccount, PublicKey: workerKeys.Public},
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	server, err := node.NewServer(node.ServerConfig{Listen: "127.0.0.1:0", Engine: engine})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	server.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
		engine.Close()
	})

	newClient := func(account ref.Account, keypair *keys.Keypair) *ledger.Client {
		signer, err := ledger.NewSigner(account, keypair, nil)
		if err != nil {
			t.Fatalf("NewSigner: %v", err)
		}
		client, err := ledger.NewClient(ledger.ClientConfig{
			NodeURL: "http://" + server.Addr(),
			Signer:  signer,
		})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		return client
	}

	chiefClient := newClient(chiefAccount, chiefKeys)
	workerClient := newClient(workerAccount, workerKeys)
	return &harness{
		chief:        detail.NewChannel(chiefClient, nil, nil),
		worker:       detail.NewChannel(workerClient, nil, nil),
		chiefClient:  chiefClient,
		workerClient: workerClient,
	}
}

func TestPublishReadRoundTrip(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	if err := h.chief.Publish(ctx, "betas", "[0.4, 0.6]"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	result, err := h.chief.Read(ctx, chiefAccount, detail.Filter{Key: "betas"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result[chiefAccount]["betas"] != "[0.4, 0.6]" {
		t.Errorf("result = %v", result)
	}
}

func TestPublishToPeerAccount(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	// The worker lets the chief push parameters into its account.
	if err := h.workerClient.GrantPermission(ctx, chiefAccount, ledger.CanSetMyDetail); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if err := h.chief.PublishTo(ctx, workerAccount, "betas", "[1.0]"); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	result, err := h.worker.Read(ctx, workerAccount, detail.Filter{Writer: chiefAccount, Key: "betas"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result[chiefAccount]["betas"] != "[1.0]" {
		t.Errorf("result = %v", result)
	}
}

func TestOversizedValueFailsBeforeTheWire(t *testing.T) {
	// A client pointed at nothing: if the fast-fail works, no dial
	// ever happens.
	keypair, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	signer, err := ledger.NewSigner(chiefAccount, keypair, nil)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	client, err := ledger.NewClient(ledger.ClientConfig{NodeURL: "http://127.0.0.1:1", Signer: signer})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	channel := detail.NewChannel(client, nil, nil)

	err = channel.Publish(context.Background(), "big", strings.Repeat("x", ledger.MaxDetailValueLength+1))
	if !errors.Is(err, detail.ErrValueTooLarge) {
		t.Errorf("Publish = %v, want ErrValueTooLarge", err)
	}
}

func hasKey(account ref.Account, key string) func(map[ref.Account]map[string]string) bool {
	return func(result map[ref.Account]map[string]string) bool {
		_, ok := result[account][key]
		return ok
	}
}

func TestPollReturnsPresentValueImmediately(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	if err := h.chief.Publish(ctx, "ready", "yes"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	result, err := h.chief.Poll(ctx, chiefAccount, detail.Filter{Key: "ready"},
		detail.PollConfig{Interval: time.Hour, Attempts: 1},
		hasKey(chiefAccount, "ready"))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result[chiefAccount]["ready"] != "yes" {
		t.Errorf("result = %v", result)
	}
}

func TestPollExhaustsItsBudget(t *testing.T) {
	h := startHarness(t)

	_, err := h.chief.Poll(context.Background(), chiefAccount, detail.Filter{Key: "never"},
		detail.PollConfig{Interval: time.Millisecond, Attempts: 3},
		hasKey(chiefAccount, "never"))
	if !errors.Is(err, detail.ErrExhausted) {
		t.Errorf("Poll = %v, want ErrExhausted", err)
	}
}

func TestPollSeesLatePublish(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		if err := h.chief.Publish(ctx, "late", "value"); err != nil {
			t.Errorf("Publish: %v", err)
		}
	}()

	result, err := h.chief.Poll(ctx, chiefAccount, detail.Filter{Key: "late"},
		detail.PollConfig{Interval: 5 * time.Millisecond, Attempts: 200},
		hasKey(chiefAccount, "late"))
	wg.Wait()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result[chiefAccount]["late"] != "value" {
		t.Errorf("result = %v", result)
	}
}

// flakyNode serves the query endpoint with a scripted run of error
// responses before it starts answering.
type flakyNode struct {
	t        *testing.T
	failures int
	code     string
	status   int
	response ledger.AccountDetailResult

	requests atomic.Int64
}

func (f *flakyNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/cbor")
	if int(f.requests.Add(1)) <= f.failures {
		encoded, err := codec.Marshal(ledger.LedgerError{Code: f.code, Message: "scripted failure"})
		if err != nil {
			f.t.Errorf("encoding error response: %v", err)
		}
		w.WriteHeader(f.status)
		w.Write(encoded)
		return
	}
	encoded, err := codec.Marshal(f.response)
	if err != nil {
		f.t.Errorf("encoding response: %v", err)
	}
	w.Write(encoded)
}

func flakyChannel(t *testing.T, node *flakyNode) *detail.Channel {
	t.Helper()
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	keypair, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	signer, err := ledger.NewSigner(chiefAccount, keypair, nil)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	client, err := ledger.NewClient(ledger.ClientConfig{NodeURL: server.URL, Signer: signer})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return detail.NewChannel(client, nil, nil)
}

func TestPollRidesOutTransientReadFailures(t *testing.T) {
	node := &flakyNode{
		t:        t,
		failures: 2,
		code:     ledger.ErrCodeInternal,
		status:   http.StatusInternalServerError,
		response: ledger.AccountDetailResult{
			Details: map[string]map[string]string{
				chiefAccount.String(): {"ready": "yes"},
			},
		},
	}
	channel := flakyChannel(t, node)

	result, err := channel.Poll(context.Background(), chiefAccount, detail.Filter{Key: "ready"},
		detail.PollConfig{Interval: time.Millisecond, Attempts: 10},
		hasKey(chiefAccount, "ready"))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result[chiefAccount]["ready"] != "yes" {
		t.Errorf("result = %v", result)
	}
}

func TestPollGivesUpAfterPersistentReadFailures(t *testing.T) {
	node := &flakyNode{
		t:        t,
		failures: 1000,
		code:     ledger.ErrCodeInternal,
		status:   http.StatusInternalServerError,
	}
	channel := flakyChannel(t, node)

	_, err := channel.Poll(context.Background(), chiefAccount, detail.Filter{Key: "ready"},
		detail.PollConfig{Interval: time.Millisecond, Attempts: 1000},
		hasKey(chiefAccount, "ready"))
	if !ledger.IsLedgerError(err, ledger.ErrCodeInternal) {
		t.Fatalf("Poll = %v, want wrapped INTERNAL", err)
	}
	if errors.Is(err, detail.ErrExhausted) {
		t.Errorf("persistent failure reported as exhaustion: %v", err)
	}
	// The failure budget, not the attempt budget, must be what ends
	// the loop.
	if got := node.requests.Load(); got != 6 {
		t.Errorf("reads before giving up = %d, want 6", got)
	}
}

func TestPollKeepsGoingThroughNotFound(t *testing.T) {
	node := &flakyNode{
		t:        t,
		failures: 8,
		code:     ledger.ErrCodeNotFound,
		status:   http.StatusNotFound,
		response: ledger.AccountDetailResult{
			Details: map[string]map[string]string{
				chiefAccount.String(): {"ready": "yes"},
			},
		},
	}
	channel := flakyChannel(t, node)

	// Eight NOT_FOUND reads exceed the transient-failure budget but
	// not the attempt budget: no data yet is not a failure.
	result, err := channel.Poll(context.Background(), chiefAccount, detail.Filter{Key: "ready"},
		detail.PollConfig{Interval: time.Millisecond, Attempts: 20},
		hasKey(chiefAccount, "ready"))
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result[chiefAccount]["ready"] != "yes" {
		t.Errorf("result = %v", result)
	}
}

func TestPollAbortsOnPermissionError(t *testing.T) {
	h := startHarness(t)

	// No grant exists, so the read is denied. The poll must abort on
	// the first attempt rather than burning its whole budget on a
	// failure that will not heal.
	start := time.Now()
	_, err := h.worker.Poll(context.Background(), chiefAccount, detail.Filter{Key: "betas"},
		detail.PollConfig{Interval: time.Second, Attempts: 100},
		hasKey(chiefAccount, "betas"))
	if !ledger.IsLedgerError(err, ledger.ErrCodeQueryDenied) {
		t.Fatalf("Poll = %v, want QUERY_DENIED", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Poll took %v, should abort on first attempt", elapsed)
	}
}
