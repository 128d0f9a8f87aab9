// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package worker_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/bsmd-foundation/bsmd/detail"
	"github.com/bsmd-foundation/bsmd/lib/digest"
	"github.com/bsmd-foundation/bsmd/lib/keys"
	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/lib/testutil"
	"github.com/bsmd-foundation/bsmd/ledger"
	"github.com/bsmd-foundation/bsmd/ledger/node"
	"github.com/bsmd-foundation/bsmd/trigger"
	"github.com/bsmd-foundation/bsmd/worker"
)

var (
	chiefAccount  = ref.MustAccount("chief", "transit")
	workerAccount = ref.MustAccount("worker1", "transit")
)

// harness is a ledger node, a worker runtime behind a trigger server,
// and the chief's side of both protocols.
type harness struct {
	chief   *detail.Channel
	trigger *trigger.Client
	runtime *worker.Runtime
}

// sumCost is a transparent stand-in for a private objective.
func sumCost(betas []float64) (float64, error) {
	total := 0.0
	for _, beta := range betas {
		total += beta
	}
	return total, nil
}

func startHarness(t *testing.T, cost func([]float64) (float64, error)) *harness {
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

	// Grants run both ways: the chief writes parameters into the
	// worker's account, the worker writes costs into the chief's.
	ctx := context.Background()
	if err := workerClient.GrantPermission(ctx, chiefAccount, ledger.CanSetMyDetail); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if err := chiefClient.GrantPermission(ctx, workerAccount, ledger.CanSetMyDetail); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	runtime, err := worker.New(worker.Config{
		Channel:     detail.NewChannel(workerClient, nil, nil),
		Coordinator: chiefAccount,
		Cost:        cost,
		Poll:        detail.PollConfig{Interval: 5 * time.Millisecond, Attempts: 400},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	triggerServer := trigger.NewServer("127.0.0.1:0", nil)
	runtime.Register(triggerServer)

	serveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- triggerServer.Serve(serveCtx) }()
	for triggerServer.Addr() == "127.0.0.1:0" {
		time.Sleep(time.Millisecond)
	}
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "trigger shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
		runtime.Wait()
	})

	return &harness{
		chief:   detail.NewChannel(chiefClient, nil, nil),
		trigger: trigger.NewClient(triggerServer.Addr()),
		runtime: runtime,
	}
}

// triggerRound publishes betas into the worker's account and fires the
// compute trigger for them.
func triggerRound(t *testing.T, h *harness, round uint64, betas []float64) string {
	t.Helper()
	ctx := context.Background()

	value := worker.EncodeParams(betas)
	if err := h.chief.PublishTo(ctx, workerAccount, "betas", value); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	costKey := fmt.Sprintf("cost.%d", round)
	var ack worker.ComputeCostAck
	err := h.trigger.Call(ctx, worker.ActionComputeCost, map[string]any{
		"round":            round,
		"parameter_key":    "betas",
		"parameter_digest": digest.Payload(value).String(),
		"cost_key":         costKey,
	}, &ack)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if ack.Round != round {
		t.Errorf("ack round = %d, want %d", ack.Round, round)
	}
	return costKey
}

// awaitCost polls the chief's account until the worker's cost shows
// up.
func awaitCost(t *testing.T, h *harness, costKey string) float64 {
	t.Helper()

	result, err := h.chief.Poll(context.Background(), chiefAccount,
		detail.Filter{Writer: workerAccount, Key: costKey},
		detail.PollConfig{Interval: 5 * time.Millisecond, Attempts: 400},
		func(result map[ref.Account]map[string]string) bool {
			_, ok := result[workerAccount][costKey]
			return ok
		})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	cost, err := strconv.ParseFloat(result[workerAccount][costKey], 64)
	if err != nil {
		t.Fatalf("ParseFloat: %v", err)
	}
	return cost
}

func TestComputeRoundTrip(t *testing.T) {
	h := startHarness(t, sumCost)

	costKey := triggerRound(t, h, 1, []float64{0.25, 0.5, 0.125})
	if got := awaitCost(t, h, costKey); got != 0.875 {
		t.Errorf("cost = %v, want 0.875", got)
	}
}

func TestConsecutiveRoundsReuseTheParameterKey(t *testing.T) {
	h := startHarness(t, sumCost)

	first := triggerRound(t, h, 1, []float64{1, 2, 3})
	if got := awaitCost(t, h, first); got != 6 {
		t.Errorf("round 1 cost = %v, want 6", got)
	}

	// Round 2 overwrites "betas" in place; the digest check is what
	// keeps the worker from reading round 1 leftovers.
	second := triggerRound(t, h, 2, []float64{10, 20, 30})
	if got := awaitCost(t, h, second); got != 60 {
		t.Errorf("round 2 cost = %v, want 60", got)
	}
}

func TestWorkerWaitsForTheExpectedParameters(t *testing.T) {
	h := startHarness(t, sumCost)
	ctx := context.Background()

	// A stale value sits in the worker's account. Trigger with the
	// digest of the value that has not been written yet; the worker
	// must ignore the stale read and wait.
	stale := worker.EncodeParams([]float64{9, 9, 9})
	if err := h.chief.PublishTo(ctx, workerAccount, "betas", stale); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	fresh := worker.EncodeParams([]float64{1, 1, 1})
	var ack worker.ComputeCostAck
	err := h.trigger.Call(ctx, worker.ActionComputeCost, map[string]any{
		"round":            3,
		"parameter_key":    "betas",
		"parameter_digest": digest.Payload(fresh).String(),
		"cost_key":         "cost.3",
	}, &ack)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := h.chief.PublishTo(ctx, workerAccount, "betas", fresh); err != nil {
		t.Fatalf("PublishTo: %v", err)
	}

	if got := awaitCost(t, h, "cost.3"); got != 3 {
		t.Errorf("cost = %v, want 3", got)
	}
}

func TestFailingCostFunctionPublishesNothing(t *testing.T) {
	h := startHarness(t, func([]float64) (float64, error) {
		return 0, errors.New("observations corrupted")
	})

	costKey := triggerRound(t, h, 4, []float64{1, 2, 3})
	h.runtime.Wait()

	result, err := h.chief.Read(context.Background(), chiefAccount,
		detail.Filter{Writer: workerAccount, Key: costKey})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := result[workerAccount][costKey]; ok {
		t.Errorf("failed evaluation still published a cost: %v", result)
	}
}

func TestRejectsMalformedRequests(t *testing.T) {
	h := startHarness(t, sumCost)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"missing parameter_key", map[string]any{
			"cost_key": "cost.1", "parameter_digest": digest.Payload("x").String(),
		}},
		{"missing cost_key", map[string]any{
			"parameter_key": "betas", "parameter_digest": digest.Payload("x").String(),
		}},
		{"bad digest", map[string]any{
			"parameter_key": "betas", "cost_key": "cost.1", "parameter_digest": "zz",
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := h.trigger.Call(ctx, worker.ActionComputeCost, test.fields, nil)
			var callErr *trigger.CallError
			if !errors.As(err, &callErr) {
				t.Errorf("Call = %v, want *trigger.CallError", err)
			}
		})
	}
}

func TestEncodeDecodeParams(t *testing.T) {
	betas := []float64{0.00123, 0.00664, 0.006463}
	encoded := worker.EncodeParams(betas)
	if encoded != "0.00123,0.00664,0.006463" {
		t.Errorf("EncodeParams = %q", encoded)
	}

	decoded, err := worker.DecodeParams(encoded)
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	if len(decoded) != len(betas) {
		t.Fatalf("len = %d, want %d", len(decoded), len(betas))
	}
	for i := range betas {
		if decoded[i] != betas[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], betas[i])
		}
	}

	if _, err := worker.DecodeParams("1.0,zebra"); err == nil {
		t.Error("DecodeParams with junk succeeded, want error")
	}
}
