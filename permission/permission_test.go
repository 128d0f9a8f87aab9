// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package permission_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bsmd-foundation/bsmd/lib/keys"
	"github.com/bsmd-foundation/bsmd/lib/ref"
	"github.com/bsmd-foundation/bsmd/ledger"
	"github.com/bsmd-foundation/bsmd/ledger/node"
	"github.com/bsmd-foundation/bsmd/permission"
)

var (
	chiefAccount  = ref.MustAccount("chief", "transit")
	workerAccount = ref.MustAccount("worker1", "transit")
)

func startClients(t *testing.T) (chief, worker *ledger.Client) {
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
	return newClient(chiefAccount, chiefKeys), newClient(workerAccount, workerKeys)
}

func TestGrantEnablesPeerWrites(t *testing.T) {
	chief, worker := startClients(t)
	registry := permission.NewRegistry(chief, nil)
	ctx := context.Background()

	if err := registry.Grant(ctx, workerAccount); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !registry.Granted(workerAccount) {
		t.Error("Granted = false after successful grant")
	}

	if err := worker.SetAccountDetail(ctx, chiefAccount, "cost.1", "3.5"); err != nil {
		t.Errorf("granted write: %v", err)
	}
}

func TestRepeatedGrantIsIdempotent(t *testing.T) {
	chief, _ := startClients(t)
	registry := permission.NewRegistry(chief, nil)
	ctx := context.Background()

	for range 3 {
		if err := registry.Grant(ctx, workerAccount); err != nil {
			t.Fatalf("Grant: %v", err)
		}
	}
}

func TestRevokeRestoresDenial(t *testing.T) {
	chief, worker := startClients(t)
	registry := permission.NewRegistry(chief, nil)
	ctx := context.Background()

	if err := registry.Grant(ctx, workerAccount); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := registry.Revoke(ctx, workerAccount); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if registry.Granted(workerAccount) {
		t.Error("Granted = true after revoke")
	}

	err := worker.SetAccountDetail(ctx, chiefAccount, "cost.2", "1")
	if !ledger.IsLedgerError(err, ledger.ErrCodePermissionDenied) {
		t.Errorf("write after revoke = %v, want PERMISSION_DENIED", err)
	}
}

func TestRevokeWithoutPriorGrantSucceeds(t *testing.T) {
	chief, _ := startClients(t)
	registry := permission.NewRegistry(chief, nil)

	if err := registry.Revoke(context.Background(), workerAccount); err != nil {
		t.Errorf("Revoke without grant: %v", err)
	}
}

func TestFailedGrantIsNotCached(t *testing.T) {
	chief, _ := startClients(t)
	registry := permission.NewRegistry(chief, nil)

	ghost := ref.MustAccount("ghost", "transit")
	if err := registry.Grant(context.Background(), ghost); err == nil {
		t.Fatal("Grant to missing account succeeded, want error")
	}
	if registry.Granted(ghost) {
		t.Error("failed grant left a cached entry")
	}
}

func TestGrantAllStopsAtFirstFailure(t *testing.T) {
	chief, _ := startClients(t)
	registry := permission.NewRegistry(chief, nil)

	ghost := ref.MustAccount("ghost", "transit")
	err := registry.GrantAll(context.Background(), workerAccount, ghost)
	if err == nil {
		t.Fatal("GrantAll with missing account succeeded, want error")
	}
	if !registry.Granted(workerAccount) {
		t.Error("grant before the failure was not applied")
	}
}
