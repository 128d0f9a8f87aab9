// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for BSMD components.
//
// Configuration is loaded from a single YAML file specified by:
//   - BSMD_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// One file can configure every component of a deployment; each binary
// reads only the sections it needs and validates those.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bsmd-foundation/bsmd/lib/ref"
)

// Config is the master configuration for a BSMD deployment.
type Config struct {
	// Ledger configures how this node reaches the ledger.
	Ledger LedgerConfig `yaml:"ledger"`

	// Identity is the signing identity this node acts as.
	Identity IdentityConfig `yaml:"identity"`

	// Node configures the ledger node process (bsmd-ledger only).
	Node NodeConfig `yaml:"node"`

	// Worker configures the worker runtime (bsmd-worker only).
	Worker WorkerConfig `yaml:"worker"`

	// Anneal configures the annealing coordinator (bsmd-anneal only).
	Anneal AnnealConfig `yaml:"anneal"`
}

// LedgerConfig configures the ledger client.
type LedgerConfig struct {
	// URL is the ledger node's HTTP base URL.
	// Example: http://127.0.0.1:8420
	URL string `yaml:"url"`

	// Timeout bounds each transaction or query round trip.
	// Default: 30s
	Timeout string `yaml:"timeout"`
}

// IdentityConfig configures the node's signing identity.
type IdentityConfig struct {
	// Account is the ledger account this process signs as,
	// in "name@domain" form.
	Account ref.Account `yaml:"account"`

	// KeyFile is the path to the age-encrypted Ed25519 key file.
	KeyFile string `yaml:"key_file"`

	// PassphraseFile is an optional path to a file holding the key
	// passphrase. When empty the binary prompts on the terminal.
	PassphraseFile string `yaml:"passphrase_file,omitempty"`
}

// NodeConfig configures the ledger node process.
type NodeConfig struct {
	// Listen is the HTTP listen address.
	// Default: 127.0.0.1:8420
	Listen string `yaml:"listen"`

	// Database is the path to the SQLite database file.
	Database string `yaml:"database"`

	// Genesis seeds the ledger on first start. Every transaction
	// must be signed by an existing account, so at least one account
	// has to exist before the first transaction arrives.
	Genesis GenesisConfig `yaml:"genesis"`
}

// GenesisConfig seeds domains and accounts into an empty ledger.
type GenesisConfig struct {
	// Domains lists domains to create. Domains referenced by
	// Accounts are created implicitly.
	Domains []string `yaml:"domains,omitempty"`

	// Accounts lists the initial accounts with their hex-encoded
	// Ed25519 public keys.
	Accounts []GenesisAccount `yaml:"accounts"`
}

// GenesisAccount is one seeded account.
type GenesisAccount struct {
	Account   ref.Account `yaml:"account"`
	PublicKey string      `yaml:"public_key"`
}

// WorkerConfig configures the worker runtime.
type WorkerConfig struct {
	// Listen is the trigger listen address, either "host:port" or
	// "unix:/path/to.sock".
	Listen string `yaml:"listen"`

	// Coordinator is the account allowed to trigger this worker and
	// the destination for published costs.
	Coordinator ref.Account `yaml:"coordinator"`

	// Observations is the path to the CSV observation file the cost
	// function evaluates against.
	Observations string `yaml:"observations"`

	// PollInterval is the delay between detail reads while waiting
	// for the coordinator's parameters to become visible.
	// Default: 200ms
	PollInterval string `yaml:"poll_interval"`

	// PollAttempts bounds the visibility polling loop.
	// Default: 25
	PollAttempts int `yaml:"poll_attempts"`
}

// AnnealWorker names one worker the coordinator drives.
type AnnealWorker struct {
	// Account is the worker's ledger account.
	Account ref.Account `yaml:"account"`

	// Trigger is the worker's trigger address, "host:port" or
	// "unix:/path/to.sock".
	Trigger string `yaml:"trigger"`
}

// AnnealConfig configures the annealing coordinator.
type AnnealConfig struct {
	// Workers lists the worker nodes, in fan-out order.
	Workers []AnnealWorker `yaml:"workers"`

	// InitialTemperature is the starting temperature.
	// Default: 1.0
	InitialTemperature float64 `yaml:"initial_temperature"`

	// MinimumTemperature terminates the schedule once the
	// temperature cools below it. Default: 0.00001
	MinimumTemperature float64 `yaml:"minimum_temperature"`

	// CoolingRate multiplies the temperature after each completed
	// temperature level. Must be in (0, 1). Default: 0.9
	CoolingRate float64 `yaml:"cooling_rate"`

	// IterationsPerTemperature is the number of proposal rounds at
	// each temperature level. Default: 500
	IterationsPerTemperature int `yaml:"iterations_per_temperature"`

	// Dimensions is the length of the shared parameter vector.
	Dimensions int `yaml:"dimensions"`

	// CollectTimeout bounds how long one round may wait for all
	// worker costs before the round is abandoned. Default: 30s
	CollectTimeout string `yaml:"collect_timeout"`

	// PollInterval is the delay between cost reads during COLLECT.
	// Default: 500ms
	PollInterval string `yaml:"poll_interval"`

	// TrajectoryFile is an optional path for the compressed JSONL
	// trajectory log. Empty disables trajectory recording.
	TrajectoryFile string `yaml:"trajectory_file,omitempty"`

	// Seed seeds the proposal and acceptance RNG. Zero means seed
	// from entropy.
	Seed int64 `yaml:"seed,omitempty"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback; the
// config file is required.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			URL:     "http://127.0.0.1:8420",
			Timeout: "30s",
		},
		Node: NodeConfig{
			Listen: "127.0.0.1:8420",
		},
		Worker: WorkerConfig{
			PollInterval: "200ms",
			PollAttempts: 25,
		},
		Anneal: AnnealConfig{
			InitialTemperature:       1.0,
			MinimumTemperature:       0.00001,
			CoolingRate:              0.9,
			IterationsPerTemperature: 500,
			CollectTimeout:           "30s",
			PollInterval:             "500ms",
		},
	}
}

// Load loads configuration from the BSMD_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults; if BSMD_CONFIG is not
// set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("BSMD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BSMD_CONFIG environment variable not set; " +
			"set it to the path of your bsmd.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// Default(). The config file is the single source of truth;
// environment variables do not override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateLedger checks the ledger and identity sections. Every
// binary that talks to the ledger calls this.
func (c *Config) ValidateLedger() error {
	var errs []error

	if c.Ledger.URL == "" {
		errs = append(errs, fmt.Errorf("ledger.url is required"))
	}
	if _, err := time.ParseDuration(c.Ledger.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("ledger.timeout: %w", err))
	}
	if c.Identity.Account.IsZero() {
		errs = append(errs, fmt.Errorf("identity.account is required"))
	}
	if c.Identity.KeyFile == "" {
		errs = append(errs, fmt.Errorf("identity.key_file is required"))
	}

	return errors.Join(errs...)
}

// ValidateNode checks the ledger node section.
func (c *Config) ValidateNode() error {
	var errs []error

	if c.Node.Listen == "" {
		errs = append(errs, fmt.Errorf("node.listen is required"))
	}
	if c.Node.Database == "" {
		errs = append(errs, fmt.Errorf("node.database is required"))
	}
	for i, account := range c.Node.Genesis.Accounts {
		if account.Account.IsZero() {
			errs = append(errs, fmt.Errorf("node.genesis.accounts[%d].account is required", i))
		}
		if account.PublicKey == "" {
			errs = append(errs, fmt.Errorf("node.genesis.accounts[%d].public_key is required", i))
		}
	}

	return errors.Join(errs...)
}

// ValidateWorker checks the worker section.
func (c *Config) ValidateWorker() error {
	var errs []error

	if c.Worker.Listen == "" {
		errs = append(errs, fmt.Errorf("worker.listen is required"))
	}
	if c.Worker.Coordinator.IsZero() {
		errs = append(errs, fmt.Errorf("worker.coordinator is required"))
	}
	if c.Worker.Observations == "" {
		errs = append(errs, fmt.Errorf("worker.observations is required"))
	}
	if _, err := time.ParseDuration(c.Worker.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("worker.poll_interval: %w", err))
	}
	if c.Worker.PollAttempts <= 0 {
		errs = append(errs, fmt.Errorf("worker.poll_attempts must be positive"))
	}

	return errors.Join(errs...)
}

// ValidateAnneal checks the annealing coordinator section.
func (c *Config) ValidateAnneal() error {
	var errs []error

	if len(c.Anneal.Workers) == 0 {
		errs = append(errs, fmt.Errorf("anneal.workers must list at least one worker"))
	}
	for i, worker := range c.Anneal.Workers {
		if worker.Account.IsZero() {
			errs = append(errs, fmt.Errorf("anneal.workers[%d].account is required", i))
		}
		if worker.Trigger == "" {
			errs = append(errs, fmt.Errorf("anneal.workers[%d].trigger is required", i))
		}
	}
	if c.Anneal.InitialTemperature <= 0 {
		errs = append(errs, fmt.Errorf("anneal.initial_temperature must be positive"))
	}
	if c.Anneal.MinimumTemperature <= 0 {
		errs = append(errs, fmt.Errorf("anneal.minimum_temperature must be positive"))
	}
	if c.Anneal.CoolingRate <= 0 || c.Anneal.CoolingRate >= 1 {
		errs = append(errs, fmt.Errorf("anneal.cooling_rate must be in (0, 1)"))
	}
	if c.Anneal.IterationsPerTemperature <= 0 {
		errs = append(errs, fmt.Errorf("anneal.iterations_per_temperature must be positive"))
	}
	if c.Anneal.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("anneal.dimensions must be positive"))
	}
	if _, err := time.ParseDuration(c.Anneal.CollectTimeout); err != nil {
		errs = append(errs, fmt.Errorf("anneal.collect_timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.Anneal.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("anneal.poll_interval: %w", err))
	}

	return errors.Join(errs...)
}

// Duration parses a duration field already checked by a Validate
// method. Panics on malformed input so misuse fails loudly in tests.
func Duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic("config: Duration called on unvalidated field: " + err.Error())
	}
	return d
}
