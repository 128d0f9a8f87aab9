// Copyright 2026 The BSMD Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bsmd-foundation/bsmd/lib/codec"
	"github.com/bsmd-foundation/bsmd/lib/ref"
)

// contentType is the media type for all request and response bodies.
const contentType = "application/cbor"

// maxResponseSize caps response bodies read into memory.
const maxResponseSize = 8 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// NodeURL is the base URL of the ledger node
	// (e.g. "http://127.0.0.1:8420").
	NodeURL string
	// Signer signs every transaction and query.
	Signer *Signer
	// HTTPClient is used for all requests. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client submits signed transactions and queries to a ledger node on
// behalf of one account.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	signer     *Signer
}

// NewClient creates a ledger client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.NodeURL == "" {
		return nil, fmt.Errorf("ledger: NodeURL is required")
	}
	if _, err := url.Parse(config.NodeURL); err != nil {
		return nil, fmt.Errorf("ledger: invalid NodeURL %q: %w", config.NodeURL, err)
	}
	if config.Signer == nil {
		return nil, fmt.Errorf("ledger: Signer is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.NodeURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		signer:     config.Signer,
	}, nil
}

// Account returns the account this client signs as.
func (c *Client) Account() ref.Account { return c.signer.Account() }

// Submit signs the given commands as one atomic transaction and
// submits it. Commands are validated locally first so malformed input
// fails without a network round trip.
func (c *Client) Submit(ctx context.Context, commands ...Command) (*TransactionResult, error) {
	tx, err := c.signer.NewTransaction(commands...)
	if err != nil {
		return nil, err
	}

	var result TransactionResult
	if err := c.doRequest(ctx, "/v1/transaction", tx, &result); err != nil {
		return nil, fmt.Errorf("ledger: transaction failed: %w", err)
	}
	c.logger.Debug("transaction accepted",
		"creator", c.signer.Account(),
		"commands", len(commands),
		"hash", result.Hash,
	)
	return &result, nil
}

// CreateDomain registers a new domain.
func (c *Client) CreateDomain(ctx context.Context, domain string) error {
	_, err := c.Submit(ctx, Command{CreateDomain: &CreateDomain{Domain: domain}})
	return err
}

// CreateAccount registers an account with its Ed25519 public key.
func (c *Client) CreateAccount(ctx context.Context, account ref.Account, publicKey []byte) error {
	_, err := c.Submit(ctx, Command{CreateAccount: &CreateAccount{Account: account, PublicKey: publicKey}})
	return err
}

// CreateAsset registers an asset.
func (c *Client) CreateAsset(ctx context.Context, asset ref.Asset) error {
	_, err := c.Submit(ctx, Command{CreateAsset: &CreateAsset{Asset: asset}})
	return err
}

// AddAssetQuantity mints units of an asset into the client's balance.
func (c *Client) AddAssetQuantity(ctx context.Context, asset ref.Asset, amount uint64) error {
	_, err := c.Submit(ctx, Command{AddAssetQuantity: &AddAssetQuantity{Asset: asset, Amount: amount}})
	return err
}

// TransferAsset moves units from the client's balance to destination.
func (c *Client) TransferAsset(ctx context.Context, asset ref.Asset, destination ref.Account, amount uint64, description string) error {
	_, err := c.Submit(ctx, Command{TransferAsset: &TransferAsset{
		Asset:       asset,
		Destination: destination,
		Amount:      amount,
		Description: description,
	}})
	return err
}

// SetAccountDetail writes a key/value detail into the target account.
func (c *Client) SetAccountDetail(ctx context.Context, account ref.Account, key, value string) error {
	_, err := c.Submit(ctx, Command{SetAccountDetail: &SetAccountDetail{
		Account: account,
		Key:     key,
		Value:   value,
	}})
	return err
}

// GrantPermission gives grantee a permission over the client's
// account.
func (c *Client) GrantPermission(ctx context.Context, grantee ref.Account, permission Permission) error {
	_, err := c.Submit(ctx, Command{GrantPermission: &GrantPermission{Grantee: grantee, Permission: permission}})
	return err
}

// RevokePermission removes a permission from grantee.
func (c *Client) RevokePermission(ctx context.Context, grantee ref.Account, permission Permission) error {
	_, err := c.Submit(ctx, Command{RevokePermission: &RevokePermission{Grantee: grantee, Permission: permission}})
	return err
}

// AccountDetail runs a signed GetAccountDetail query. The result maps
// writer account to key to value; a filter that matches nothing
// yields an empty map.
func (c *Client) AccountDetail(ctx context.Context, request GetAccountDetail) (map[ref.Account]map[string]string, error) {
	query, err := c.signer.NewQuery(&request, nil)
	if err != nil {
		return nil, err
	}

	var result AccountDetailResult
	if err := c.doRequest(ctx, "/v1/query", query, &result); err != nil {
		return nil, fmt.Errorf("ledger: account detail query failed: %w", err)
	}

	details := make(map[ref.Account]map[string]string, len(result.Details))
	for writerID, values := range result.Details {
		writer, err := ref.ParseAccount(writerID)
		if err != nil {
			return nil, fmt.Errorf("ledger: malformed writer in response: %w", err)
		}
		details[writer] = values
	}
	return details, nil
}

// AccountAssets runs a signed GetAccountAssets query.
func (c *Client) AccountAssets(ctx context.Context, account ref.Account) (map[ref.Asset]uint64, error) {
	query, err := c.signer.NewQuery(nil, &GetAccountAssets{Account: account})
	if err != nil {
		return nil, err
	}

	var result AccountAssetsResult
	if err := c.doRequest(ctx, "/v1/query", query, &result); err != nil {
		return nil, fmt.Errorf("ledger: account assets query failed: %w", err)
	}

	balances := make(map[ref.Asset]uint64, len(result.Balances))
	for assetID, amount := range result.Balances {
		asset, err := ref.ParseAsset(assetID)
		if err != nil {
			return nil, fmt.Errorf("ledger: malformed asset in response: %w", err)
		}
		balances[asset] = amount
	}
	return balances, nil
}

// doRequest posts a CBOR body and decodes the CBOR response into
// result. Non-2xx responses carry a LedgerError envelope.
func (c *Client) doRequest(ctx context.Context, path string, requestBody, result any) error {
	encoded, err := codec.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Content-Type", contentType)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		if result == nil {
			return nil
		}
		if err := codec.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
		return nil
	}

	// All node error responses use the same CBOR shape.
	var ledgerErr LedgerError
	if decodeErr := codec.Unmarshal(responseBody, &ledgerErr); decodeErr != nil || ledgerErr.Code == "" {
		return fmt.Errorf("unexpected %d response from %s: %q", response.StatusCode, path, responseBody)
	}
	ledgerErr.StatusCode = response.StatusCode
	return &ledgerErr
}
