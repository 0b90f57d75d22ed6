// Package upstream implements the ledger's collaborator interfaces against the
// node's JSON HTTP API: oracle prices, share token balances, pool bank
// balances, the role registry and the governance pause switches.
package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"redbank/redbank"
)

// Config describes how to reach the node API.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Log       *slog.Logger
}

// Client is a read-only JSON HTTP client for the node API. It implements
// redbank.Oracle, redbank.TokenSource, redbank.BankSource, redbank.Registry
// and redbank.PauseView.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   *slog.Logger
}

// New builds a client from cfg.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("upstream: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("upstream: invalid base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:  base,
		token: strings.TrimSpace(cfg.AuthToken),
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}, nil
}

func (c *Client) get(path string, dst any) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream: %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("upstream: invalid integer %q", s)
	}
	return v, nil
}

// PriceOf returns the oracle price of asset in the common quote unit.
func (c *Client) PriceOf(asset redbank.Asset) (*big.Int, error) {
	var out struct {
		Price string `json:"price"`
	}
	if err := c.get("/v1/oracle/prices/"+url.PathEscape(asset.Label()), &out); err != nil {
		return nil, err
	}
	return parseBig(out.Price)
}

// BalanceOf returns account's balance in the share token contract.
func (c *Client) BalanceOf(token, account common.Address) (*big.Int, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	path := "/v1/tokens/" + token.Hex() + "/balances/" + account.Hex()
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return parseBig(out.Balance)
}

// TotalSupply returns the share token's total supply.
func (c *Client) TotalSupply(token common.Address) (*big.Int, error) {
	var out struct {
		Supply string `json:"supply"`
	}
	if err := c.get("/v1/tokens/"+token.Hex()+"/supply", &out); err != nil {
		return nil, err
	}
	return parseBig(out.Supply)
}

// AssetBalance returns holder's on-hand balance of the underlying asset.
func (c *Client) AssetBalance(asset redbank.Asset, holder common.Address) (*big.Int, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	path := "/v1/bank/" + url.PathEscape(asset.Label()) + "/balances/" + holder.Hex()
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return parseBig(out.Balance)
}

// Resolve returns the address registered for a role name.
func (c *Client) Resolve(role string) (common.Address, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := c.get("/v1/registry/roles/"+url.PathEscape(role), &out); err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(strings.TrimSpace(out.Address)) {
		return common.Address{}, fmt.Errorf("upstream: role %s resolved to invalid address %q", role, out.Address)
	}
	return common.HexToAddress(strings.TrimSpace(out.Address)), nil
}

// IsPaused reports the governance pause switch for action. Lookup failures
// read as paused so a broken control plane halts writes instead of letting
// them through unchecked.
func (c *Client) IsPaused(action string) bool {
	var out struct {
		Paused bool `json:"paused"`
	}
	if err := c.get("/v1/pauses/"+url.PathEscape(action), &out); err != nil {
		c.log.Warn("pause lookup failed", "action", action, "error", err)
		return true
	}
	return out.Paused
}
