package portals

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TokenInfo is the metadata oracle's view of one token.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	PriceUSD string `json:"priceUsd"`
}

// VaultInfo describes one vault and its underlying token.
type VaultInfo struct {
	Address    string    `json:"address"`
	Symbol     string    `json:"symbol"`
	ChainID    uint64    `json:"chainId"`
	Token      TokenInfo `json:"token"`
	Decimals   uint8     `json:"decimals"`
	APRPercent string    `json:"apr"`
}

// MetaClient reads token/vault metadata and prices. It is a read-only
// oracle; nothing in the engine writes through it.
type MetaClient struct {
	baseURL string
	http    *http.Client
}

// NewMetaClient builds a client for the metadata service at baseURL.
func NewMetaClient(baseURL string, timeout time.Duration) *MetaClient {
	return &MetaClient{baseURL: baseURL, http: newHTTPClient(timeout)}
}

// Vaults lists the vaults known on a chain.
func (c *MetaClient) Vaults(ctx context.Context, chainID uint64) ([]VaultInfo, error) {
	var out []VaultInfo
	endpoint := fmt.Sprintf("%s/chains/%d/vaults", c.baseURL, chainID)
	if err := doJSON(ctx, c.http, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}
	return out, nil
}

// Token resolves one token's metadata by address.
func (c *MetaClient) Token(ctx context.Context, chainID uint64, address string) (*TokenInfo, error) {
	var out TokenInfo
	endpoint := fmt.Sprintf("%s/chains/%d/tokens/%s", c.baseURL, chainID, strings.ToLower(address))
	if err := doJSON(ctx, c.http, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get token metadata: %w", err)
	}
	return &out, nil
}

// Price returns a token's USD price as a decimal.
func (c *MetaClient) Price(ctx context.Context, chainID uint64, address string) (decimal.Decimal, error) {
	info, err := c.Token(ctx, chainID, address)
	if err != nil {
		return decimal.Zero, err
	}
	if info.PriceUSD == "" {
		return decimal.Zero, fmt.Errorf("no price for token %s", address)
	}
	price, err := decimal.NewFromString(info.PriceUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed price for token %s: %w", address, err)
	}
	return price, nil
}
