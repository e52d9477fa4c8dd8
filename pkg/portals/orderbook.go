package portals

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Order book statuses as returned by the API.
const (
	OrderStatusFulfilled = "fulfilled"
	OrderStatusCancelled = "cancelled"
	OrderStatusExpired   = "expired"
	OrderStatusOpen      = "open"
)

// SignedOrder is the wire form of a signed intent order.
type SignedOrder struct {
	ChainID    uint64 `json:"chainId"`
	SellToken  string `json:"sellToken"`
	BuyToken   string `json:"buyToken"`
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
	Receiver   string `json:"receiver"`
	ValidTo    uint64 `json:"validTo"`
	From       string `json:"from"`
	Signature  string `json:"signature"`
}

type submitResponse struct {
	OrderID string `json:"orderId"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// OrderBookClient talks to the off-chain intent order book.
type OrderBookClient struct {
	baseURL string
	http    *http.Client
}

// NewOrderBookClient builds a client for the order book at baseURL.
func NewOrderBookClient(baseURL string, timeout time.Duration) *OrderBookClient {
	return &OrderBookClient{baseURL: baseURL, http: newHTTPClient(timeout)}
}

// Submit posts a signed order and returns the order id assigned by the
// book.
func (c *OrderBookClient) Submit(ctx context.Context, order SignedOrder) (string, error) {
	var out submitResponse
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/orders", order, &out); err != nil {
		return "", fmt.Errorf("failed to submit order: %w", err)
	}
	if out.OrderID == "" {
		return "", fmt.Errorf("order book returned no order id")
	}
	return out.OrderID, nil
}

// Status fetches the current status of an order by id.
func (c *OrderBookClient) Status(ctx context.Context, orderID string) (string, error) {
	var out statusResponse
	if err := doJSON(ctx, c.http, http.MethodGet, c.baseURL+"/orders/"+orderID, nil, &out); err != nil {
		return "", fmt.Errorf("failed to get order status: %w", err)
	}
	return out.Status, nil
}
