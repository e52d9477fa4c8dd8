package portals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// EstimateRequest describes a swap-and-deposit route to price. For
// cross-chain routes ToChainID differs from ChainID and must be sent so
// the aggregator does not price it as a same-chain hop.
type EstimateRequest struct {
	ChainID      uint64
	ToChainID    uint64
	InputToken   string
	OutputToken  string
	InputAmount  string
	FromAddress  string
	SlippageBps  uint32
	Deposit      bool
	VaultAddress string
}

// Estimate is the aggregator's quote. A non-empty Error means no route
// could be priced and the figures must not be used.
type Estimate struct {
	OutputToken         string `json:"outputToken"`
	OutputAmount        string `json:"outputAmount"`
	MinOutputAmount     string `json:"minOutputAmount"`
	OutputTokenDecimals uint8  `json:"outputTokenDecimals"`
	Error               string `json:"error,omitempty"`
}

// Approval is the aggregator's answer to "does this route need an
// ERC-20 approval first, and to whom".
type Approval struct {
	ShouldApprove bool   `json:"shouldApprove"`
	Spender       string `json:"spender"`
	Allowance     string `json:"allowance"`
	Error         string `json:"error,omitempty"`
}

// TxPayload is the ready-to-broadcast transaction the aggregator built.
// The engine submits it as-is and never recomputes calldata.
type TxPayload struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit uint64 `json:"gasLimit"`
	Error    string `json:"error,omitempty"`
}

// RouterClient talks to the zap aggregator's estimate/approval/
// transaction endpoints.
type RouterClient struct {
	baseURL string
	http    *http.Client
}

// NewRouterClient builds a client for the aggregator at baseURL.
func NewRouterClient(baseURL string, timeout time.Duration) *RouterClient {
	return &RouterClient{baseURL: baseURL, http: newHTTPClient(timeout)}
}

func (c *RouterClient) query(req EstimateRequest) url.Values {
	q := url.Values{}
	q.Set("chainId", fmt.Sprintf("%d", req.ChainID))
	if req.ToChainID != 0 && req.ToChainID != req.ChainID {
		q.Set("toChainId", fmt.Sprintf("%d", req.ToChainID))
	}
	q.Set("inputToken", req.InputToken)
	q.Set("outputToken", req.OutputToken)
	q.Set("amount", req.InputAmount)
	q.Set("from", req.FromAddress)
	q.Set("slippage", fmt.Sprintf("%d", req.SlippageBps))
	if req.VaultAddress != "" {
		q.Set("vault", req.VaultAddress)
	}
	if req.Deposit {
		q.Set("side", "deposit")
	} else {
		q.Set("side", "withdraw")
	}
	return q
}

// Estimate prices the route.
func (c *RouterClient) Estimate(ctx context.Context, req EstimateRequest) (*Estimate, error) {
	var out Estimate
	endpoint := c.baseURL + "/estimate?" + c.query(req).Encode()
	if err := doJSON(ctx, c.http, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get estimate: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("aggregator error: %s", out.Error)
	}
	return &out, nil
}

// Approval asks whether the route requires an approval and which spender
// to approve.
func (c *RouterClient) Approval(ctx context.Context, req EstimateRequest) (*Approval, error) {
	var out Approval
	endpoint := c.baseURL + "/approval?" + c.query(req).Encode()
	if err := doJSON(ctx, c.http, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get approval info: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("aggregator error: %s", out.Error)
	}
	return &out, nil
}

// Transaction fetches the transaction payload for the route.
func (c *RouterClient) Transaction(ctx context.Context, req EstimateRequest) (*TxPayload, error) {
	var out TxPayload
	endpoint := c.baseURL + "/transaction?" + c.query(req).Encode()
	if err := doJSON(ctx, c.http, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get transaction payload: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("aggregator error: %s", out.Error)
	}
	return &out, nil
}
