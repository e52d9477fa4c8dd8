// Package solver turns a user's deposit/withdraw intent into a settled
// on-chain (or off-chain-order) outcome. Each settlement venue
// implements the one Solver contract; the Orchestrator sequences
// allowance, approval and execution uniformly across them.
package solver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"vault-solver/pkg/amount"
	"vault-solver/pkg/chain"
	"vault-solver/pkg/portals"
)

// NativeToken is the conventional placeholder address for the chain's
// native asset.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Venue identifies a settlement venue.
type Venue int

const (
	VenueVanilla Venue = iota
	VenueRouter
	VenueIntent
)

func (v Venue) String() string {
	switch v {
	case VenueVanilla:
		return "vanilla"
	case VenueRouter:
		return "router"
	case VenueIntent:
		return "intent"
	default:
		return fmt.Sprintf("venue(%d)", int(v))
	}
}

// Direction says which way value moves relative to the vault.
type Direction int

const (
	Deposit Direction = iota
	Withdraw
)

func (d Direction) String() string {
	if d == Withdraw {
		return "withdraw"
	}
	return "deposit"
}

// ExecutionRequest is one user action. It is built once and reused
// unchanged for quoting, approval and execution so the three steps can
// never drift apart. DestChainID is zero for same-chain routes.
type ExecutionRequest struct {
	ChainID     uint64
	DestChainID uint64
	From        common.Address
	InputToken  common.Address
	OutputToken common.Address
	InputAmount *big.Int
	Direction   Direction

	InputDecimals  uint8
	OutputDecimals uint8

	// SpendFullBalance marks a native MAX deposit; the venue must hold
	// back a gas reserve before quoting.
	SpendFullBalance bool

	// Optional hop targets for migrations and staking flows.
	Migrator    common.Address
	StakingPool common.Address
}

// Validate rejects requests that must never reach the network: zero
// addresses or a zero amount.
func (r *ExecutionRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if r.InputToken == (common.Address{}) {
		return fmt.Errorf("%w: zero input token", ErrInvalidRequest)
	}
	if r.OutputToken == (common.Address{}) {
		return fmt.Errorf("%w: zero output token", ErrInvalidRequest)
	}
	if r.From == (common.Address{}) {
		return fmt.Errorf("%w: zero sender", ErrInvalidRequest)
	}
	if r.InputAmount == nil || r.InputAmount.Sign() <= 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidRequest)
	}
	return nil
}

// IsNativeInput reports whether the input is the chain's native asset.
func (r *ExecutionRequest) IsNativeInput() bool {
	return r.InputToken == NativeToken
}

// Per-venue quote freshness windows. A vanilla quote is pure arithmetic
// and never goes stale; priced quotes do.
const (
	routerQuoteTTL = 30 * time.Second
	intentQuoteTTL = 60 * time.Second
)

// Quote is an expected-output estimate for one request on one venue.
type Quote struct {
	Venue       Venue
	ExpectedOut amount.Amount
	MinOut      amount.Amount
	SlippageBps uint32
	ObtainedAt  time.Time
}

// Fresh reports whether the quote may still be executed without a
// refresh.
func (q *Quote) Fresh(now time.Time) bool {
	if q == nil {
		return false
	}
	switch q.Venue {
	case VenueRouter:
		return now.Sub(q.ObtainedAt) < routerQuoteTTL
	case VenueIntent:
		return now.Sub(q.ObtainedAt) < intentQuoteTTL
	default:
		return true
	}
}

// Receipt is the terminal artifact of a settled action: a transaction
// hash for on-chain venues, an order id for the intent venue.
type Receipt struct {
	Venue   Venue
	TxHash  common.Hash
	OrderID string
}

// Solver is the uniform venue contract. Init validates and quotes;
// execution resolves only once the venue's completion signal (receipt
// or terminal order status) has been observed.
type Solver interface {
	Init(ctx context.Context, req *ExecutionRequest) (*Quote, error)
	Quote() *Quote
	RefreshQuote(ctx context.Context) (*Quote, error)
	RetrieveAllowance(ctx context.Context, force bool) (amount.Amount, error)
	Approve(ctx context.Context, amt *big.Int) error
	ExecuteDeposit(ctx context.Context) (*Receipt, error)
	ExecuteWithdraw(ctx context.Context) (*Receipt, error)
}

// Chain is the on-chain client surface the venues need. *chain.Client
// implements it; tests substitute fakes.
type Chain interface {
	ChainID() uint64
	Signer() chain.Signer
	Allowance(ctx context.Context, owner, spender, token common.Address, force bool) (*big.Int, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateDepositGas(ctx context.Context, to common.Address, value *big.Int, data []byte) (uint64, error)
	Approve(ctx context.Context, token, spender common.Address, amt *big.Int) (common.Hash, error)
	Submit(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (common.Hash, error)
}

// RouterAPI is the zap aggregator surface. *portals.RouterClient
// implements it.
type RouterAPI interface {
	Estimate(ctx context.Context, req portals.EstimateRequest) (*portals.Estimate, error)
	Approval(ctx context.Context, req portals.EstimateRequest) (*portals.Approval, error)
	Transaction(ctx context.Context, req portals.EstimateRequest) (*portals.TxPayload, error)
}

// OrderBook is the intent order book surface. *portals.OrderBookClient
// implements it.
type OrderBook interface {
	Submit(ctx context.Context, order portals.SignedOrder) (string, error)
	Status(ctx context.Context, orderID string) (string, error)
}

// Pricer supplies token prices for venues that quote off an oracle.
// *portals.MetaClient implements it.
type Pricer interface {
	Price(ctx context.Context, chainID uint64, token string) (decimal.Decimal, error)
}
