package solver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vault-solver/pkg/amount"
	"vault-solver/pkg/order"
	"vault-solver/pkg/portals"
)

// orderValidity is how long a signed order stays fillable. Generously
// above the polling ceiling so a live order is never expired by its own
// window mid-poll.
const orderValidity = 30 * time.Minute

// IntentSolver settles through the off-chain order book: it prices the
// trade off the metadata oracle, builds and signs an order, submits it,
// and polls until the solver network fills it on-chain (or the order
// dies).
type IntentSolver struct {
	chain  Chain
	book   OrderBook
	pricer Pricer
	poller *order.Poller

	// settlement is the on-chain contract that pulls the sell token
	// when an order fills; it is the venue's allowance target.
	settlement common.Address

	slippageBps uint32

	now   func() time.Time
	req   *ExecutionRequest
	quote *Quote

	// lastOrder is retained for status inspection after execution.
	lastOrder *order.Order
}

// NewIntentSolver builds the order-book venue.
func NewIntentSolver(c Chain, book OrderBook, pricer Pricer, poller *order.Poller, settlement common.Address, slippageBps uint32) *IntentSolver {
	return &IntentSolver{
		chain:       c,
		book:        book,
		pricer:      pricer,
		poller:      poller,
		settlement:  settlement,
		slippageBps: slippageBps,
		now:         time.Now,
	}
}

// Init validates the request and prices the order.
func (s *IntentSolver) Init(ctx context.Context, req *ExecutionRequest) (*Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IsNativeInput() {
		return nil, fmt.Errorf("%w: order book settles ERC-20 pairs only", ErrNoRoute)
	}
	s.req = req
	return s.RefreshQuote(ctx)
}

// Quote returns the cached quote, if any.
func (s *IntentSolver) Quote() *Quote { return s.quote }

// RefreshQuote reprices the order off the oracle: expectedOut is the
// input value converted at the two tokens' prices, minOut applies the
// slippage tolerance and becomes the order's buy amount.
func (s *IntentSolver) RefreshQuote(ctx context.Context) (*Quote, error) {
	if s.req == nil {
		return nil, fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}

	sellPrice, err := s.pricer.Price(ctx, s.req.ChainID, s.req.InputToken.Hex())
	if err != nil {
		return nil, normalize(err, ErrQuoteFailed)
	}
	buyPrice, err := s.pricer.Price(ctx, s.req.ChainID, s.req.OutputToken.Hex())
	if err != nil {
		return nil, normalize(err, ErrQuoteFailed)
	}
	if buyPrice.IsZero() {
		return nil, fmt.Errorf("%w: zero price for output token", ErrQuoteFailed)
	}

	in := amount.FromRaw(s.req.InputAmount, s.req.InputDecimals)
	expected := amount.FromNormalized(in.Normalized.Mul(sellPrice).Div(buyPrice), s.req.OutputDecimals)
	if expected.IsZero() {
		return nil, fmt.Errorf("%w: priced output is zero", ErrNoRoute)
	}

	s.quote = &Quote{
		Venue:       VenueIntent,
		ExpectedOut: expected,
		MinOut:      amount.ApplySlippage(expected, s.slippageBps),
		SlippageBps: s.slippageBps,
		ObtainedAt:  s.now(),
	}
	return s.quote, nil
}

// RetrieveAllowance reads the allowance toward the settlement contract.
func (s *IntentSolver) RetrieveAllowance(ctx context.Context, force bool) (amount.Amount, error) {
	if s.req == nil {
		return amount.Amount{}, fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}
	raw, err := s.chain.Allowance(ctx, s.req.From, s.settlement, s.req.InputToken, force)
	if err != nil {
		return amount.Amount{}, normalize(err, ErrRateLimited)
	}
	return amount.FromRaw(raw, s.req.InputDecimals), nil
}

// Approve grants the settlement contract an allowance over the sell
// token.
func (s *IntentSolver) Approve(ctx context.Context, amt *big.Int) error {
	if _, err := s.chain.Approve(ctx, s.req.InputToken, s.settlement, amt); err != nil {
		return normalize(err, ErrApprovalReverted)
	}
	return nil
}

// ExecuteDeposit signs and submits the order, then polls to a terminal
// status.
func (s *IntentSolver) ExecuteDeposit(ctx context.Context) (*Receipt, error) {
	return s.execute(ctx)
}

// ExecuteWithdraw signs and submits the order, then polls to a terminal
// status.
func (s *IntentSolver) ExecuteWithdraw(ctx context.Context) (*Receipt, error) {
	return s.execute(ctx)
}

// LastOrder returns the most recently executed order, if any.
func (s *IntentSolver) LastOrder() *order.Order { return s.lastOrder }

func (s *IntentSolver) execute(ctx context.Context) (*Receipt, error) {
	if s.req == nil {
		return nil, fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}
	if !s.quote.Fresh(s.now()) {
		if _, err := s.RefreshQuote(ctx); err != nil {
			return nil, err
		}
	}

	unsigned := order.Unsigned{
		ChainID:    s.req.ChainID,
		SellToken:  s.req.InputToken,
		BuyToken:   s.req.OutputToken,
		SellAmount: s.req.InputAmount,
		BuyAmount:  s.quote.MinOut.Raw,
		Receiver:   s.req.From,
		ValidTo:    s.now().Add(orderValidity),
	}

	signer := s.chain.Signer()
	if signer == nil {
		return nil, fmt.Errorf("%w: chain client is read-only", ErrNoSigner)
	}
	signature, err := signer.SignDigest(order.Digest(unsigned))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureRejected, err)
	}

	ord := order.New(unsigned)
	ord.Signature = signature
	s.lastOrder = ord

	id, err := s.book.Submit(ctx, portals.SignedOrder{
		ChainID:    unsigned.ChainID,
		SellToken:  unsigned.SellToken.Hex(),
		BuyToken:   unsigned.BuyToken.Hex(),
		SellAmount: unsigned.SellAmount.String(),
		BuyAmount:  unsigned.BuyAmount.String(),
		Receiver:   unsigned.Receiver.Hex(),
		ValidTo:    uint64(unsigned.ValidTo.Unix()),
		From:       s.req.From.Hex(),
		Signature:  hexutil.Encode(signature),
	})
	if err != nil {
		return nil, normalize(err, ErrExecutionReverted)
	}
	ord.ID = id
	if err := ord.Advance(order.Submitted); err != nil {
		return nil, err
	}

	if err := s.poller.Await(ctx, ord, s.book); err != nil {
		return nil, normalize(err, ErrOrderTimeout)
	}
	return &Receipt{Venue: VenueIntent, OrderID: id}, nil
}
