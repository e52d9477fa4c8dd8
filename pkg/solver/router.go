package solver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vault-solver/pkg/amount"
	"vault-solver/pkg/portals"
)

// Gas floor assumed for a zap when sizing a native MAX deposit; the
// reserve math takes the larger of this and the node's estimate, times
// gas price plus the 20% buffer.
const zapGasLimit = 500_000

// RouterSolver settles through the external zap aggregator: it swaps
// the input token en route to the vault (or out of it) using the
// aggregator's quoted route, and submits the aggregator's transaction
// payload as-is. Calldata is never recomputed locally.
type RouterSolver struct {
	chain       Chain
	api         RouterAPI
	slippageBps uint32

	now      func() time.Time
	req      *ExecutionRequest
	quote    *Quote
	estimate *portals.Estimate
	approval *portals.Approval

	// effectiveInput is the request amount after any native MAX gas
	// reserve deduction.
	effectiveInput *big.Int
}

// NewRouterSolver builds the zap venue. slippageBps is the client-side
// tolerance; zero means trust the aggregator's own minimum alone.
func NewRouterSolver(c Chain, api RouterAPI, slippageBps uint32) *RouterSolver {
	return &RouterSolver{chain: c, api: api, slippageBps: slippageBps, now: time.Now}
}

// Init validates the request, sizes native MAX deposits, and fetches
// the first estimate.
func (s *RouterSolver) Init(ctx context.Context, req *ExecutionRequest) (*Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.req = req
	s.effectiveInput = new(big.Int).Set(req.InputAmount)

	if req.IsNativeInput() && req.SpendFullBalance {
		sized, err := s.sizeNativeMax(ctx)
		if err != nil {
			return nil, err
		}
		if sized.Sign() == 0 {
			return nil, fmt.Errorf("%w: balance does not cover the gas reserve", ErrNoRoute)
		}
		s.effectiveInput = sized
	}

	return s.RefreshQuote(ctx)
}

// sizeNativeMax deducts an estimated gas reserve from the full native
// balance so execution cannot strand the account without gas.
func (s *RouterSolver) sizeNativeMax(ctx context.Context) (*big.Int, error) {
	balance, err := s.chain.NativeBalance(ctx, s.req.From)
	if err != nil {
		return nil, normalize(err, ErrRateLimited)
	}
	gasPrice, err := s.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, normalize(err, ErrQuoteFailed)
	}

	// The zap payload does not exist before the route is priced, so the
	// node estimates a bare native send to the vault. The reserve never
	// shrinks below the zap ceiling: under-reserving strands the account.
	gasLimit := uint64(zapGasLimit)
	if est, estErr := s.chain.EstimateDepositGas(ctx, s.vaultAddress(), balance, nil); estErr == nil && est > gasLimit {
		gasLimit = est
	}

	reserve := amount.GasReserve(gasLimit, gasPrice)
	return amount.DeductReserve(balance, reserve), nil
}

// Quote returns the cached quote, if any.
func (s *RouterSolver) Quote() *Quote { return s.quote }

// RefreshQuote re-requests the estimate and recomputes minOut.
func (s *RouterSolver) RefreshQuote(ctx context.Context) (*Quote, error) {
	if s.req == nil {
		return nil, fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}

	est, err := s.api.Estimate(ctx, s.estimateRequest())
	if err != nil {
		return nil, normalize(err, ErrQuoteFailed)
	}

	expectedRaw, ok := new(big.Int).SetString(est.OutputAmount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: malformed output amount %q", ErrQuoteFailed, est.OutputAmount)
	}
	expected := amount.FromRaw(expectedRaw, est.OutputTokenDecimals)

	minOut, err := s.conservativeMinOut(expected, est.MinOutputAmount)
	if err != nil {
		return nil, err
	}

	s.estimate = est
	s.quote = &Quote{
		Venue:       VenueRouter,
		ExpectedOut: expected,
		MinOut:      minOut,
		SlippageBps: s.slippageBps,
		ObtainedAt:  s.now(),
	}
	return s.quote, nil
}

// conservativeMinOut picks the smaller of the aggregator's minimum and
// the locally computed slippage floor, so the protection is never
// looser than either figure. With only one figure present, that one
// wins.
func (s *RouterSolver) conservativeMinOut(expected amount.Amount, aggregatorMin string) (amount.Amount, error) {
	var aggMin *big.Int
	if aggregatorMin != "" {
		parsed, ok := new(big.Int).SetString(aggregatorMin, 10)
		if !ok {
			return amount.Amount{}, fmt.Errorf("%w: malformed min output amount %q", ErrQuoteFailed, aggregatorMin)
		}
		aggMin = parsed
	}

	var localMin *big.Int
	if s.slippageBps > 0 {
		localMin = amount.ApplySlippage(expected, s.slippageBps).Raw
	}

	switch {
	case aggMin != nil && localMin != nil:
		if localMin.Cmp(aggMin) < 0 {
			return amount.FromRaw(localMin, expected.Decimals), nil
		}
		return amount.FromRaw(aggMin, expected.Decimals), nil
	case aggMin != nil:
		return amount.FromRaw(aggMin, expected.Decimals), nil
	case localMin != nil:
		return amount.FromRaw(localMin, expected.Decimals), nil
	default:
		return expected, nil
	}
}

func (s *RouterSolver) estimateRequest() portals.EstimateRequest {
	return portals.EstimateRequest{
		ChainID:      s.req.ChainID,
		ToChainID:    s.req.DestChainID,
		InputToken:   s.req.InputToken.Hex(),
		OutputToken:  s.req.OutputToken.Hex(),
		InputAmount:  s.effectiveInput.String(),
		FromAddress:  s.req.From.Hex(),
		SlippageBps:  s.slippageBps,
		Deposit:      s.req.Direction == Deposit,
		VaultAddress: s.vaultAddress().Hex(),
	}
}

func (s *RouterSolver) vaultAddress() common.Address {
	if s.req.Direction == Deposit {
		return s.req.OutputToken
	}
	return s.req.InputToken
}

// fetchApproval asks the aggregator which spender (if any) this route
// needs approved, caching the answer for the request's lifetime.
func (s *RouterSolver) fetchApproval(ctx context.Context) (*portals.Approval, error) {
	if s.approval != nil {
		return s.approval, nil
	}
	approval, err := s.api.Approval(ctx, s.estimateRequest())
	if err != nil {
		return nil, normalize(err, ErrQuoteFailed)
	}
	s.approval = approval
	return approval, nil
}

// RetrieveAllowance reads the allowance toward the aggregator's
// spender. Routes that need no approval (native input) report
// unlimited.
func (s *RouterSolver) RetrieveAllowance(ctx context.Context, force bool) (amount.Amount, error) {
	if s.req == nil {
		return amount.Amount{}, fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}
	if s.req.IsNativeInput() {
		return amount.FromRaw(amount.MaxUint256, s.req.InputDecimals), nil
	}

	approval, err := s.fetchApproval(ctx)
	if err != nil {
		return amount.Amount{}, err
	}
	if !approval.ShouldApprove {
		return amount.FromRaw(amount.MaxUint256, s.req.InputDecimals), nil
	}

	raw, err := s.chain.Allowance(ctx, s.req.From, common.HexToAddress(approval.Spender), s.req.InputToken, force)
	if err != nil {
		return amount.Amount{}, normalize(err, ErrRateLimited)
	}
	return amount.FromRaw(raw, s.req.InputDecimals), nil
}

// Approve grants the aggregator's spender an allowance over the input
// token.
func (s *RouterSolver) Approve(ctx context.Context, amt *big.Int) error {
	if s.req.IsNativeInput() {
		return nil
	}
	approval, err := s.fetchApproval(ctx)
	if err != nil {
		return err
	}
	if !approval.ShouldApprove {
		return nil
	}
	if _, err := s.chain.Approve(ctx, s.req.InputToken, common.HexToAddress(approval.Spender), amt); err != nil {
		return normalize(err, ErrApprovalReverted)
	}
	return nil
}

// ExecuteDeposit fetches the aggregator's transaction payload and
// submits it unchanged.
func (s *RouterSolver) ExecuteDeposit(ctx context.Context) (*Receipt, error) {
	return s.execute(ctx)
}

// ExecuteWithdraw fetches the aggregator's transaction payload and
// submits it unchanged.
func (s *RouterSolver) ExecuteWithdraw(ctx context.Context) (*Receipt, error) {
	return s.execute(ctx)
}

func (s *RouterSolver) execute(ctx context.Context) (*Receipt, error) {
	if s.req == nil {
		return nil, fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}
	if !s.quote.Fresh(s.now()) {
		if _, err := s.RefreshQuote(ctx); err != nil {
			return nil, err
		}
	}

	payload, err := s.api.Transaction(ctx, s.estimateRequest())
	if err != nil {
		return nil, normalize(err, ErrQuoteFailed)
	}

	to := common.HexToAddress(payload.To)
	value := big.NewInt(0)
	if payload.Value != "" {
		parsed, ok := new(big.Int).SetString(payload.Value, 10)
		if !ok {
			return nil, fmt.Errorf("%w: malformed tx value %q", ErrQuoteFailed, payload.Value)
		}
		value = parsed
	}
	data, err := hexutil.Decode(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed tx data: %v", ErrQuoteFailed, err)
	}

	hash, err := s.chain.Submit(ctx, to, value, data, payload.GasLimit)
	if err != nil {
		return nil, normalize(err, ErrExecutionReverted)
	}
	return &Receipt{Venue: VenueRouter, TxHash: hash}, nil
}
