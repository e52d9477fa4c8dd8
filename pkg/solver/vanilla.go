package solver

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vault-solver/pkg/amount"
)

// Vault entry points for direct settlement
const vaultABIJSON = `[
	{"constant":false,"inputs":[{"name":"_amount","type":"uint256"}],"name":"deposit","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_shares","type":"uint256"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// Wrapper used for native-asset deposits: wraps the sent value and
// forwards it into the vault in one call.
const nativeWrapperABIJSON = `[
	{"constant":false,"inputs":[{"name":"_vault","type":"address"}],"name":"deposit","outputs":[{"name":"","type":"uint256"}],"payable":true,"type":"function"}
]`

var (
	vaultABI         = mustParseABI(vaultABIJSON)
	nativeWrapperABI = mustParseABI(nativeWrapperABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// VanillaSolver settles directly against the vault's own deposit and
// withdraw entry points. No external pricing is involved: a direct
// deposit mints 1:1, so expectedOut equals the input re-denominated and
// no slippage applies.
type VanillaSolver struct {
	chain Chain

	// NativeWrapper receives native-asset deposits; unset means native
	// deposits are not supported on this chain.
	nativeWrapper common.Address

	now   func() time.Time
	req   *ExecutionRequest
	quote *Quote
}

// NewVanillaSolver builds the direct-settlement venue.
func NewVanillaSolver(c Chain, nativeWrapper common.Address) *VanillaSolver {
	return &VanillaSolver{chain: c, nativeWrapper: nativeWrapper, now: time.Now}
}

// Init validates the request and produces the trivial 1:1 quote.
func (s *VanillaSolver) Init(ctx context.Context, req *ExecutionRequest) (*Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IsNativeInput() && s.nativeWrapper == (common.Address{}) {
		return nil, fmt.Errorf("%w: no native wrapper configured on chain %d", ErrNoRoute, req.ChainID)
	}
	if req.IsNativeInput() && req.SpendFullBalance {
		// The full balance would ride as tx value with nothing left for
		// gas; only the router venue sizes a reserve.
		return nil, fmt.Errorf("%w: direct deposits cannot spend the full native balance", ErrNoRoute)
	}
	s.req = req
	return s.RefreshQuote(ctx)
}

// Quote returns the cached quote, if any.
func (s *VanillaSolver) Quote() *Quote { return s.quote }

// RefreshQuote recomputes the 1:1 quote.
func (s *VanillaSolver) RefreshQuote(_ context.Context) (*Quote, error) {
	if s.req == nil {
		return nil, fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}
	expected := amount.FromRaw(s.req.InputAmount, s.req.InputDecimals).Rescale(s.req.OutputDecimals)
	s.quote = &Quote{
		Venue:       VenueVanilla,
		ExpectedOut: expected,
		MinOut:      expected,
		SlippageBps: 0,
		ObtainedAt:  s.now(),
	}
	return s.quote, nil
}

// spender is the contract that pulls the input token: the vault itself,
// or the wrapper for native deposits.
func (s *VanillaSolver) spender() common.Address {
	if s.req.IsNativeInput() {
		return s.nativeWrapper
	}
	return s.req.OutputToken
}

// RetrieveAllowance reads the current allowance toward the venue's
// spender. Withdrawals burn the caller's own shares and native value
// needs no ERC-20 approval, so both report unlimited.
func (s *VanillaSolver) RetrieveAllowance(ctx context.Context, force bool) (amount.Amount, error) {
	if s.req == nil {
		return amount.Amount{}, fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}
	if s.req.Direction == Withdraw || s.req.IsNativeInput() {
		return amount.FromRaw(amount.MaxUint256, s.req.InputDecimals), nil
	}

	raw, err := s.chain.Allowance(ctx, s.req.From, s.spender(), s.req.InputToken, force)
	if err != nil {
		return amount.Amount{}, normalize(err, ErrRateLimited)
	}
	return amount.FromRaw(raw, s.req.InputDecimals), nil
}

// Approve grants the vault an allowance over the input token.
func (s *VanillaSolver) Approve(ctx context.Context, amt *big.Int) error {
	if s.req.Direction == Withdraw || s.req.IsNativeInput() {
		return nil
	}
	if _, err := s.chain.Approve(ctx, s.req.InputToken, s.spender(), amt); err != nil {
		return normalize(err, ErrApprovalReverted)
	}
	return nil
}

// ExecuteDeposit calls the vault's deposit entry point (or the native
// wrapper) and resolves on receipt.
func (s *VanillaSolver) ExecuteDeposit(ctx context.Context) (*Receipt, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	var (
		to    common.Address
		value = big.NewInt(0)
		data  []byte
		err   error
	)
	if s.req.IsNativeInput() {
		to = s.nativeWrapper
		value = s.req.InputAmount
		data, err = nativeWrapperABI.Pack("deposit", s.req.OutputToken)
	} else {
		to = s.req.OutputToken
		data, err = vaultABI.Pack("deposit", s.req.InputAmount)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit data: %w", err)
	}

	hash, err := s.chain.Submit(ctx, to, value, data, 0)
	if err != nil {
		return nil, normalize(err, ErrExecutionReverted)
	}
	return &Receipt{Venue: VenueVanilla, TxHash: hash}, nil
}

// ExecuteWithdraw calls the vault's withdraw entry point and resolves
// on receipt.
func (s *VanillaSolver) ExecuteWithdraw(ctx context.Context) (*Receipt, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	data, err := vaultABI.Pack("withdraw", s.req.InputAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack withdraw data: %w", err)
	}

	hash, err := s.chain.Submit(ctx, s.req.InputToken, big.NewInt(0), data, 0)
	if err != nil {
		return nil, normalize(err, ErrExecutionReverted)
	}
	return &Receipt{Venue: VenueVanilla, TxHash: hash}, nil
}

func (s *VanillaSolver) ensureFresh(ctx context.Context) error {
	if s.req == nil {
		return fmt.Errorf("%w: solver not initialized", ErrInvalidRequest)
	}
	if !s.quote.Fresh(s.now()) {
		if _, err := s.RefreshQuote(ctx); err != nil {
			return err
		}
	}
	return nil
}
