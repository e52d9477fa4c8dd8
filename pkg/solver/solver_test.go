package solver

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vault-solver/pkg/chain"
	"vault-solver/pkg/portals"
)

const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	tokenA  = common.HexToAddress("0xA000000000000000000000000000000000000001")
	vaultA  = common.HexToAddress("0xA000000000000000000000000000000000000002")
	sender  = common.HexToAddress("0xA000000000000000000000000000000000000003")
	wrapper = common.HexToAddress("0xA000000000000000000000000000000000000004")
	settle  = common.HexToAddress("0xA000000000000000000000000000000000000005")
)

// fakeChain is an in-memory Chain that records the call sequence.
type fakeChain struct {
	mu        sync.Mutex
	signer    chain.Signer
	allowance *big.Int
	balance   *big.Int
	gasPrice  *big.Int

	allowanceReads int
	sequence       []string // "approve", "submit"
	approveErr     error
	submitErr      error
	submitted      []submittedTx

	// zero estimateGas means the node cannot estimate
	estimateGas uint64
	estimateErr error
}

type submittedTx struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

func newFakeChain(t *testing.T, allowance int64) *fakeChain {
	t.Helper()
	signer, err := chain.NewKeySigner(testSignerKey)
	require.NoError(t, err)
	return &fakeChain{
		signer:    signer,
		allowance: big.NewInt(allowance),
		balance:   big.NewInt(0),
		gasPrice:  big.NewInt(1_000_000_000),
	}
}

func (c *fakeChain) ChainID() uint64      { return 1 }
func (c *fakeChain) Signer() chain.Signer { return c.signer }

func (c *fakeChain) Allowance(_ context.Context, _, _, _ common.Address, _ bool) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowanceReads++
	return new(big.Int).Set(c.allowance), nil
}

func (c *fakeChain) NativeBalance(_ context.Context, _ common.Address) (*big.Int, error) {
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeChain) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *fakeChain) EstimateDepositGas(_ context.Context, _ common.Address, _ *big.Int, _ []byte) (uint64, error) {
	if c.estimateErr != nil {
		return 0, c.estimateErr
	}
	return c.estimateGas, nil
}

func (c *fakeChain) Approve(_ context.Context, _, _ common.Address, amt *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.approveErr != nil {
		return common.Hash{}, c.approveErr
	}
	c.sequence = append(c.sequence, "approve")
	c.allowance = new(big.Int).Set(amt) // optimistic bump, as the real client does
	return common.HexToHash("0x01"), nil
}

func (c *fakeChain) Submit(_ context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return common.Hash{}, c.submitErr
	}
	c.sequence = append(c.sequence, "submit")
	c.submitted = append(c.submitted, submittedTx{To: to, Value: value, Data: data, GasLimit: gasLimit})
	return common.HexToHash("0x02"), nil
}

// fakeRouterAPI serves canned aggregator responses.
type fakeRouterAPI struct {
	estimate    *portals.Estimate
	estimateErr error
	approval    *portals.Approval
	payload     *portals.TxPayload

	estimateCalls    int
	lastEstimateReq  portals.EstimateRequest
	transactionCalls int
}

func (a *fakeRouterAPI) Estimate(_ context.Context, req portals.EstimateRequest) (*portals.Estimate, error) {
	a.estimateCalls++
	a.lastEstimateReq = req
	if a.estimateErr != nil {
		return nil, a.estimateErr
	}
	return a.estimate, nil
}

func (a *fakeRouterAPI) Approval(_ context.Context, _ portals.EstimateRequest) (*portals.Approval, error) {
	return a.approval, nil
}

func (a *fakeRouterAPI) Transaction(_ context.Context, _ portals.EstimateRequest) (*portals.TxPayload, error) {
	a.transactionCalls++
	return a.payload, nil
}

// fakeBook is an order book whose statuses play back a script.
type fakeBook struct {
	submitErr   error
	statusCalls int
	statuses    []string
	submitted   []portals.SignedOrder
}

func (b *fakeBook) Submit(_ context.Context, o portals.SignedOrder) (string, error) {
	if b.submitErr != nil {
		return "", b.submitErr
	}
	b.submitted = append(b.submitted, o)
	return "order-1", nil
}

func (b *fakeBook) Status(_ context.Context, _ string) (string, error) {
	i := b.statusCalls
	b.statusCalls++
	if i >= len(b.statuses) {
		i = len(b.statuses) - 1
	}
	return b.statuses[i], nil
}

// fakePricer prices tokens from a fixed table.
type fakePricer struct {
	prices map[common.Address]decimal.Decimal
}

func (p *fakePricer) Price(_ context.Context, _ uint64, token string) (decimal.Decimal, error) {
	return p.prices[common.HexToAddress(token)], nil
}

func errSubmitReverted(t *testing.T) error {
	t.Helper()
	return fmt.Errorf("tx 0x02: %w", chain.ErrReverted)
}

func depositRequest(amt int64) *ExecutionRequest {
	return &ExecutionRequest{
		ChainID:        1,
		From:           sender,
		InputToken:     tokenA,
		OutputToken:    vaultA,
		InputAmount:    big.NewInt(amt),
		Direction:      Deposit,
		InputDecimals:  6,
		OutputDecimals: 6,
	}
}
