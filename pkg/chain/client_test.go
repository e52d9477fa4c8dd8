package chain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory node: every eth_call answers with a fixed
// word, transactions mine instantly with a configurable status.
type fakeBackend struct {
	callResult    []byte
	callCount     int
	receiptStatus uint64
	sent          []*types.Transaction
	estimated     uint64
}

func (b *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.callCount++
	return b.callResult, nil
}

func (b *fakeBackend) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return 7, nil
}

func (b *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	b.estimated = 50_000
	return b.estimated, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: b.receiptStatus, BlockNumber: big.NewInt(1)}, nil
}

const testChainKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	signer, err := NewKeySigner(testChainKey)
	require.NoError(t, err)

	client := NewClient(backend, Options{ChainID: 1}, signer, NewAllowanceCache(), NewReadGate(nil), nil)
	client.receiptInterval = time.Millisecond
	return client
}

func word(v int64) []byte {
	return common.BigToHash(big.NewInt(v)).Bytes()
}

func TestAllowanceReadThroughCache(t *testing.T) {
	backend := &fakeBackend{callResult: word(500), receiptStatus: types.ReceiptStatusSuccessful}
	client := newTestClient(t, backend)

	owner := client.Signer().Address()
	spender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	got, err := client.Allowance(context.Background(), owner, spender, token, false)
	require.NoError(t, err)
	assert.Equal(t, "500", got.String())
	assert.Equal(t, 1, backend.callCount)

	// Second read is served from cache.
	got, err = client.Allowance(context.Background(), owner, spender, token, false)
	require.NoError(t, err)
	assert.Equal(t, "500", got.String())
	assert.Equal(t, 1, backend.callCount)

	// Force refresh goes back on-chain.
	_, err = client.Allowance(context.Background(), owner, spender, token, true)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.callCount)
}

func TestApproveBumpsCache(t *testing.T) {
	backend := &fakeBackend{callResult: word(0), receiptStatus: types.ReceiptStatusSuccessful}
	client := newTestClient(t, backend)

	spender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	_, err := client.Approve(context.Background(), token, spender, MaxApproval())
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	// The allowance now comes from the optimistic cache entry, no read.
	backend.callCount = 0
	got, err := client.Allowance(context.Background(), client.Signer().Address(), spender, token, false)
	require.NoError(t, err)
	assert.Equal(t, 256, got.BitLen())
	assert.Zero(t, backend.callCount)
}

func TestSubmitMapsRevertedReceipt(t *testing.T) {
	backend := &fakeBackend{receiptStatus: types.ReceiptStatusFailed}
	client := newTestClient(t, backend)

	_, err := client.Submit(context.Background(),
		common.HexToAddress("0x4444444444444444444444444444444444444444"),
		big.NewInt(0), []byte{0x01}, 21000)
	assert.ErrorIs(t, err, ErrReverted)
}

func TestSubmitBuffersEstimatedGas(t *testing.T) {
	backend := &fakeBackend{receiptStatus: types.ReceiptStatusSuccessful}
	client := newTestClient(t, backend)

	_, err := client.Submit(context.Background(),
		common.HexToAddress("0x4444444444444444444444444444444444444444"),
		big.NewInt(0), []byte{0x01}, 0)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, uint64(60_000), backend.sent[0].Gas(), "estimate plus 20%% buffer")
}

func TestSubmitWithoutSigner(t *testing.T) {
	backend := &fakeBackend{receiptStatus: types.ReceiptStatusSuccessful}
	client := NewClient(backend, Options{ChainID: 1}, nil, NewAllowanceCache(), NewReadGate(nil), nil)

	_, err := client.Submit(context.Background(), common.Address{}, big.NewInt(0), nil, 21000)
	assert.ErrorIs(t, err, ErrNoSigner)
}
