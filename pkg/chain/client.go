package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"vault-solver/pkg/amount"
)

// ErrReverted is returned when a mined transaction's receipt reports
// failure (status 0).
var ErrReverted = errors.New("transaction reverted")

// ERC-20 functions the engine needs
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

var erc20 = mustABI(erc20ABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// MaxApproval returns the conventional open-ended approval amount.
func MaxApproval() *big.Int {
	return new(big.Int).Set(amount.MaxUint256)
}

// Backend is the subset of the ethclient API the engine uses, split out
// so tests can substitute a fake node.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Options carries per-chain tuning for a Client.
type Options struct {
	ChainID  uint64
	GasPrice *big.Int // optional override; nil means ask the node
	GasLimit *uint64  // optional override; nil means estimate + 20% buffer
}

// Client is the on-chain read/write client for one chain. Reads are
// routed through the ReadGate; allowance reads go through the shared
// read-through cache.
type Client struct {
	chainID uint64
	backend Backend
	signer  Signer
	cache   *AllowanceCache
	gate    *ReadGate
	opts    Options
	log     *zap.Logger

	receiptInterval time.Duration
}

// Dial connects to an RPC endpoint and builds a Client for it.
func Dial(rpcURL string, opts Options, signer Signer, cache *AllowanceCache, gate *ReadGate, log *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured for chain %d", opts.ChainID)
	}
	backend, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return NewClient(backend, opts, signer, cache, gate, log), nil
}

// NewClient builds a Client over an existing backend.
func NewClient(backend Backend, opts Options, signer Signer, cache *AllowanceCache, gate *ReadGate, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		chainID:         opts.ChainID,
		backend:         backend,
		signer:          signer,
		cache:           cache,
		gate:            gate,
		opts:            opts,
		log:             log,
		receiptInterval: 2 * time.Second,
	}
}

// ChainID returns the chain this client talks to.
func (c *Client) ChainID() uint64 { return c.chainID }

// Signer returns the configured signer, or nil when read-only.
func (c *Client) Signer() Signer { return c.signer }

// Allowance reads the ERC-20 allowance for (owner, spender, token),
// serving from the cache unless force is set or the entry is absent.
func (c *Client) Allowance(ctx context.Context, owner, spender, token common.Address, force bool) (*big.Int, error) {
	key := AllowanceKey{ChainID: c.chainID, Owner: owner, Spender: spender, Token: token}
	if !force {
		if entry, ok := c.cache.Get(key); ok {
			return entry.Amount, nil
		}
	}

	data, err := erc20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance call: %w", err)
	}
	result, err := c.read(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}

	allowance := new(big.Int).SetBytes(result)
	c.cache.Put(key, allowance)
	return allowance, nil
}

// BalanceOf reads an ERC-20 token balance.
func (c *Client) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := erc20.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}
	result, err := c.read(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

// NativeBalance reads the account's native-asset balance.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := c.gate.Wait(ctx, c.chainID); err != nil {
		return nil, err
	}
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// SuggestGasPrice returns the configured gas price override, or asks the
// node.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if c.opts.GasPrice != nil {
		return new(big.Int).Set(c.opts.GasPrice), nil
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

// Approve issues an ERC-20 approval for spender and waits for it to
// mine. On confirmation the allowance cache is bumped optimistically to
// the approved amount.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amt *big.Int) (common.Hash, error) {
	data, err := erc20.Pack("approve", spender, amt)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}

	hash, err := c.Submit(ctx, token, big.NewInt(0), data, 0)
	if err != nil {
		return hash, err
	}

	if c.signer != nil {
		key := AllowanceKey{ChainID: c.chainID, Owner: c.signer.Address(), Spender: spender, Token: token}
		c.cache.Bump(key, amt)
	}
	c.log.Info("approval confirmed",
		zap.Uint64("chain", c.chainID),
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("tx", hash.Hex()))
	return hash, nil
}

// Submit signs and broadcasts a transaction and blocks until it mines.
// A zero gasLimit means estimate with a 20% buffer (or use the
// configured override). Returns ErrReverted if the receipt reports
// failure.
func (c *Client) Submit(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, ErrNoSigner
	}
	from := c.signer.Address()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	if gasLimit == 0 {
		gasLimit, err = c.gasLimitFor(ctx, from, to, value, data)
		if err != nil {
			return common.Hash{}, err
		}
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := c.signer.SignTx(tx, new(big.Int).SetUint64(c.chainID))
	if err != nil {
		return common.Hash{}, err
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := signed.Hash()
	c.log.Debug("transaction broadcast",
		zap.Uint64("chain", c.chainID),
		zap.String("to", to.Hex()),
		zap.String("tx", hash.Hex()))

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return hash, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return hash, fmt.Errorf("tx %s: %w", hash.Hex(), ErrReverted)
	}
	return hash, nil
}

// EstimateDepositGas estimates gas for a native deposit without sending
// it, for MAX-balance reserve math.
func (c *Client) EstimateDepositGas(ctx context.Context, to common.Address, value *big.Int, data []byte) (uint64, error) {
	if c.opts.GasLimit != nil {
		return *c.opts.GasLimit, nil
	}
	from := common.Address{}
	if c.signer != nil {
		from = c.signer.Address()
	}
	return c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
}

func (c *Client) gasLimitFor(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (uint64, error) {
	if c.opts.GasLimit != nil {
		return *c.opts.GasLimit, nil
	}
	estimated, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return estimated * 120 / 100, nil
}

// read performs a rate-gated eth_call against a contract.
func (c *Client) read(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.gate.Wait(ctx, c.chainID); err != nil {
		return nil, err
	}
	return c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// waitMined polls for the transaction receipt until it lands or ctx is
// done. There is no engine-level timeout here: the chain either mines or
// reverts the transaction.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
