// Package order models the lifecycle of an off-chain intent order: built
// locally, signed, submitted to the order book, then polled until a
// terminal status.
package order

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrClosed means the order book reported a terminal non-success
	// status (cancelled or expired).
	ErrClosed = errors.New("order cancelled or expired")

	// ErrTimeout means the polling budget ran out before a terminal
	// status was observed.
	ErrTimeout = errors.New("order polling timed out")
)

// Status is an order's lifecycle position. Statuses only ever advance;
// a terminal status is frozen.
type Status int

const (
	Created Status = iota
	Submitted
	Polling
	Fulfilled
	Cancelled
	Expired
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Submitted:
		return "submitted"
	case Polling:
		return "polling"
	case Fulfilled:
		return "fulfilled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s >= Fulfilled
}

// Unsigned is the order body covered by the signature.
type Unsigned struct {
	ChainID    uint64
	SellToken  common.Address
	BuyToken   common.Address
	SellAmount *big.Int
	BuyAmount  *big.Int
	Receiver   common.Address
	ValidTo    time.Time
}

// Order is an intent order. Everything except the status is write-once:
// the signature is set by Sign-and-submit, the id by the order book.
type Order struct {
	Unsigned  Unsigned
	Signature []byte
	ID        string

	mu     sync.Mutex
	status Status
}

// New builds an order in the Created state.
func New(unsigned Unsigned) *Order {
	return &Order{Unsigned: unsigned, status: Created}
}

// Status returns the current lifecycle position.
func (o *Order) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Advance moves the order forward to the given status. Moving backwards
// or out of a terminal status is rejected.
func (o *Order) Advance(to Status) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.Terminal() {
		return fmt.Errorf("order %s is already %s", o.ID, o.status)
	}
	if to <= o.status {
		return fmt.Errorf("cannot move order %s from %s back to %s", o.ID, o.status, to)
	}
	o.status = to
	return nil
}

// Digest computes the signing digest for the order body: keccak over a
// domain separator binding the chain and the packed order fields.
func Digest(u Unsigned) common.Hash {
	domain := crypto.Keccak256(
		[]byte("VaultSolverIntentOrder"),
		[]byte("1"),
		common.BigToHash(new(big.Int).SetUint64(u.ChainID)).Bytes(),
	)
	body := crypto.Keccak256(
		u.SellToken.Bytes(),
		u.BuyToken.Bytes(),
		common.BigToHash(u.SellAmount).Bytes(),
		common.BigToHash(u.BuyAmount).Bytes(),
		u.Receiver.Bytes(),
		common.BigToHash(new(big.Int).SetInt64(u.ValidTo.Unix())).Bytes(),
	)
	return common.BytesToHash(crypto.Keccak256(domain, body))
}
