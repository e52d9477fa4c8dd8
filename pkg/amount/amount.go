package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxUint256 is the largest representable token amount, used for
// open-ended approvals so a spender never needs re-approving.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Amount is a token quantity carried as both the raw on-chain integer and
// its human-readable decimal form. The two fields always agree:
// Normalized == Raw / 10^Decimals. Construct via FromRaw or FromNormalized
// and treat values as immutable afterwards.
type Amount struct {
	Raw        *big.Int
	Decimals   uint8
	Normalized decimal.Decimal
}

// FromRaw builds an Amount from a raw smallest-unit integer.
func FromRaw(raw *big.Int, decimals uint8) Amount {
	if raw == nil {
		raw = big.NewInt(0)
	}
	return Amount{
		Raw:        new(big.Int).Set(raw),
		Decimals:   decimals,
		Normalized: decimal.NewFromBigInt(raw, -int32(decimals)),
	}
}

// FromNormalized builds an Amount from a human-readable figure,
// truncating anything below the token's smallest unit.
func FromNormalized(normalized decimal.Decimal, decimals uint8) Amount {
	raw := normalized.Shift(int32(decimals)).Truncate(0)
	return FromRaw(raw.BigInt(), decimals)
}

// Zero returns the zero amount in the given denomination.
func Zero(decimals uint8) Amount {
	return FromRaw(big.NewInt(0), decimals)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.Raw == nil || a.Raw.Sign() == 0
}

// Cmp compares two amounts by value, independent of denomination.
func (a Amount) Cmp(b Amount) int {
	return a.Normalized.Cmp(b.Normalized)
}

// Rescale re-denominates the amount 1:1 into a different decimal count,
// preserving the normalized value. Used by the direct vault venue where
// shares are minted 1:1 against the deposited token.
func (a Amount) Rescale(decimals uint8) Amount {
	if decimals == a.Decimals {
		return a
	}
	return FromNormalized(a.Normalized, decimals)
}

func (a Amount) String() string {
	return fmt.Sprintf("%s (raw %s, %d decimals)", a.Normalized.String(), a.Raw.String(), a.Decimals)
}

// ApplySlippage returns expected scaled down by bps basis points,
// rounding toward zero. bps at or above 10000 (100%) floors the result
// at zero so the result never exceeds expected.
func ApplySlippage(expected Amount, bps uint32) Amount {
	if bps == 0 {
		return FromRaw(expected.Raw, expected.Decimals)
	}
	if bps >= 10000 {
		return Zero(expected.Decimals)
	}
	scaled := new(big.Int).Mul(expected.Raw, big.NewInt(int64(10000-bps)))
	scaled.Div(scaled, big.NewInt(10000))
	return FromRaw(scaled, expected.Decimals)
}

// GasReserve estimates the native amount to hold back for gas when
// spending a full native balance: gasLimit * gasPrice plus a 20% buffer.
func GasReserve(gasLimit uint64, gasPrice *big.Int) *big.Int {
	reserve := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	reserve.Mul(reserve, big.NewInt(12))
	reserve.Div(reserve, big.NewInt(10))
	return reserve
}

// DeductReserve subtracts the gas reserve from a native balance, clamping
// at zero so a MAX deposit can never strand the account without gas money.
func DeductReserve(balance, reserve *big.Int) *big.Int {
	if reserve.Cmp(balance) >= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(balance, reserve)
}
