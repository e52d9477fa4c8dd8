package solver

import (
	"context"
	"errors"
	"fmt"

	"vault-solver/pkg/chain"
	"vault-solver/pkg/order"
)

// Normalized error kinds. Venue-specific failures are mapped onto these
// at the solver boundary so callers never see a raw network or contract
// error uncategorized.
var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrNoRoute               = errors.New("no route")
	ErrQuoteFailed           = errors.New("quote failed")
	ErrAllowanceInsufficient = errors.New("allowance insufficient")
	ErrApprovalReverted      = errors.New("approval reverted")
	ErrExecutionReverted     = errors.New("execution reverted")
	ErrNoSigner              = errors.New("no signer")
	ErrSignatureRejected     = errors.New("signature rejected")
	ErrOrderClosed           = errors.New("order cancelled or expired")
	ErrOrderTimeout          = errors.New("order timed out")
	ErrRateLimited           = errors.New("rate limited")
	ErrInFlight              = errors.New("another execution is in flight")
)

var kinds = []error{
	ErrInvalidRequest, ErrNoRoute, ErrQuoteFailed, ErrAllowanceInsufficient,
	ErrApprovalReverted, ErrExecutionReverted, ErrNoSigner, ErrSignatureRejected,
	ErrOrderClosed, ErrOrderTimeout, ErrRateLimited, ErrInFlight,
}

// classified reports whether err already carries one of the kinds above.
func classified(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// normalize maps lower-layer errors onto an error kind, using fallback
// when nothing more specific applies. Context cancellation passes
// through untouched: abandonment is not a venue failure.
func normalize(err, fallback error) error {
	switch {
	case err == nil:
		return nil
	case classified(err):
		return err
	case errors.Is(err, chain.ErrNoSigner):
		return fmt.Errorf("%w: %v", ErrNoSigner, err)
	case errors.Is(err, chain.ErrRateLimited):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case errors.Is(err, chain.ErrReverted):
		return fmt.Errorf("%w: %v", fallback, err)
	case errors.Is(err, order.ErrClosed):
		return fmt.Errorf("%w: %v", ErrOrderClosed, err)
	case errors.Is(err, order.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrOrderTimeout, err)
	case isCtxErr(err):
		return err
	default:
		return fmt.Errorf("%w: %v", fallback, err)
	}
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
