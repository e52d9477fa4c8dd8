package solver

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"vault-solver/pkg/chain"
)

// Phase is the orchestrator's view of one action slot.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Status is a snapshot of the slot.
type Status struct {
	Phase Phase
	Err   error
}

// Orchestrator sequences allowance → approval → execution for any venue
// without venue-specific branching. One orchestrator owns one logical
// action slot: a new request is rejected while the slot is pending.
type Orchestrator struct {
	mu     sync.Mutex
	status Status
	log    *zap.Logger
}

// NewOrchestrator builds an idle orchestrator.
func NewOrchestrator(log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{log: log}
}

// Status returns the current slot snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Reset returns a terminal slot to idle so the action can be retried.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.Phase != PhasePending {
		o.status = Status{}
	}
}

// Execute runs one request through the solver: quote, allowance check,
// approval only if insufficient, then the direction's execution. The
// approval, when issued, is confirmed on-chain before execution is
// attempted; nothing is retried automatically.
func (o *Orchestrator) Execute(ctx context.Context, s Solver, req *ExecutionRequest) (*Receipt, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}

	receipt, err := o.run(ctx, s, req)
	o.finish(err)
	return receipt, err
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.Phase == PhasePending {
		return ErrInFlight
	}
	o.status = Status{Phase: PhasePending}
	return nil
}

func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.status = Status{Phase: PhaseError, Err: err}
		return
	}
	o.status = Status{Phase: PhaseSuccess}
}

func (o *Orchestrator) run(ctx context.Context, s Solver, req *ExecutionRequest) (*Receipt, error) {
	quote := s.Quote()
	if quote == nil {
		var err error
		if quote, err = s.Init(ctx, req); err != nil {
			return nil, err
		}
	}

	o.log.Info("executing request",
		zap.Uint64("chain", req.ChainID),
		zap.Stringer("direction", req.Direction),
		zap.Stringer("venue", quote.Venue),
		zap.String("amount", req.InputAmount.String()),
		zap.String("min_out", quote.MinOut.Raw.String()))

	allowance, err := s.RetrieveAllowance(ctx, false)
	if err != nil {
		return nil, err
	}

	if allowance.Raw.Cmp(req.InputAmount) < 0 {
		o.log.Info("allowance insufficient, approving",
			zap.String("have", allowance.Raw.String()),
			zap.String("need", req.InputAmount.String()))
		if err := s.Approve(ctx, chain.MaxApproval()); err != nil {
			// Do not execute with an unconfirmed allowance.
			return nil, err
		}

		// The approval bumped the cache; a still-short figure here means
		// the venue approved a different edge than it spends from.
		allowance, err = s.RetrieveAllowance(ctx, false)
		if err != nil {
			return nil, err
		}
		if allowance.Raw.Cmp(req.InputAmount) < 0 {
			return nil, fmt.Errorf("%w: %s < %s after approval",
				ErrAllowanceInsufficient, allowance.Raw.String(), req.InputAmount.String())
		}
	}

	var receipt *Receipt
	if req.Direction == Withdraw {
		receipt, err = s.ExecuteWithdraw(ctx)
	} else {
		receipt, err = s.ExecuteDeposit(ctx)
	}
	if err != nil {
		return nil, err
	}

	o.log.Info("request settled",
		zap.Stringer("venue", receipt.Venue),
		zap.String("tx", receipt.TxHash.Hex()),
		zap.String("order", receipt.OrderID))
	return receipt, nil
}
