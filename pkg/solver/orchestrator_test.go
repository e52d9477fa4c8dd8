package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestratorSkipsRedundantApproval(t *testing.T) {
	fc := newFakeChain(t, 2_000_000) // already above the required amount
	s := NewVanillaSolver(fc, wrapper)
	orch := NewOrchestrator(nil)

	_, err := orch.Execute(context.Background(), s, depositRequest(1_000_000))
	require.NoError(t, err)
	assert.NotContains(t, fc.sequence, "approve")
}

func TestOrchestratorApprovalFailureStopsExecution(t *testing.T) {
	fc := newFakeChain(t, 0)
	fc.approveErr = errSubmitReverted(t)
	s := NewVanillaSolver(fc, wrapper)
	orch := NewOrchestrator(nil)

	_, err := orch.Execute(context.Background(), s, depositRequest(1_000_000))
	assert.ErrorIs(t, err, ErrApprovalReverted)
	assert.NotContains(t, fc.sequence, "submit", "must not execute with an unconfirmed allowance")

	status := orch.Status()
	assert.Equal(t, PhaseError, status.Phase)
	assert.ErrorIs(t, status.Err, ErrApprovalReverted)
}

func TestOrchestratorRejectsReentrantExecution(t *testing.T) {
	fc := newFakeChain(t, 1_000_000)
	s := NewVanillaSolver(fc, wrapper)
	orch := NewOrchestrator(nil)

	release := make(chan struct{})
	blocking := &blockingSolver{Solver: s, gate: release}

	done := make(chan error, 1)
	go func() {
		_, err := orch.Execute(context.Background(), blocking, depositRequest(1_000_000))
		done <- err
	}()

	// Wait until the first execution holds the slot.
	require.Eventually(t, func() bool {
		return orch.Status().Phase == PhasePending
	}, time.Second, time.Millisecond)

	_, err := orch.Execute(context.Background(), s, depositRequest(1_000_000))
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseSuccess, orch.Status().Phase)
}

func TestOrchestratorResetReturnsToIdle(t *testing.T) {
	fc := newFakeChain(t, 0)
	fc.approveErr = errSubmitReverted(t)
	s := NewVanillaSolver(fc, wrapper)
	orch := NewOrchestrator(nil)

	_, _ = orch.Execute(context.Background(), s, depositRequest(1_000_000))
	require.Equal(t, PhaseError, orch.Status().Phase)

	orch.Reset()
	assert.Equal(t, PhaseIdle, orch.Status().Phase)
	assert.NoError(t, orch.Status().Err)
}

func TestOrchestratorInvalidRequestFailsBeforeNetwork(t *testing.T) {
	fc := newFakeChain(t, 0)
	s := NewVanillaSolver(fc, wrapper)
	orch := NewOrchestrator(nil)

	req := depositRequest(0)
	_, err := orch.Execute(context.Background(), s, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, fc.allowanceReads)
	assert.Empty(t, fc.sequence)
	assert.Equal(t, PhaseError, orch.Status().Phase)
}

// blockingSolver parks ExecuteDeposit until its gate opens.
type blockingSolver struct {
	Solver
	gate <-chan struct{}
}

func (b *blockingSolver) ExecuteDeposit(ctx context.Context) (*Receipt, error) {
	<-b.gate
	return b.Solver.ExecuteDeposit(ctx)
}
