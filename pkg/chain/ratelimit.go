package chain

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when the gate cannot admit a read within its
// internal retry budget. With a sane limit configuration the gate always
// eventually admits, so hitting this indicates misconfiguration.
var ErrRateLimited = errors.New("read gate: rate limited")

const (
	// gateSpacing is the fixed extra delay added once a window opens, so
	// admissions do not land exactly on the window edge.
	gateSpacing = 100 * time.Millisecond

	// gateMaxWaits bounds the prune-wait-recheck loop.
	gateMaxWaits = 50
)

// Limit caps reads for one chain at MaxRequests per rolling Window.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// ReadGate throttles on-chain reads per chain id with a sliding window of
// issuance timestamps. Chains without a configured limit bypass the gate.
// It is a queueing discipline only: identical reads are not deduplicated
// here (the allowance cache owns that).
type ReadGate struct {
	limits map[uint64]Limit

	mu     sync.Mutex
	stamps map[uint64][]time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewReadGate builds a gate for the given per-chain limits.
func NewReadGate(limits map[uint64]Limit) *ReadGate {
	return &ReadGate{
		limits: limits,
		stamps: make(map[uint64][]time.Time),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Wait blocks until a read for chainID may be issued, recording the
// issuance timestamp before returning. The wait is bounded by the window
// size; ctx cancellation aborts it early.
func (g *ReadGate) Wait(ctx context.Context, chainID uint64) error {
	limit, throttled := g.limits[chainID]
	if !throttled || limit.MaxRequests <= 0 {
		return nil
	}

	for attempt := 0; attempt < gateMaxWaits; attempt++ {
		wait, admitted := g.tryAdmit(chainID, limit)
		if admitted {
			return nil
		}
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return ErrRateLimited
}

// tryAdmit prunes expired timestamps and either records an issuance
// (admitted) or reports how long to wait for the oldest stamp to expire.
func (g *ReadGate) tryAdmit(chainID uint64, limit Limit) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cutoff := now.Add(-limit.Window)

	window := g.stamps[chainID]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) < limit.MaxRequests {
		g.stamps[chainID] = append(kept, now)
		return 0, true
	}

	g.stamps[chainID] = kept
	wait := kept[0].Add(limit.Window).Sub(now) + gateSpacing
	if wait < gateSpacing {
		wait = gateSpacing
	}
	return wait, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
