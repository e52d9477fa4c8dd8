package order

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vault-solver/pkg/portals"
)

const (
	// DefaultPollInterval is the spacing between status fetches.
	DefaultPollInterval = 3 * time.Second

	// DefaultMaxPolls bounds the loop; with the default interval this is
	// a five-minute ceiling.
	DefaultMaxPolls = 100
)

// StatusFetcher fetches an order's status by id. portals.OrderBookClient
// implements it.
type StatusFetcher interface {
	Status(ctx context.Context, orderID string) (string, error)
}

// Poller drives a submitted order to a terminal status by polling the
// order book at a fixed interval for a bounded number of iterations.
type Poller struct {
	Interval time.Duration
	MaxPolls int

	log   *zap.Logger
	sleep func(context.Context, time.Duration) error
}

// NewPoller builds a poller with the default interval and budget.
func NewPoller(log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		Interval: DefaultPollInterval,
		MaxPolls: DefaultMaxPolls,
		log:      log,
		sleep:    sleepCtx,
	}
}

// Await polls until the order reaches a terminal state or the budget is
// exhausted. The first fetch happens immediately, so an order already
// fulfilled resolves without waiting a full interval. Context
// cancellation stops the loop without advancing the order: no further
// transitions happen after abandonment.
func (p *Poller) Await(ctx context.Context, o *Order, fetch StatusFetcher) error {
	if err := o.Advance(Polling); err != nil {
		return err
	}

	for i := 0; i < p.MaxPolls; i++ {
		if i > 0 {
			if err := p.sleep(ctx, p.Interval); err != nil {
				return err
			}
		}

		status, err := fetch.Status(ctx, o.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient fetch failure: burn the iteration and keep going.
			p.log.Debug("order status fetch failed", zap.String("order", o.ID), zap.Error(err))
			continue
		}

		switch status {
		case portals.OrderStatusFulfilled:
			if err := o.Advance(Fulfilled); err != nil {
				return err
			}
			p.log.Info("order fulfilled", zap.String("order", o.ID), zap.Int("polls", i+1))
			return nil
		case portals.OrderStatusCancelled:
			if err := o.Advance(Cancelled); err != nil {
				return err
			}
			return ErrClosed
		case portals.OrderStatusExpired:
			if err := o.Advance(Expired); err != nil {
				return err
			}
			return ErrClosed
		default:
			// Still open; keep polling.
		}
	}

	if err := o.Advance(TimedOut); err != nil {
		return err
	}
	p.log.Warn("order polling budget exhausted", zap.String("order", o.ID), zap.Int("polls", p.MaxPolls))
	return ErrTimeout
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
