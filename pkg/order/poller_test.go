package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBook returns one canned status per fetch, in order, repeating
// the last entry once the script runs out.
type scriptedBook struct {
	script  []string
	fetches int
}

func (b *scriptedBook) Status(_ context.Context, _ string) (string, error) {
	i := b.fetches
	b.fetches++
	if i >= len(b.script) {
		i = len(b.script) - 1
	}
	return b.script[i], nil
}

func newTestPoller() (*Poller, *[]time.Duration) {
	p := NewPoller(nil)
	sleeps := new([]time.Duration)
	p.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return p, sleeps
}

func submittedOrder(t *testing.T) *Order {
	t.Helper()
	o := New(testUnsigned())
	o.ID = "order-123"
	require.NoError(t, o.Advance(Submitted))
	return o
}

func TestPollerFulfilledOnFirstPoll(t *testing.T) {
	p, sleeps := newTestPoller()
	book := &scriptedBook{script: []string{"fulfilled"}}

	o := submittedOrder(t)
	require.NoError(t, p.Await(context.Background(), o, book))

	assert.Equal(t, Fulfilled, o.Status())
	assert.Equal(t, 1, book.fetches)
	assert.Empty(t, *sleeps, "first poll happens without waiting an interval")
}

func TestPollerExpiredOnThirdPoll(t *testing.T) {
	p, sleeps := newTestPoller()
	book := &scriptedBook{script: []string{"open", "open", "expired"}}

	o := submittedOrder(t)
	err := p.Await(context.Background(), o, book)
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, Expired, o.Status())
	assert.Equal(t, 3, book.fetches, "no fourth poll after a terminal status")
	assert.Len(t, *sleeps, 2)
}

func TestPollerCancelledStatus(t *testing.T) {
	p, _ := newTestPoller()
	book := &scriptedBook{script: []string{"cancelled"}}

	o := submittedOrder(t)
	err := p.Await(context.Background(), o, book)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, Cancelled, o.Status())
}

func TestPollerBudgetExhaustion(t *testing.T) {
	p, _ := newTestPoller()
	p.MaxPolls = 5
	book := &scriptedBook{script: []string{"open"}}

	o := submittedOrder(t)
	err := p.Await(context.Background(), o, book)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, TimedOut, o.Status())
	assert.Equal(t, 5, book.fetches)
}

func TestPollerTransientFetchErrorsBurnIterations(t *testing.T) {
	p, _ := newTestPoller()
	p.MaxPolls = 3

	calls := 0
	fetch := fetchFunc(func(ctx context.Context, id string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "fulfilled", nil
	})

	o := submittedOrder(t)
	require.NoError(t, p.Await(context.Background(), o, fetch))
	assert.Equal(t, Fulfilled, o.Status())
	assert.Equal(t, 3, calls)
}

func TestPollerCancellationSuppressesOutcome(t *testing.T) {
	p := NewPoller(nil)
	p.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	fetch := fetchFunc(func(_ context.Context, _ string) (string, error) {
		cancel() // caller walks away mid-flight
		return "open", nil
	})

	o := submittedOrder(t)
	err := p.Await(ctx, o, fetch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Polling, o.Status(), "no transition after abandonment")
}

type fetchFunc func(ctx context.Context, orderID string) (string, error)

func (f fetchFunc) Status(ctx context.Context, orderID string) (string, error) {
	return f(ctx, orderID)
}
