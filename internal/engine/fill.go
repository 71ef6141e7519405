package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/types"
)

var errNotFilled = errors.New("not filled yet")

const statusGrace = time.Second

// fillWaiter polls the parent order status at a fixed interval for a bounded
// number of attempts. The whole wait, status calls included, is capped at
// interval*attempts plus statusGrace.
type fillWaiter struct {
	gateway  interfaces.OrderGateway
	interval time.Duration
	attempts int
}

func newFillWaiter(gateway interfaces.OrderGateway, interval time.Duration, attempts int) *fillWaiter {
	if attempts < 1 {
		attempts = 1
	}
	return &fillWaiter{gateway: gateway, interval: interval, attempts: attempts}
}

// await returns the filled status, ErrFillTimeout after the last attempt,
// ErrCancelled when ctx ends first, and ErrGatewayRejected when the parent is
// cancelled or rejected at the broker or its status cannot be read.
func (w *fillWaiter) await(ctx context.Context, parent types.TradeHandle) (types.TradeStatus, error) {
	wctx, cancel := context.WithTimeout(ctx, w.interval*time.Duration(w.attempts)+statusGrace)
	defer cancel()

	var status types.TradeStatus

	op := func() error {
		if err := wctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		st, err := w.gateway.OrderStatus(wctx, parent)
		if err != nil {
			if wctx.Err() != nil {
				return backoff.Permanent(errNotFilled)
			}
			return backoff.Permanent(fmt.Errorf("%w: status of parent %s: %w", ErrGatewayRejected, parent.OrderID, err))
		}
		status = st
		switch st.State {
		case types.StateFilled:
			return nil
		case types.StateCancelled, types.StateRejected:
			return backoff.Permanent(fmt.Errorf("%w: parent %s %s: %s", ErrGatewayRejected, parent.OrderID, st.State, st.Message))
		}
		return errNotFilled
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(w.interval), uint64(w.attempts-1)), wctx)
	err := backoff.Retry(op, b)
	switch {
	case err == nil:
		return status, nil
	case ctx.Err() != nil:
		return status, fmt.Errorf("%w: waiting for parent %s: %w", ErrCancelled, parent.OrderID, ctx.Err())
	case errors.Is(err, errNotFilled) || wctx.Err() != nil:
		return status, fmt.Errorf("%w: parent %s still %s after %d polls", ErrFillTimeout, parent.OrderID, status.State, w.attempts)
	}
	return status, err
}
