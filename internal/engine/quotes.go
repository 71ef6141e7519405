package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/types"
)

var errInvalidAsk = errors.New("ask not usable")

// quoteFetcher polls the feed until it yields a positive finite ask or the
// timeout elapses. The timeout also bounds each feed call.
type quoteFetcher struct {
	feed           interfaces.QuoteFeed
	timeout        time.Duration
	initialBackoff time.Duration
}

func newQuoteFetcher(feed interfaces.QuoteFeed, timeout, initialBackoff time.Duration) *quoteFetcher {
	return &quoteFetcher{feed: feed, timeout: timeout, initialBackoff: initialBackoff}
}

func (q *quoteFetcher) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.initialBackoff
	b.MaxInterval = q.timeout / 4
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = q.timeout
	return backoff.WithContext(b, ctx)
}

func (q *quoteFetcher) fetchAsk(ctx context.Context, contract types.ContractDescriptor) (float64, error) {
	qctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	var ask float64
	var lastErr error
	attempts := 0

	op := func() error {
		attempts++
		quote, err := q.feed.Quote(qctx, contract)
		if err != nil {
			lastErr = err
			return err
		}
		if math.IsNaN(quote.Ask) || math.IsInf(quote.Ask, 0) || quote.Ask <= 0 {
			lastErr = fmt.Errorf("%w: %v", errInvalidAsk, quote.Ask)
			return lastErr
		}
		ask = quote.Ask
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Debug(ctx, "Quote not ready, retrying", "contract", contract.String(), "attempt", attempts, "wait_ms", wait.Milliseconds(), "error", err)
	}

	if err := backoff.RetryNotify(op, q.newBackOff(qctx), notify); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: waiting for quote: %w", ErrCancelled, ctx.Err())
		}
		if lastErr == nil {
			lastErr = err
		}
		return 0, fmt.Errorf("%w: %s after %d attempts: %w", ErrQuoteUnavailable, contract.String(), attempts, lastErr)
	}
	return ask, nil
}
