package zerodha

import (
	"context"
	"sync"

	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

// orderSink receives streamed order updates.
type orderSink interface {
	applyUpdate(order kiteOrder)
}

// tickerManager streams order updates over the Kite websocket into the
// order book, so fills are seen without polling order history.
type tickerManager struct {
	apiKey      string
	accessToken string
	sink        orderSink

	mu     sync.Mutex
	ticker *kiteticker.Ticker
	done   chan struct{}
}

func newTickerManager(apiKey, accessToken string, sink orderSink) *tickerManager {
	return &tickerManager{apiKey: apiKey, accessToken: accessToken, sink: sink}
}

func (tm *tickerManager) start(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.ticker != nil {
		return nil
	}

	tm.ticker = kiteticker.New(tm.apiKey, tm.accessToken)
	tm.setupEventHandlers()
	tm.done = make(chan struct{})

	go func(t *kiteticker.Ticker, done chan struct{}) {
		defer close(done)
		t.Serve()
	}(tm.ticker, tm.done)

	return nil
}

func (tm *tickerManager) stop(ctx context.Context) {
	tm.mu.Lock()
	t, done := tm.ticker, tm.done
	tm.ticker = nil
	tm.mu.Unlock()

	if t == nil {
		return
	}
	t.Stop()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
