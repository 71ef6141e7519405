package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tv-bracket-bot/internal/engine"
	"tv-bracket-bot/internal/store"
	"tv-bracket-bot/internal/types"
)

type recordingPlacer struct {
	mu       sync.Mutex
	requests []types.BracketRequest
	err      error
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (p *recordingPlacer) Place(_ context.Context, req types.BracketRequest) (*types.BracketResult, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(p.delay)

	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &types.BracketResult{PlacementID: "p-" + req.AlertID}, nil
}

func (p *recordingPlacer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// stallingBroker holds contract lookups until release is closed, then
// reports an empty chain.
type stallingBroker struct {
	release chan struct{}
}

func (b *stallingBroker) Start(context.Context) error { return nil }
func (b *stallingBroker) Stop(context.Context)        {}
func (b *stallingBroker) LookupContracts(context.Context, types.ContractQuery) ([]types.ContractDescriptor, error) {
	<-b.release
	return nil, nil
}
func (b *stallingBroker) Quote(context.Context, types.ContractDescriptor) (types.Quote, error) {
	return types.Quote{}, errors.New("no quote")
}
func (b *stallingBroker) SubmitOrder(context.Context, types.ContractDescriptor, types.OrderRequest) (types.TradeHandle, error) {
	return types.TradeHandle{}, errors.New("not accepting orders")
}
func (b *stallingBroker) AmendOrder(_ context.Context, h types.TradeHandle, _ float64, _ bool) (types.TradeHandle, error) {
	return h, errors.New("not accepting orders")
}
func (b *stallingBroker) OrderStatus(context.Context, types.TradeHandle) (types.TradeStatus, error) {
	return types.TradeStatus{}, errors.New("unknown order")
}
func (b *stallingBroker) CancelOrder(context.Context, types.TradeHandle) error { return nil }

type failingBus struct{}

func (failingBus) Publish(context.Context, string, []byte) (int64, error) {
	return 0, errors.New("connection refused")
}
func (failingBus) Subscribe(context.Context, string, func([]byte)) error { return nil }
func (failingBus) Close() error                                          { return nil }

func testServerConfig() store.ServerConfig {
	return store.Default().Server
}

func defaults() types.BracketDefaults {
	return store.Default().Bracket.Defaults()
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, statusResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

// subscribe starts a subscriber and waits until the bus counts it.
func subscribe(t *testing.T, ctx context.Context, bus *MemoryBus, handler func([]byte)) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- bus.Subscribe(ctx, "TradingView", handler) }()
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.subs["TradingView"] > 0
	}, time.Second, time.Millisecond)
	return done
}

func TestServerRoot(t *testing.T) {
	s := NewServer(testServerConfig(), "TradingView", NewMemoryBus())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bot is online", rec.Body.String())
}

func TestServerWebhookStatuses(t *testing.T) {
	bus := NewMemoryBus()
	s := NewServer(testServerConfig(), "TradingView", bus)

	rec, resp := post(t, s.Handler(), `{"referencePrice":441.78,"symbol":"NIFTY","right":"C"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no subscriber")
	assert.Equal(t, "Failure", resp.Status)

	rec, _ = post(t, s.Handler(), "   ")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []byte, 1)
	done := subscribe(t, ctx, bus, func(p []byte) { got <- p })

	rec, resp = post(t, s.Handler(), ` {"referencePrice":441.78,"symbol":"NIFTY","right":"C"} `)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Success", resp.Status)

	select {
	case p := <-got:
		assert.Equal(t, `{"referencePrice":441.78,"symbol":"NIFTY","right":"C"}`, string(p))
	case <-time.After(time.Second):
		t.Fatal("payload not delivered")
	}

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, bus.Close())
}

func TestServerWebhookTransportError(t *testing.T) {
	s := NewServer(testServerConfig(), "TradingView", failingBus{})

	rec, resp := post(t, s.Handler(), `{"symbol":"NIFTY"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failure", resp.Status)
}

func TestServerRejectsOversizedBody(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxBodyBytes = 16
	s := NewServer(cfg, "TradingView", NewMemoryBus())

	rec, _ := post(t, s.Handler(), strings.Repeat("x", 64))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerWebhookMethod(t *testing.T) {
	s := NewServer(testServerConfig(), "TradingView", NewMemoryBus())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWorkerHandleAppliesDefaults(t *testing.T) {
	p := &recordingPlacer{}
	w := NewWorker(NewMemoryBus(), "TradingView", p, defaults(), 1)

	err := w.Handle(context.Background(), []byte(`{"stock_price":"441.78","symbol":"nifty","right":"P","quantity":2}`))
	require.NoError(t, err)

	require.Equal(t, 1, p.count())
	req := p.requests[0]
	assert.NotEmpty(t, req.AlertID)
	assert.Equal(t, "NIFTY", req.Symbol)
	assert.Equal(t, types.Put, req.Right)
	assert.Equal(t, 441.78, req.ReferencePrice)
	assert.Equal(t, 2, req.Quantity)
	assert.Equal(t, 5.0, req.ParentLimitPercent)
	assert.Equal(t, 60.0, req.StopLossPercent)
	assert.Equal(t, 40.0, req.TakeProfitPercent)
}

func TestWorkerHandleRejectsBadAlerts(t *testing.T) {
	p := &recordingPlacer{}
	w := NewWorker(NewMemoryBus(), "TradingView", p, defaults(), 1)

	for _, payload := range []string{`not json`, `{"symbol":"NIFTY","right":"C"}`, `{"referencePrice":10,"symbol":"NIFTY","right":"X"}`} {
		err := w.Handle(context.Background(), []byte(payload))
		assert.ErrorIs(t, err, types.ErrInvalidRequest, payload)
	}
	assert.Zero(t, p.count())
}

func TestWorkerHandleReturnsPlacementError(t *testing.T) {
	p := &recordingPlacer{err: engine.ErrFillTimeout}
	w := NewWorker(NewMemoryBus(), "TradingView", p, defaults(), 1)

	err := w.Handle(context.Background(), []byte(`{"referencePrice":441.78,"symbol":"NIFTY","right":"C","id":"a-1"}`))
	assert.ErrorIs(t, err, engine.ErrFillTimeout)
	assert.Equal(t, "a-1", p.requests[0].AlertID)
}

func TestWorkerRunBoundsConcurrencyAndDrains(t *testing.T) {
	bus := NewMemoryBus()
	p := &recordingPlacer{delay: 20 * time.Millisecond}
	w := NewWorker(bus, "TradingView", p, defaults(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.subs["TradingView"] > 0
	}, time.Second, time.Millisecond)

	const alerts = 6
	for i := 0; i < alerts; i++ {
		n, err := bus.Publish(ctx, "TradingView", []byte(`{"referencePrice":441.78,"symbol":"NIFTY","right":"C"}`))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	}

	require.Eventually(t, func() bool { return p.count() == alerts }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.LessOrEqual(t, p.peak.Load(), int32(2))
}

func TestWorkerReportsInFlightPlacementsOnShutdown(t *testing.T) {
	bus := NewMemoryBus()
	f := &stallingBroker{release: make(chan struct{})}
	eng := engine.New(store.Default(), f, nil)
	w := NewWorker(bus, "TradingView", eng, defaults(), 1)

	var reported atomic.Int32
	var seen []engine.PlacementInfo
	w.ReportInFlight(func() []engine.PlacementInfo {
		seen = eng.Active()
		reported.Add(1)
		close(f.release)
		return seen
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return bus.subs["TradingView"] > 0
	}, time.Second, time.Millisecond)

	_, err := bus.Publish(ctx, "TradingView", []byte(`{"referencePrice":441.78,"symbol":"NIFTY","right":"C","id":"a-7"}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(eng.Active()) == 1 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, reported.Load())
	require.Len(t, seen, 1)
	assert.Equal(t, "a-7", seen[0].AlertID)
	assert.Empty(t, eng.Active())
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newRedisBusWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := bus.Publish(ctx, "TradingView", []byte("x"))
	require.NoError(t, err)
	assert.Zero(t, n)

	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- bus.Subscribe(ctx, "TradingView", func(p []byte) { got <- string(p) })
	}()

	require.Eventually(t, func() bool {
		n, err := bus.Publish(ctx, "TradingView", []byte(`{"symbol":"NIFTY"}`))
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	select {
	case p := <-got:
		assert.Equal(t, `{"symbol":"NIFTY"}`, p)
	case <-time.After(time.Second):
		t.Fatal("payload not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestNewRedisBusGivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewRedisBus(ctx, store.RelayConfig{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}
