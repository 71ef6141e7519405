package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tv-bracket-bot/internal/engine"
	"tv-bracket-bot/internal/store"
	"tv-bracket-bot/internal/types"
)

var ist = time.FixedZone("IST", 19800)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestPaper(mut func(*Params)) (*Paper, *clock) {
	c := &clock{t: time.Date(2024, 3, 20, 10, 0, 0, 0, ist)} // Wednesday
	p := Params{
		Location:      ist,
		Tick:          0.05,
		StrikeStep:    5,
		ExpiryWeekday: time.Thursday,
		PremiumPct:    2,
		SpreadTicks:   2,
		FillDelay:     time.Second,
		Now:           c.now,
	}
	if mut != nil {
		mut(&p)
	}
	return New(p), c
}

func query(right types.Right, month string) types.ContractQuery {
	return types.ContractQuery{Symbol: "nifty", Right: right, Month: month, Near: 441.78}
}

func TestLookupContractsBuildsChain(t *testing.T) {
	pp, _ := newTestPaper(nil)

	got, err := pp.LookupContracts(context.Background(), query(types.Call, "202403"))
	require.NoError(t, err)
	require.Len(t, got, 2*21)

	expiries := map[string]bool{}
	for _, c := range got {
		assert.Equal(t, "NIFTY", c.Symbol)
		assert.Equal(t, types.Call, c.Right)
		assert.GreaterOrEqual(t, c.Strike, 390.0)
		assert.LessOrEqual(t, c.Strike, 490.0)
		assert.Equal(t, 0.05, c.Tick)
		expiries[c.Expiry.Format("2006-01-02")] = true
	}
	assert.Equal(t, map[string]bool{"2024-03-21": true, "2024-03-28": true}, expiries)
	assert.Equal(t, "NIFTY240321390C", got[0].TradingSymbol)
}

func TestLookupContractsNextMonthIncludesMonthlyExpiry(t *testing.T) {
	pp, _ := newTestPaper(nil)

	got, err := pp.LookupContracts(context.Background(), query(types.Put, "202404"))
	require.NoError(t, err)

	expiries := map[string]bool{}
	for _, c := range got {
		expiries[c.Expiry.Format("2006-01-02")] = true
	}
	assert.Equal(t, map[string]bool{"2024-04-04": true, "2024-04-11": true, "2024-04-25": true}, expiries)
}

func TestLookupContractsNeedsUnderlyingPrice(t *testing.T) {
	pp, _ := newTestPaper(nil)

	_, err := pp.LookupContracts(context.Background(), types.ContractQuery{Symbol: "NIFTY", Right: types.Call})
	assert.Error(t, err)
}

func TestQuoteFromIntrinsicAndPremium(t *testing.T) {
	pp, _ := newTestPaper(nil)
	ctx := context.Background()

	calls, err := pp.LookupContracts(ctx, query(types.Call, "202403"))
	require.NoError(t, err)
	puts, err := pp.LookupContracts(ctx, query(types.Put, "202403"))
	require.NoError(t, err)

	strike440 := func(cs []types.ContractDescriptor) types.ContractDescriptor {
		for _, c := range cs {
			if c.Strike == 440 {
				return c
			}
		}
		t.Fatal("no 440 strike")
		return types.ContractDescriptor{}
	}

	q, err := pp.Quote(ctx, strike440(calls))
	require.NoError(t, err)
	assert.InDelta(t, 10.55, q.Bid, 1e-9)
	assert.InDelta(t, 10.65, q.Ask, 1e-9)

	q, err = pp.Quote(ctx, strike440(puts))
	require.NoError(t, err)
	assert.InDelta(t, 8.80, q.Bid, 1e-9)
	assert.InDelta(t, 8.90, q.Ask, 1e-9)

	_, err = pp.Quote(ctx, types.ContractDescriptor{Symbol: "BANKNIFTY", Tick: 0.05})
	assert.ErrorIs(t, err, ErrNoMarket)
}

func submitBracket(t *testing.T, pp *Paper, c types.ContractDescriptor) (parent, tp, sl types.TradeHandle) {
	t.Helper()
	ctx := context.Background()
	var err error
	parent, err = pp.SubmitOrder(ctx, c, types.OrderRequest{Side: types.Buy, Type: types.Limit, Quantity: 1, Price: 11.20})
	require.NoError(t, err)
	tp, err = pp.SubmitOrder(ctx, c, types.OrderRequest{Side: types.Sell, Type: types.Limit, Quantity: 1, Price: 15.70, ParentID: parent.OrderID})
	require.NoError(t, err)
	sl, err = pp.SubmitOrder(ctx, c, types.OrderRequest{Side: types.Sell, Type: types.Stop, Quantity: 1, Price: 4.45, ParentID: parent.OrderID, Transmit: true})
	require.NoError(t, err)
	return parent, tp, sl
}

func TestBracketFillsAfterDelay(t *testing.T) {
	pp, clk := newTestPaper(nil)
	ctx := context.Background()

	chain, err := pp.LookupContracts(ctx, query(types.Call, "202403"))
	require.NoError(t, err)
	parent, tp, sl := submitBracket(t, pp, chain[10])

	st, err := pp.OrderStatus(ctx, sl)
	require.NoError(t, err)
	assert.Equal(t, types.StateSubmitted, st.State, "stop-loss releases the bracket")

	st, err = pp.OrderStatus(ctx, tp)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, st.State, "take-profit stays held before the fill")

	st, err = pp.OrderStatus(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, types.StateSubmitted, st.State)

	clk.t = clk.t.Add(time.Second)
	st, err = pp.OrderStatus(ctx, parent)
	require.NoError(t, err)
	require.True(t, st.Filled())
	assert.Equal(t, 1, st.FilledQty)
	assert.InDelta(t, 10.65, st.AvgFillPrice, 1e-9, "fills at the ask")

	st, err = pp.OrderStatus(ctx, tp)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, st.State)

	out, err := pp.AmendOrder(ctx, tp, 14.90, true)
	require.NoError(t, err)
	assert.Equal(t, 14.90, out.Request.Price)
	assert.True(t, out.Request.Transmit)

	st, err = pp.OrderStatus(ctx, tp)
	require.NoError(t, err)
	assert.Equal(t, types.StateSubmitted, st.State)
}

func TestHeldParentNeverFills(t *testing.T) {
	pp, clk := newTestPaper(nil)
	ctx := context.Background()
	chain, err := pp.LookupContracts(ctx, query(types.Call, "202403"))
	require.NoError(t, err)

	h, err := pp.SubmitOrder(ctx, chain[0], types.OrderRequest{Side: types.Buy, Type: types.Limit, Quantity: 1, Price: 50})
	require.NoError(t, err)

	clk.t = clk.t.Add(time.Hour)
	st, err := pp.OrderStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, st.State)
}

func TestNeverFill(t *testing.T) {
	pp, clk := newTestPaper(func(p *Params) { p.NeverFill = true })
	ctx := context.Background()
	chain, err := pp.LookupContracts(ctx, query(types.Call, "202403"))
	require.NoError(t, err)
	parent, _, _ := submitBracket(t, pp, chain[10])

	clk.t = clk.t.Add(time.Hour)
	st, err := pp.OrderStatus(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, types.StateSubmitted, st.State)
}

func TestCancel(t *testing.T) {
	pp, clk := newTestPaper(func(p *Params) { p.FillDelay = 0 })
	ctx := context.Background()
	chain, err := pp.LookupContracts(ctx, query(types.Call, "202403"))
	require.NoError(t, err)
	parent, tp, sl := submitBracket(t, pp, chain[10])

	require.NoError(t, pp.CancelOrder(ctx, sl))
	assert.ErrorIs(t, pp.CancelOrder(ctx, sl), ErrOrderDone)

	st, err := pp.OrderStatus(ctx, sl)
	require.NoError(t, err)
	assert.Equal(t, types.StateCancelled, st.State)

	_, err = pp.AmendOrder(ctx, sl, 5, true)
	assert.ErrorIs(t, err, ErrOrderDone)

	clk.t = clk.t.Add(time.Millisecond)
	st, err = pp.OrderStatus(ctx, parent)
	require.NoError(t, err)
	require.True(t, st.Filled())
	assert.ErrorIs(t, pp.CancelOrder(ctx, parent), ErrOrderDone)

	require.NoError(t, pp.CancelOrder(ctx, tp))
	assert.ErrorIs(t, pp.CancelOrder(ctx, types.TradeHandle{OrderID: "SIM-99"}), ErrOrderNotFound)
}

func TestEnginePlacesOnPaper(t *testing.T) {
	cfg := store.Default()
	cfg.Execution.RollToNextMonth = true
	cfg.Execution.FillPollIntervalMs = 1

	pp := New(Params{
		Location:      cfg.Location(),
		Tick:          cfg.Broker.DefaultTick,
		StrikeStep:    cfg.Paper.StrikeStep,
		ExpiryWeekday: cfg.Paper.Weekday(),
		PremiumPct:    cfg.Paper.PremiumPct,
		SpreadTicks:   cfg.Paper.SpreadTicks,
	})

	req := types.BracketRequest{
		AlertID:            "a1",
		ReferencePrice:     441.78,
		Symbol:             "NIFTY",
		Right:              types.Call,
		Quantity:           1,
		ParentLimitPercent: 5,
		StopLossPercent:    60,
		TakeProfitPercent:  40,
	}
	res, err := engine.New(cfg, pp, nil).Place(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 440.0, res.Contract.Strike)
	assert.Greater(t, res.AvgFillPrice, 0.0)
	assert.LessOrEqual(t, res.AvgFillPrice, res.EntryPrice)
	assert.Greater(t, res.TakeProfitPrice, res.AvgFillPrice)
	assert.Less(t, res.StopLossPrice, res.AvgFillPrice)
	assert.True(t, res.TakeProfit.Request.Transmit)
	assert.True(t, res.StopLoss.Request.Transmit)
}
