package engine

import (
	"context"
	"math"
	"time"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/store"
	"tv-bracket-bot/internal/tradelog"
	"tv-bracket-bot/internal/types"
)

// Settings are the placement knobs taken from config.
type Settings struct {
	Location              *time.Location
	MaxQuantity           int
	HoldStopLossUntilFill bool
	CancelOnFailure       bool
	RollToNextMonth       bool
	QuoteTimeout          time.Duration
	QuoteInitialBackoff   time.Duration
	FillPollInterval      time.Duration
	FillPollAttempts      int
}

func SettingsFromConfig(cfg *store.Config) Settings {
	return Settings{
		Location:              cfg.Location(),
		MaxQuantity:           cfg.Bracket.MaxQuantity,
		HoldStopLossUntilFill: cfg.Bracket.HoldStopLossUntilFill,
		CancelOnFailure:       cfg.Bracket.CancelOnFailure,
		RollToNextMonth:       cfg.Execution.RollToNextMonth,
		QuoteTimeout:          cfg.Execution.QuoteTimeout(),
		QuoteInitialBackoff:   cfg.Execution.QuoteInitialBackoff(),
		FillPollInterval:      cfg.Execution.FillPollInterval(),
		FillPollAttempts:      cfg.Execution.FillPollAttempts,
	}
}

// Journal records one entry per finished placement.
type Journal interface {
	Append(e tradelog.Entry) error
}

// Engine is the bracket order placer. It is safe for concurrent use; each
// Place call runs its own sequential pipeline.
type Engine struct {
	settings Settings
	resolver *resolver
	quotes   *quoteFetcher
	fills    *fillWaiter
	orders   *orderExecutor
	risk     *riskManager
	tracker  *placementTracker
	journal  Journal
	ids      *idSource
	now      func() time.Time
}

var _ interfaces.Placer = (*Engine)(nil)

func newEngine(s Settings, lookup interfaces.ContractLookup, feed interfaces.QuoteFeed, gateway interfaces.OrderGateway, journal Journal, now func() time.Time) *Engine {
	if s.Location == nil {
		s.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		settings: s,
		resolver: newResolver(lookup, s.RollToNextMonth),
		quotes:   newQuoteFetcher(feed, s.QuoteTimeout, s.QuoteInitialBackoff),
		fills:    newFillWaiter(gateway, s.FillPollInterval, s.FillPollAttempts),
		orders:   newOrderExecutor(gateway),
		risk:     newRiskManager(s.MaxQuantity),
		tracker:  newPlacementTracker(now),
		journal:  journal,
		ids:      newIDSource(now),
		now:      now,
	}
}

// Place resolves a contract for req, submits the bracket and, once the parent
// fills, reprices and releases the children from the average fill price.
// Errors match the package sentinels with errors.Is.
func (e *Engine) Place(ctx context.Context, req types.BracketRequest) (*types.BracketResult, error) {
	start := e.now()
	id := e.ids.next()

	if err := e.risk.validate(ctx, req); err != nil {
		e.record(ctx, req, &types.BracketResult{PlacementID: id}, start, err)
		return nil, err
	}

	e.tracker.begin(ctx, id, req)
	res, err := e.place(ctx, id, req)
	e.tracker.finish(ctx, id, err)
	e.record(ctx, req, res, start, err)

	if err != nil {
		return nil, err
	}
	return res, nil
}

// Active lists placements that have not finished yet.
func (e *Engine) Active() []PlacementInfo {
	return e.tracker.snapshot()
}

func (e *Engine) place(ctx context.Context, id string, req types.BracketRequest) (*types.BracketResult, error) {
	res := &types.BracketResult{PlacementID: id}
	asOf := e.now().In(e.settings.Location)

	contract, err := e.resolver.resolve(ctx, req.Symbol, req.Right, req.ReferencePrice, asOf)
	if err != nil {
		return res, err
	}
	res.Contract = contract
	e.tracker.transition(ctx, id, StatePricing, func(p *PlacementInfo) { p.Contract = contract.String() },
		"contract", contract.String(),
		"tick", contract.Tick,
	)

	ask, err := e.quotes.fetchAsk(ctx, contract)
	if err != nil {
		return res, err
	}
	lv, err := initialLevels(ask, contract.Tick, req.ParentLimitPercent, req.TakeProfitPercent, req.StopLossPercent)
	if err != nil {
		return res, err
	}
	res.EntryPrice, res.TakeProfitPrice, res.StopLossPrice = lv.Entry, lv.TakeProfit, lv.StopLoss
	logger.Debug(ctx, "Bracket priced",
		"placement_id", id,
		"ask", ask,
		"entry", lv.Entry,
		"take_profit", lv.TakeProfit,
		"stop_loss", lv.StopLoss,
	)

	b, err := e.orders.submitBracket(ctx, id, contract, req.Quantity, lv, e.settings.HoldStopLossUntilFill)
	res.Parent, res.TakeProfit, res.StopLoss = b.parent, b.takeProfit, b.stopLoss
	if err != nil {
		e.compensate(ctx, id, b)
		return res, err
	}
	e.tracker.transition(ctx, id, StateParentSubmitted, func(p *PlacementInfo) { p.ParentOrderID = b.parent.OrderID },
		"parent_order_id", b.parent.OrderID,
		"take_profit_order_id", b.takeProfit.OrderID,
		"stop_loss_order_id", b.stopLoss.OrderID,
	)

	e.tracker.transition(ctx, id, StateAwaitingFill, nil)
	status, err := e.fills.await(ctx, b.parent)
	if err != nil {
		e.compensate(ctx, id, b)
		return res, err
	}

	avg := status.AvgFillPrice
	if math.IsNaN(avg) || math.IsInf(avg, 0) || avg <= 0 {
		logger.Warn(ctx, "Parent filled without a usable average price, repricing from entry",
			"placement_id", id,
			"avg_fill_price", avg,
			"entry", lv.Entry,
		)
		avg = lv.Entry
	}
	res.AvgFillPrice = avg
	e.tracker.transition(ctx, id, StateRepricing, nil, "avg_fill_price", avg, "filled_qty", status.FilledQty)

	tp, sl, err := childLevels(avg, contract.Tick, req.TakeProfitPercent, req.StopLossPercent)
	if err != nil {
		return res, err
	}
	res.TakeProfitPrice, res.StopLossPrice = tp, sl

	// The position is open now; the children go out even if the caller gives up.
	relCtx := context.WithoutCancel(ctx)
	res.TakeProfit, res.StopLoss, err = e.orders.release(relCtx, b, tp, sl)
	if err != nil {
		return res, err
	}

	return res, nil
}

// compensate withdraws a failed bracket when cancel_on_failure is set.
func (e *Engine) compensate(ctx context.Context, id string, b bracket) {
	if !e.settings.CancelOnFailure || b.parent.OrderID == "" {
		return
	}
	n := e.orders.cancelAll(ctx, b)
	logger.Warn(ctx, "Bracket withdrawn after failure", "placement_id", id, "cancelled", n)
}

func (e *Engine) record(ctx context.Context, req types.BracketRequest, res *types.BracketResult, start time.Time, err error) {
	if e.journal == nil {
		return
	}

	entry := tradelog.Entry{
		PlacementID:    res.PlacementID,
		AlertID:        req.AlertID,
		Symbol:         req.Symbol,
		Right:          string(req.Right),
		Quantity:       req.Quantity,
		ReferencePrice: req.ReferencePrice,
		EntryPrice:     res.EntryPrice,
		AvgFillPrice:   res.AvgFillPrice,
		TakeProfit:     res.TakeProfitPrice,
		StopLoss:       res.StopLossPrice,
		ParentOrderID:  res.Parent.OrderID,
		Outcome:        Outcome(err),
		DurationMs:     e.now().Sub(start).Milliseconds(),
	}
	if res.Contract.Symbol != "" {
		entry.Contract = res.Contract.String()
		entry.Strike = res.Contract.Strike
		entry.Expiry = res.Contract.Expiry.Format("2006-01-02")
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if jerr := e.journal.Append(entry); jerr != nil {
		logger.ErrorWithErr(ctx, "Failed to journal placement", jerr, "placement_id", res.PlacementID)
	}
}
