package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tv-bracket-bot/internal/engine"
	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/types"
)

// Worker subscribes to the alert channel and places one bracket per alert,
// at most maxConcurrent at a time.
type Worker struct {
	bus      interfaces.Bus
	channel  string
	placer   interfaces.Placer
	defaults types.BracketDefaults

	sem      chan struct{}
	wg       sync.WaitGroup
	inFlight func() []engine.PlacementInfo
}

func NewWorker(bus interfaces.Bus, channel string, placer interfaces.Placer, defaults types.BracketDefaults, maxConcurrent int) *Worker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Worker{
		bus:      bus,
		channel:  channel,
		placer:   placer,
		defaults: defaults,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// ReportInFlight makes Run log the placements it still waits for on shutdown.
func (w *Worker) ReportInFlight(active func() []engine.PlacementInfo) {
	w.inFlight = active
}

// Run blocks until ctx is done or the subscription fails, then waits for
// in-flight placements. Placements are not cancelled by shutdown.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info(ctx, "Worker started", "channel", w.channel, "max_concurrent", cap(w.sem))

	err := w.bus.Subscribe(ctx, w.channel, func(payload []byte) {
		w.dispatch(ctx, payload)
	})

	w.logInFlight(ctx)
	w.wg.Wait()
	if err != nil {
		logger.ErrorWithErr(ctx, "Worker subscription failed", err, "channel", w.channel)
		return err
	}
	logger.Info(ctx, "Worker stopped", "channel", w.channel)
	return nil
}

func (w *Worker) logInFlight(ctx context.Context) {
	if w.inFlight == nil {
		return
	}
	for _, p := range w.inFlight() {
		logger.Info(ctx, "Waiting for in-flight placement",
			"placement_id", p.ID,
			"alert_id", p.AlertID,
			"symbol", p.Symbol,
			"state", p.State,
			"parent_order_id", p.ParentOrderID,
			"age", time.Since(p.Started),
		)
	}
}

func (w *Worker) dispatch(ctx context.Context, payload []byte) {
	if ctx.Err() != nil {
		return
	}
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		logger.Warn(ctx, "Dropping alert received during shutdown", "bytes", len(payload))
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		_ = w.Handle(context.WithoutCancel(ctx), payload)
	}()
}

// Handle parses one payload and places its bracket.
func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	alert, err := types.ParseAlert(payload)
	if err != nil {
		logger.Warn(ctx, "Discarding malformed alert", "error", err, "payload", string(payload))
		return err
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	req, err := alert.Request(w.defaults)
	if err != nil {
		logger.Warn(ctx, "Discarding invalid alert", "alert_id", alert.ID, "error", err)
		return err
	}

	logger.Info(ctx, "Alert received",
		"alert_id", req.AlertID,
		"symbol", req.Symbol,
		"right", req.Right,
		"reference_price", req.ReferencePrice,
		"quantity", req.Quantity,
	)

	res, err := w.placer.Place(ctx, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Bracket placement failed", err, "alert_id", req.AlertID, "symbol", req.Symbol)
		return err
	}

	logger.Info(ctx, "Bracket placed",
		"alert_id", req.AlertID,
		"placement_id", res.PlacementID,
		"contract", res.Contract.String(),
		"avg_fill_price", res.AvgFillPrice,
		"take_profit", res.TakeProfitPrice,
		"stop_loss", res.StopLossPrice,
	)
	return nil
}
