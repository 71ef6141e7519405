package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tv-bracket-bot/internal/engine"
	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/trace"
	"tv-bracket-bot/internal/types"
)

type observablePlacer struct {
	placer interfaces.Placer
}

var _ interfaces.Placer = (*observablePlacer)(nil)

func Wrap(p interfaces.Placer) interfaces.Placer {
	return &observablePlacer{
		placer: p,
	}
}

func (op *observablePlacer) Place(ctx context.Context, req types.BracketRequest) (*types.BracketResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Place")
	start := time.Now()

	logger.InfoSkip(ctx, 1, "Placing bracket",
		"alert_id", req.AlertID,
		"symbol", req.Symbol,
		"right", req.Right,
		"reference_price", req.ReferencePrice,
		"quantity", req.Quantity,
	)

	result, err := op.placer.Place(ctx, req)
	outcome := engine.Outcome(err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Bracket placement failed", err,
			"alert_id", req.AlertID,
			"symbol", req.Symbol,
			"outcome", outcome,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		trace.EndSpan(span, err, attribute.String("outcome", outcome))
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Bracket placed",
		"alert_id", req.AlertID,
		"placement_id", result.PlacementID,
		"contract", result.Contract.String(),
		"entry", result.EntryPrice,
		"avg_fill_price", result.AvgFillPrice,
		"take_profit", result.TakeProfitPrice,
		"stop_loss", result.StopLossPrice,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	trace.EndSpan(span, nil,
		attribute.String("outcome", outcome),
		attribute.String("placement_id", result.PlacementID),
	)

	return result, nil
}
