package engine

import (
	"context"
	"fmt"

	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/types"
)

// riskManager rejects requests before any broker call is made.
type riskManager struct {
	maxQuantity int // 0 disables the cap
}

func newRiskManager(maxQuantity int) *riskManager {
	return &riskManager{maxQuantity: maxQuantity}
}

func (rm *riskManager) validate(ctx context.Context, req types.BracketRequest) error {
	if err := req.Validate(); err != nil {
		logger.Risk(ctx, req.Symbol, "REQUEST_REJECTED",
			"alert_id", req.AlertID,
			"error", err,
		)
		return err
	}

	if rm.maxQuantity > 0 && req.Quantity > rm.maxQuantity {
		logger.Risk(ctx, req.Symbol, "QUANTITY_CAP",
			"alert_id", req.AlertID,
			"quantity", req.Quantity,
			"max_quantity", rm.maxQuantity,
		)
		return fmt.Errorf("%w: quantity %d exceeds cap %d", ErrInvalidRequest, req.Quantity, rm.maxQuantity)
	}

	return nil
}
