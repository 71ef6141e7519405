package engine

import (
	"context"
	"fmt"
	"time"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/types"
)

const cancelTimeout = 5 * time.Second

// bracket holds the handles submitted so far. Zero OrderIDs mark orders that
// were never submitted.
type bracket struct {
	parent     types.TradeHandle
	takeProfit types.TradeHandle
	stopLoss   types.TradeHandle
}

func (b bracket) submitted() []types.TradeHandle {
	out := make([]types.TradeHandle, 0, 3)
	for _, h := range []types.TradeHandle{b.stopLoss, b.takeProfit, b.parent} {
		if h.OrderID != "" {
			out = append(out, h)
		}
	}
	return out
}

// orderExecutor submits, releases and withdraws the orders of a bracket.
type orderExecutor struct {
	gateway   interfaces.OrderGateway
	canceller interfaces.OrderCanceller // nil when the gateway cannot cancel
}

func newOrderExecutor(gateway interfaces.OrderGateway) *orderExecutor {
	oe := &orderExecutor{gateway: gateway}
	if c, ok := gateway.(interfaces.OrderCanceller); ok {
		oe.canceller = c
	}
	return oe
}

// submitBracket sends the parent, the held take-profit and the stop-loss.
// By default the parent is held and the stop-loss transmits the bracket.
// With holdStopLoss both children are held and the parent transmits itself.
// On error the returned bracket carries whatever was accepted.
func (oe *orderExecutor) submitBracket(ctx context.Context, placementID string, contract types.ContractDescriptor, qty int, lv levels, holdStopLoss bool) (bracket, error) {
	var b bracket
	tag := orderTag(placementID)

	parent, err := oe.submit(ctx, contract, "parent", types.OrderRequest{
		Side:     types.Buy,
		Type:     types.Limit,
		Quantity: qty,
		Price:    lv.Entry,
		Transmit: holdStopLoss,
		Tag:      tag,
	})
	if err != nil {
		return b, err
	}
	b.parent = parent

	tp, err := oe.submit(ctx, contract, "take_profit", types.OrderRequest{
		Side:     types.Sell,
		Type:     types.Limit,
		Quantity: qty,
		Price:    lv.TakeProfit,
		ParentID: parent.OrderID,
		Transmit: false,
		Tag:      tag,
	})
	if err != nil {
		return b, err
	}
	b.takeProfit = tp

	sl, err := oe.submit(ctx, contract, "stop_loss", types.OrderRequest{
		Side:     types.Sell,
		Type:     types.Stop,
		Quantity: qty,
		Price:    lv.StopLoss,
		ParentID: parent.OrderID,
		Transmit: !holdStopLoss,
		Tag:      tag,
	})
	if err != nil {
		return b, err
	}
	b.stopLoss = sl

	return b, nil
}

func (oe *orderExecutor) submit(ctx context.Context, contract types.ContractDescriptor, role string, req types.OrderRequest) (types.TradeHandle, error) {
	h, err := oe.gateway.SubmitOrder(ctx, contract, req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to submit order", err,
			"role", role,
			"contract", contract.String(),
			"side", req.Side,
			"price", req.Price,
		)
		return types.TradeHandle{}, fmt.Errorf("%w: submit %s: %w", ErrGatewayRejected, role, err)
	}

	logger.Trade(ctx, contract.String(), string(req.Side), req.Quantity, req.Price, h.OrderID,
		"role", role,
		"order_type", req.Type,
		"transmit", req.Transmit,
		"parent_id", req.ParentID,
	)
	return h, nil
}

// release amends take-profit then stop-loss to their final prices with
// transmit set. Each child is amended exactly once.
func (oe *orderExecutor) release(ctx context.Context, b bracket, tp, sl float64) (types.TradeHandle, types.TradeHandle, error) {
	tpH, err := oe.amend(ctx, "take_profit", b.takeProfit, tp)
	if err != nil {
		return b.takeProfit, b.stopLoss, err
	}
	slH, err := oe.amend(ctx, "stop_loss", b.stopLoss, sl)
	if err != nil {
		return tpH, b.stopLoss, err
	}
	return tpH, slH, nil
}

func (oe *orderExecutor) amend(ctx context.Context, role string, h types.TradeHandle, price float64) (types.TradeHandle, error) {
	out, err := oe.gateway.AmendOrder(ctx, h, price, true)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to release order", err, "role", role, "order_id", h.OrderID, "price", price)
		return h, fmt.Errorf("%w: amend %s %s: %w", ErrGatewayRejected, role, h.OrderID, err)
	}

	logger.Trade(ctx, h.Contract.String(), string(h.Request.Side), h.Request.Quantity, price, out.OrderID,
		"role", role,
		"order_type", h.Request.Type,
		"transmit", true,
		"amended_from", h.Request.Price,
	)
	return out, nil
}

// cancelAll withdraws every submitted order of b, children first. Errors are
// logged, not returned. It runs detached from ctx cancellation.
func (oe *orderExecutor) cancelAll(ctx context.Context, b bracket) int {
	if oe.canceller == nil {
		logger.Warn(ctx, "Gateway cannot cancel orders, leaving bracket in place", "parent_id", b.parent.OrderID)
		return 0
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	cancelled := 0
	for _, h := range b.submitted() {
		if err := oe.canceller.CancelOrder(cctx, h); err != nil {
			logger.ErrorWithErr(ctx, "Failed to cancel order", err, "order_id", h.OrderID)
			continue
		}
		cancelled++
	}
	return cancelled
}

// orderTag fits broker tag limits (Kite allows 20 chars).
func orderTag(placementID string) string {
	const keep = 16
	if len(placementID) > keep {
		placementID = placementID[len(placementID)-keep:]
	}
	return "tv" + placementID
}
