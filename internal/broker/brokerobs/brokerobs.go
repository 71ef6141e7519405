package brokerobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/trace"
	"tv-bracket-bot/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

func (ob *observableBroker) Start(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Start")
	err := ob.broker.Start(ctx)
	trace.EndSpan(span, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start broker", err)
		return err
	}
	logger.InfoSkip(ctx, 1, "Broker started")
	return nil
}

func (ob *observableBroker) Stop(ctx context.Context) {
	ob.broker.Stop(ctx)
	logger.InfoSkip(ctx, 1, "Broker stopped")
}

// LookupContracts lists option contracts with observability
func (ob *observableBroker) LookupContracts(ctx context.Context, q types.ContractQuery) ([]types.ContractDescriptor, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LookupContracts")

	logger.DebugSkip(ctx, 1, "Looking up contracts", "symbol", q.Symbol, "right", q.Right, "month", q.Month)

	out, err := ob.broker.LookupContracts(ctx, q)
	trace.EndSpan(span, err, attribute.String("symbol", q.Symbol), attribute.Int("contracts", len(out)))
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to look up contracts", err, "symbol", q.Symbol, "right", q.Right)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Contracts found", "symbol", q.Symbol, "count", len(out))
	return out, nil
}

// Quote fetches the best bid and ask with observability
func (ob *observableBroker) Quote(ctx context.Context, contract types.ContractDescriptor) (types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Quote")

	q, err := ob.broker.Quote(ctx, contract)
	trace.EndSpan(span, err, attribute.String("contract", contract.String()))
	if err != nil {
		logger.WarnSkip(ctx, 1, "Quote request failed", "contract", contract.String(), "error", err)
		return q, err
	}

	logger.DebugSkip(ctx, 1, "Quote received", "contract", contract.String(), "bid", q.Bid, "ask", q.Ask)
	return q, nil
}

// SubmitOrder submits an order with observability
func (ob *observableBroker) SubmitOrder(ctx context.Context, contract types.ContractDescriptor, req types.OrderRequest) (types.TradeHandle, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SubmitOrder")

	logger.DebugSkip(ctx, 1, "Submitting order",
		"contract", contract.String(),
		"side", req.Side,
		"type", req.Type,
		"qty", req.Quantity,
		"price", req.Price,
		"transmit", req.Transmit,
	)

	h, err := ob.broker.SubmitOrder(ctx, contract, req)
	trace.EndSpan(span, err, attribute.String("order_id", h.OrderID), attribute.Bool("transmit", req.Transmit))
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker rejected order", err,
			"contract", contract.String(),
			"side", req.Side,
			"price", req.Price,
		)
		return h, err
	}
	return h, nil
}

// AmendOrder amends an order with observability
func (ob *observableBroker) AmendOrder(ctx context.Context, h types.TradeHandle, price float64, transmit bool) (types.TradeHandle, error) {
	ctx, span := trace.StartSpan(ctx, "broker.AmendOrder")

	out, err := ob.broker.AmendOrder(ctx, h, price, transmit)
	trace.EndSpan(span, err, attribute.String("order_id", h.OrderID), attribute.Float64("price", price))
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Broker rejected amendment", err, "order_id", h.OrderID, "price", price)
		return out, err
	}

	logger.DebugSkip(ctx, 1, "Order amended", "order_id", h.OrderID, "from", h.Request.Price, "to", price, "transmit", transmit)
	return out, nil
}

// OrderStatus polls an order. Polls are frequent, so only failures are logged.
func (ob *observableBroker) OrderStatus(ctx context.Context, h types.TradeHandle) (types.TradeStatus, error) {
	st, err := ob.broker.OrderStatus(ctx, h)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Order status request failed", "order_id", h.OrderID, "error", err)
	}
	return st, err
}

// CancelOrder cancels an order with observability
func (ob *observableBroker) CancelOrder(ctx context.Context, h types.TradeHandle) error {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")

	err := ob.broker.CancelOrder(ctx, h)
	trace.EndSpan(span, err, attribute.String("order_id", h.OrderID))
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", h.OrderID)
		return err
	}

	logger.InfoSkip(ctx, 1, "Order cancelled", "order_id", h.OrderID)
	return nil
}
