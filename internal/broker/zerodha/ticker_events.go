package zerodha

import (
	"context"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"tv-bracket-bot/internal/logger"
)

type kiteOrder = kiteconnect.Order

// setupEventHandlers configures the websocket callbacks. Only order updates
// are consumed; ticks are never subscribed.
func (tm *tickerManager) setupEventHandlers() {
	tm.ticker.OnConnect(tm.onConnect)
	tm.ticker.OnError(tm.onError)
	tm.ticker.OnClose(tm.onClose)
	tm.ticker.OnReconnect(tm.onReconnect)
	tm.ticker.OnNoReconnect(tm.onNoReconnect)
	tm.ticker.OnOrderUpdate(tm.onOrderUpdate)
}

func (tm *tickerManager) onConnect() {
	logger.Info(context.Background(), "Order update stream connected")
}

func (tm *tickerManager) onError(err error) {
	logger.ErrorWithErr(context.Background(), "Order update stream error", err)
}

func (tm *tickerManager) onClose(code int, reason string) {
	logger.Warn(context.Background(), "Order update stream closed",
		"code", code,
		"reason", reason,
	)
}

func (tm *tickerManager) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "Order update stream reconnecting",
		"attempt", attempt,
		"delay", delay,
	)
}

func (tm *tickerManager) onNoReconnect(attempt int) {
	logger.Warn(context.Background(), "Order update stream gave up reconnecting, falling back to polling",
		"attempts", attempt,
	)
}

func (tm *tickerManager) onOrderUpdate(order kiteconnect.Order) {
	logger.Debug(context.Background(), "Order update received",
		"kite_order_id", order.OrderID,
		"status", order.Status,
		"tradingsymbol", order.TradingSymbol,
	)
	tm.sink.applyUpdate(order)
}
