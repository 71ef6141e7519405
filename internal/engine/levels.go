package engine

import (
	"fmt"

	"tv-bracket-bot/internal/pricing"
)

// levels are the three prices of a bracket, each on the contract's tick grid.
type levels struct {
	Entry      float64
	TakeProfit float64
	StopLoss   float64
}

// initialLevels prices the bracket from the ask before anything is submitted.
func initialLevels(ask, tick, parentLimitPct, takeProfitPct, stopLossPct float64) (levels, error) {
	entry, err := pricing.DerivePrice(ask, parentLimitPct, tick)
	if err != nil {
		return levels{}, fmt.Errorf("entry price: %w", err)
	}
	tp, sl, err := childLevels(entry, tick, takeProfitPct, stopLossPct)
	if err != nil {
		return levels{}, err
	}
	return levels{Entry: entry, TakeProfit: tp, StopLoss: sl}, nil
}

// childLevels derives take-profit and stop-loss from base, which is the
// entry limit before the fill and the average fill price after it.
func childLevels(base, tick, takeProfitPct, stopLossPct float64) (tp, sl float64, err error) {
	if tp, err = pricing.DerivePrice(base, takeProfitPct, tick); err != nil {
		return 0, 0, fmt.Errorf("take-profit price: %w", err)
	}
	if sl, err = pricing.StopLossPrice(base, stopLossPct, tick); err != nil {
		return 0, 0, fmt.Errorf("stop-loss price: %w", err)
	}
	return tp, sl, nil
}
