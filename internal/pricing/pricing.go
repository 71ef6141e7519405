// Package pricing rounds and derives order prices on an instrument's tick grid.
//
// All arithmetic is done in decimal so that values such as 0.05 ticks do not
// pick up binary floating-point error before rounding.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var ErrInvalidTick = errors.New("invalid tick size")

var hundred = decimal.NewFromInt(100)

// RoundToTick rounds value to the nearest multiple of tick, half to even.
func RoundToTick(value, tick float64) (float64, error) {
	t, err := tickDecimal(tick)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("cannot round non-finite value %v", value)
	}
	return roundDecimal(decimal.NewFromFloat(value), t).InexactFloat64(), nil
}

// DerivePrice returns base moved by percent (negative moves down), on the tick grid.
func DerivePrice(base, percent, tick float64) (float64, error) {
	t, err := tickDecimal(tick)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(base) || math.IsInf(base, 0) || math.IsNaN(percent) || math.IsInf(percent, 0) {
		return 0, fmt.Errorf("cannot derive price from base %v percent %v", base, percent)
	}
	b := decimal.NewFromFloat(base)
	raw := b.Add(b.Mul(decimal.NewFromFloat(percent)).Div(hundred))
	return roundDecimal(raw, t).InexactFloat64(), nil
}

// StopLossPrice is DerivePrice(base, -percent, tick) floored at one tick.
func StopLossPrice(base, percent, tick float64) (float64, error) {
	p, err := DerivePrice(base, -percent, tick)
	if err != nil {
		return 0, err
	}
	return FloorAtTick(p, tick), nil
}

// FloorAtTick keeps a price at or above the smallest positive tick multiple.
func FloorAtTick(price, tick float64) float64 {
	if price < tick {
		return tick
	}
	return price
}

func roundDecimal(v, tick decimal.Decimal) decimal.Decimal {
	return v.Div(tick).RoundBank(0).Mul(tick)
}

func tickDecimal(tick float64) (decimal.Decimal, error) {
	if math.IsNaN(tick) || math.IsInf(tick, 0) || tick <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidTick, tick)
	}
	return decimal.NewFromFloat(tick), nil
}
