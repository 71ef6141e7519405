package pricing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isTickMultiple(price, tick float64) bool {
	return decimal.NewFromFloat(price).Mod(decimal.NewFromFloat(tick)).IsZero()
}

func TestRoundToTick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value float64
		tick  float64
		want  float64
	}{
		{"already on grid", 472.50, 0.05, 472.50},
		{"nearest above", 441.78, 0.05, 441.80},
		{"nearest below", 1.024, 0.01, 1.02},
		{"half to even down", 0.125, 0.05, 0.10},
		{"half to even up", 0.175, 0.05, 0.20},
		{"whole tick", 447.4, 5, 445},
		{"quarter tick", 10.13, 0.25, 10.25},
		{"zero", 0, 0.05, 0},
		{"negative", -1.23, 0.05, -1.25},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := RoundToTick(tt.value, tt.tick)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRoundToTickIsNearestMultiple(t *testing.T) {
	t.Parallel()

	ticks := []float64{0.01, 0.05, 0.1, 0.25, 1, 5}
	for _, tick := range ticks {
		for v := -3.0; v < 700; v += 1.37 {
			got, err := RoundToTick(v, tick)
			require.NoError(t, err)
			assert.Truef(t, isTickMultiple(got, tick), "%v is not a multiple of %v", got, tick)
			assert.LessOrEqualf(t, math.Abs(got-v), tick/2+1e-9, "value %v tick %v", v, tick)
		}
	}
}

func TestRoundToTickRejectsInvalidTick(t *testing.T) {
	t.Parallel()

	for _, tick := range []float64{0, -0.05, math.NaN(), math.Inf(1)} {
		_, err := RoundToTick(10, tick)
		assert.ErrorIs(t, err, ErrInvalidTick)

		_, err = DerivePrice(10, 5, tick)
		assert.ErrorIs(t, err, ErrInvalidTick)
	}
}

func TestDerivePrice(t *testing.T) {
	t.Parallel()

	entry, err := DerivePrice(450.00, 5, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 472.50, entry, 1e-9)

	tp, err := DerivePrice(entry, 40, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 661.50, tp, 1e-9)

	sl, err := DerivePrice(entry, -60, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 189.00, sl, 1e-9)
}

func TestDerivePriceMatchesRoundedProduct(t *testing.T) {
	t.Parallel()

	percents := []float64{-60, -12.5, 0, 5, 40, 100}
	for base := 0.35; base < 900; base += 13.17 {
		for _, p := range percents {
			raw := base * (1 + p/100)
			// float error decides which side of an exact half tick the product lands on
			if _, frac := math.Modf(raw / 0.05); math.Abs(math.Abs(frac)-0.5) < 1e-6 {
				continue
			}

			got, err := DerivePrice(base, p, 0.05)
			require.NoError(t, err)

			want, err := RoundToTick(raw, 0.05)
			require.NoError(t, err)

			assert.InDeltaf(t, want, got, 1e-9, "base %v percent %v", base, p)
		}
	}
}

func TestStopLossPriceNeverBelowTick(t *testing.T) {
	t.Parallel()

	for _, tick := range []float64{0.01, 0.05, 0.5} {
		for _, p := range []float64{60, 99.99, 100, 150} {
			for _, base := range []float64{0.01, 0.2, 3, 472.5} {
				got, err := StopLossPrice(base, p, tick)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got, tick)
			}
		}
	}
}

func TestStopLossPrice(t *testing.T) {
	t.Parallel()

	got, err := StopLossPrice(475.00, 60, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 190.00, got, 1e-9)

	got, err = StopLossPrice(0.10, 60, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, got, 1e-9)
}
