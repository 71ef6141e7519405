package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tv-bracket-bot/internal/types"
)

var ist = time.FixedZone("IST", 19800)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) LookupContracts(ctx context.Context, q types.ContractQuery) ([]types.ContractDescriptor, error) {
	args := m.Called(ctx, q.Symbol, q.Right, q.Month)
	return args.Get(0).([]types.ContractDescriptor), args.Error(1)
}

func option(right types.Right, strike float64, expiry time.Time) types.ContractDescriptor {
	return types.ContractDescriptor{
		ID:     "id",
		Symbol: "NIFTY",
		Right:  right,
		Strike: strike,
		Expiry: expiry,
		Tick:   0.05,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, ist)
}

func TestSelectContract(t *testing.T) {
	t.Parallel()

	exp := day(2024, 3, 28)
	tests := []struct {
		name    string
		right   types.Right
		ref     float64
		strikes []float64
		want    float64
	}{
		{"call closest below", types.Call, 441.78, []float64{440, 445, 450}, 440},
		{"call closest above", types.Call, 443.1, []float64{440, 445, 450}, 445},
		{"call tie goes lower", types.Call, 442.5, []float64{445, 440, 450}, 440},
		{"put tie goes higher", types.Put, 442.5, []float64{440, 445, 450}, 445},
		{"put closest", types.Put, 449, []float64{440, 445, 450}, 450},
		{"decimal tie", types.Call, 0.3, []float64{0.4, 0.2}, 0.2},
		{"single", types.Put, 10, []float64{500}, 500},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cs []types.ContractDescriptor
			for _, s := range tt.strikes {
				cs = append(cs, option(tt.right, s, exp))
			}
			got := selectContract(cs, tt.right, tt.ref)
			assert.Equal(t, tt.want, got.Strike)
		})
	}
}

func TestSelectContractPrefersFrontExpiry(t *testing.T) {
	t.Parallel()

	cs := []types.ContractDescriptor{
		option(types.Call, 441, day(2024, 4, 4)),
		option(types.Call, 450, day(2024, 3, 28)),
		option(types.Call, 445, day(2024, 3, 28)),
	}
	got := selectContract(cs, types.Call, 441)
	assert.Equal(t, 445.0, got.Strike)
	assert.True(t, got.Expiry.Equal(day(2024, 3, 28)))
}

func TestFilterLive(t *testing.T) {
	t.Parallel()

	cs := []types.ContractDescriptor{
		option(types.Call, 440, day(2024, 3, 21)),
		option(types.Call, 440, day(2024, 3, 28)),
		option(types.Put, 440, day(2024, 3, 28)),
		option(types.Call, 440, day(2024, 4, 4)),
	}

	// expiry day itself is still live until 23:59
	live := filterLive(cs, types.Call, time.Date(2024, 3, 28, 15, 0, 0, 0, ist))
	require.Len(t, live, 2)
	assert.True(t, live[0].Expiry.Equal(day(2024, 3, 28)))

	live = filterLive(cs, types.Call, time.Date(2024, 3, 28, 23, 58, 59, 0, ist))
	assert.Len(t, live, 2)

	// at the cutoff the contract is no longer live
	live = filterLive(cs, types.Call, time.Date(2024, 3, 28, 23, 59, 0, 0, ist))
	require.Len(t, live, 1)
	assert.True(t, live[0].Expiry.Equal(day(2024, 4, 4)))

	live = filterLive(cs, types.Call, time.Date(2024, 3, 28, 23, 59, 30, 0, ist))
	require.Len(t, live, 1)
	assert.True(t, live[0].Expiry.Equal(day(2024, 4, 4)))
}

func TestResolveExcludesExpired(t *testing.T) {
	t.Parallel()

	asOf := time.Date(2024, 3, 22, 10, 0, 0, 0, ist)
	lookup := &mockLookup{}
	lookup.On("LookupContracts", mock.Anything, "NIFTY", types.Call, "202403").Return([]types.ContractDescriptor{
		option(types.Call, 441, day(2024, 3, 21)),
		option(types.Call, 450, day(2024, 3, 28)),
		option(types.Call, 460, day(2024, 3, 28)),
	}, nil)

	got, err := newResolver(lookup, false).resolve(context.Background(), "NIFTY", types.Call, 441, asOf)
	require.NoError(t, err)
	assert.Equal(t, 450.0, got.Strike)
	lookup.AssertExpectations(t)
}

func TestResolveNoContract(t *testing.T) {
	t.Parallel()

	asOf := time.Date(2024, 3, 29, 10, 0, 0, 0, ist)
	lookup := &mockLookup{}
	lookup.On("LookupContracts", mock.Anything, "NIFTY", types.Put, "202403").Return([]types.ContractDescriptor{
		option(types.Put, 440, day(2024, 3, 28)),
	}, nil)

	_, err := newResolver(lookup, false).resolve(context.Background(), "NIFTY", types.Put, 441, asOf)
	assert.ErrorIs(t, err, ErrNoContractAvailable)
	lookup.AssertNumberOfCalls(t, "LookupContracts", 1)
}

func TestResolveRollsToNextMonth(t *testing.T) {
	t.Parallel()

	asOf := time.Date(2024, 12, 27, 10, 0, 0, 0, ist)
	lookup := &mockLookup{}
	lookup.On("LookupContracts", mock.Anything, "NIFTY", types.Call, "202412").Return([]types.ContractDescriptor{
		option(types.Call, 440, day(2024, 12, 26)),
	}, nil)
	lookup.On("LookupContracts", mock.Anything, "NIFTY", types.Call, "202501").Return([]types.ContractDescriptor{
		option(types.Call, 440, day(2025, 1, 2)),
	}, nil)

	got, err := newResolver(lookup, true).resolve(context.Background(), "NIFTY", types.Call, 441, asOf)
	require.NoError(t, err)
	assert.True(t, got.Expiry.Equal(day(2025, 1, 2)))
	lookup.AssertExpectations(t)
}

func TestResolveLookupError(t *testing.T) {
	t.Parallel()

	lookup := &mockLookup{}
	lookup.On("LookupContracts", mock.Anything, "NIFTY", types.Call, mock.Anything).
		Return([]types.ContractDescriptor(nil), errors.New("session expired"))

	_, err := newResolver(lookup, true).resolve(context.Background(), "NIFTY", types.Call, 441, time.Now())
	assert.ErrorIs(t, err, ErrGatewayRejected)
	assert.NotErrorIs(t, err, ErrNoContractAvailable)
}
