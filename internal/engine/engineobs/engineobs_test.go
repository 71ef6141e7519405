package engineobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tv-bracket-bot/internal/engine"
	"tv-bracket-bot/internal/types"
)

type stubPlacer struct {
	res *types.BracketResult
	err error
	got types.BracketRequest
}

func (s *stubPlacer) Place(_ context.Context, req types.BracketRequest) (*types.BracketResult, error) {
	s.got = req
	return s.res, s.err
}

func TestWrapPassesThrough(t *testing.T) {
	inner := &stubPlacer{res: &types.BracketResult{PlacementID: "p1"}}
	req := types.BracketRequest{Symbol: "NIFTY", Right: types.Call, ReferencePrice: 100, Quantity: 1}

	res, err := Wrap(inner).Place(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "p1", res.PlacementID)
	assert.Equal(t, req, inner.got)
}

func TestWrapPreservesErrors(t *testing.T) {
	inner := &stubPlacer{res: &types.BracketResult{}, err: errors.Join(engine.ErrFillTimeout, errors.New("detail"))}

	res, err := Wrap(inner).Place(context.Background(), types.BracketRequest{Symbol: "NIFTY"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, engine.ErrFillTimeout)
}
