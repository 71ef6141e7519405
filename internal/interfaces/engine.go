package interfaces

import (
	"context"

	"tv-bracket-bot/internal/types"
)

// Placer places one bracket order per call. Calls are not idempotent.
type Placer interface {
	Place(ctx context.Context, req types.BracketRequest) (*types.BracketResult, error)
}
