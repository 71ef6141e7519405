package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/types"
)

const monthLayout = "200601"

// resolver picks the front-expiry, closest-to-the-money contract.
type resolver struct {
	lookup interfaces.ContractLookup
	roll   bool
}

func newResolver(lookup interfaces.ContractLookup, rollToNextMonth bool) *resolver {
	return &resolver{lookup: lookup, roll: rollToNextMonth}
}

// resolve looks up asOf's month and returns the contract at the nearest
// unexpired expiry whose strike is closest to ref. With roll enabled an empty
// month falls through to the following one once.
func (r *resolver) resolve(ctx context.Context, symbol string, right types.Right, ref float64, asOf time.Time) (types.ContractDescriptor, error) {
	month := asOf.Format(monthLayout)
	live, err := r.liveContracts(ctx, types.ContractQuery{Symbol: symbol, Right: right, Month: month, Near: ref}, asOf)
	if err != nil {
		return types.ContractDescriptor{}, err
	}

	if len(live) == 0 && r.roll {
		next := time.Date(asOf.Year(), asOf.Month()+1, 1, 0, 0, 0, 0, asOf.Location()).Format(monthLayout)
		logger.Debug(ctx, "No live contracts this month, rolling", "symbol", symbol, "month", month, "next", next)
		month = next
		if live, err = r.liveContracts(ctx, types.ContractQuery{Symbol: symbol, Right: right, Month: month, Near: ref}, asOf); err != nil {
			return types.ContractDescriptor{}, err
		}
	}

	if len(live) == 0 {
		return types.ContractDescriptor{}, fmt.Errorf("%w: %s %s month %s", ErrNoContractAvailable, symbol, right, month)
	}

	return selectContract(live, right, ref), nil
}

func (r *resolver) liveContracts(ctx context.Context, q types.ContractQuery, asOf time.Time) ([]types.ContractDescriptor, error) {
	all, err := r.lookup.LookupContracts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: contract lookup for %s %s: %w", ErrGatewayRejected, q.Symbol, q.Month, err)
	}
	live := filterLive(all, q.Right, asOf)
	logger.Debug(ctx, "Contracts looked up", "symbol", q.Symbol, "right", q.Right, "month", q.Month, "total", len(all), "live", len(live))
	return live, nil
}

// filterLive drops contracts of the other right and those whose expiry
// cutoff is not after asOf.
func filterLive(all []types.ContractDescriptor, right types.Right, asOf time.Time) []types.ContractDescriptor {
	live := make([]types.ContractDescriptor, 0, len(all))
	for _, c := range all {
		if c.Right != right {
			continue
		}
		if !c.ExpiryCutoff().After(asOf) {
			continue
		}
		live = append(live, c)
	}
	return live
}

// selectContract restricts to the front expiry then minimises the distance
// to ref. Ties go to the lower strike for calls, the higher for puts.
// contracts must be non-empty.
func selectContract(contracts []types.ContractDescriptor, right types.Right, ref float64) types.ContractDescriptor {
	front := contracts[0].ExpiryCutoff()
	for _, c := range contracts[1:] {
		if cut := c.ExpiryCutoff(); cut.Before(front) {
			front = cut
		}
	}

	refD := decimal.NewFromFloat(ref)
	var best types.ContractDescriptor
	var bestDist decimal.Decimal
	found := false
	for _, c := range contracts {
		if !c.ExpiryCutoff().Equal(front) {
			continue
		}
		dist := decimal.NewFromFloat(c.Strike).Sub(refD).Abs()
		if !found || better(dist, c.Strike, bestDist, best.Strike, right) {
			best, bestDist, found = c, dist, true
		}
	}
	return best
}

func better(dist decimal.Decimal, strike float64, bestDist decimal.Decimal, bestStrike float64, right types.Right) bool {
	switch dist.Cmp(bestDist) {
	case -1:
		return true
	case 1:
		return false
	}
	if right == types.Put {
		return strike > bestStrike
	}
	return strike < bestStrike
}
