package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/types"
)

type PlacementState string

const (
	StateResolving        PlacementState = "RESOLVING"
	StatePricing          PlacementState = "PRICING"
	StateParentSubmitted  PlacementState = "PARENT_SUBMITTED"
	StateAwaitingFill     PlacementState = "AWAITING_FILL"
	StateRepricing        PlacementState = "REPRICING"
	StateChildrenReleased PlacementState = "CHILDREN_RELEASED"

	StateContractUnavailable PlacementState = "CONTRACT_UNAVAILABLE"
	StateQuoteUnavailable    PlacementState = "QUOTE_UNAVAILABLE"
	StateFillTimeout         PlacementState = "FILL_TIMEOUT"
	StateCancelled           PlacementState = "CANCELLED"
	StateGatewayRejected     PlacementState = "GATEWAY_REJECTED"
	StateFailed              PlacementState = "FAILED"
)

// terminalState maps the error that ended a placement to its exit state.
func terminalState(err error) PlacementState {
	switch Outcome(err) {
	case OutcomeFilled:
		return StateChildrenReleased
	case OutcomeNoContract:
		return StateContractUnavailable
	case OutcomeQuoteUnavailable:
		return StateQuoteUnavailable
	case OutcomeFillTimeout:
		return StateFillTimeout
	case OutcomeCancelled:
		return StateCancelled
	case OutcomeGatewayRejected:
		return StateGatewayRejected
	}
	return StateFailed
}

// PlacementInfo is a snapshot of an in-flight placement.
type PlacementInfo struct {
	ID            string
	AlertID       string
	Symbol        string
	Right         types.Right
	State         PlacementState
	Contract      string
	ParentOrderID string
	Started       time.Time
	Updated       time.Time
}

// placementTracker keeps in-flight placements keyed by placement id.
type placementTracker struct {
	mu     sync.Mutex
	active map[string]*PlacementInfo
	now    func() time.Time
}

func newPlacementTracker(now func() time.Time) *placementTracker {
	return &placementTracker{active: make(map[string]*PlacementInfo), now: now}
}

func (pt *placementTracker) begin(ctx context.Context, id string, req types.BracketRequest) {
	now := pt.now()
	pt.mu.Lock()
	pt.active[id] = &PlacementInfo{
		ID:      id,
		AlertID: req.AlertID,
		Symbol:  req.Symbol,
		Right:   req.Right,
		State:   StateResolving,
		Started: now,
		Updated: now,
	}
	pt.mu.Unlock()

	logger.Placement(ctx, id, string(StateResolving),
		"alert_id", req.AlertID,
		"symbol", req.Symbol,
		"right", req.Right,
		"reference_price", req.ReferencePrice,
		"quantity", req.Quantity,
	)
}

// transition moves a placement to state. mutate, if non-nil, runs under the lock.
func (pt *placementTracker) transition(ctx context.Context, id string, state PlacementState, mutate func(*PlacementInfo), fields ...any) {
	pt.mu.Lock()
	if p := pt.active[id]; p != nil {
		p.State = state
		p.Updated = pt.now()
		if mutate != nil {
			mutate(p)
		}
	}
	pt.mu.Unlock()

	logger.Placement(ctx, id, string(state), fields...)
}

// finish records the exit state and forgets the placement.
func (pt *placementTracker) finish(ctx context.Context, id string, err error) PlacementState {
	state := terminalState(err)
	var elapsed time.Duration
	pt.mu.Lock()
	if p := pt.active[id]; p != nil {
		elapsed = pt.now().Sub(p.Started)
		delete(pt.active, id)
	}
	pt.mu.Unlock()

	if err != nil {
		logger.Placement(ctx, id, string(state), "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		logger.Placement(ctx, id, string(state), "duration_ms", elapsed.Milliseconds())
	}
	return state
}

// snapshot returns the in-flight placements oldest first.
func (pt *placementTracker) snapshot() []PlacementInfo {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	out := make([]PlacementInfo, 0, len(pt.active))
	for _, p := range pt.active {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
