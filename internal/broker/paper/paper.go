package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/pricing"
	"tv-bracket-bot/internal/types"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderDone     = errors.New("order already done")
	ErrNoMarket      = errors.New("no market for contract")
)

type Params struct {
	Location       *time.Location
	Tick           float64
	StrikeStep     float64
	StrikesPerSide int
	WeeklyExpiries int
	ExpiryWeekday  time.Weekday
	PremiumPct     float64
	SpreadTicks    int
	FillDelay      time.Duration
	NeverFill      bool
	Now            func() time.Time
}

type order struct {
	handle        types.TradeHandle
	transmitted   bool
	transmittedAt time.Time
	fillPrice     float64
	state         types.OrderState
	children      []string
}

// Paper simulates an option chain and an order gateway with held and
// transmitted orders. Parents fill at the ask seen when they were
// transmitted, FillDelay later. Children rest until cancelled.
type Paper struct {
	p Params

	mu     sync.Mutex
	nextID int
	spot   map[string]float64
	orders map[string]*order
}

var _ interfaces.Broker = (*Paper)(nil)

func New(p Params) *Paper {
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Tick <= 0 {
		p.Tick = 0.05
	}
	if p.StrikeStep <= 0 {
		p.StrikeStep = 5
	}
	if p.StrikesPerSide <= 0 {
		p.StrikesPerSide = 10
	}
	if p.WeeklyExpiries <= 0 {
		p.WeeklyExpiries = 4
	}
	if p.SpreadTicks <= 0 {
		p.SpreadTicks = 2
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Paper{
		p:      p,
		spot:   make(map[string]float64),
		orders: make(map[string]*order),
	}
}

func (pp *Paper) Start(context.Context) error { return nil }
func (pp *Paper) Stop(context.Context)        {}

// LookupContracts builds strikes around q.Near for the weekly expiries and,
// when q.Month is set, that month's last expiry weekday.
func (pp *Paper) LookupContracts(_ context.Context, q types.ContractQuery) ([]types.ContractDescriptor, error) {
	if q.Near <= 0 || math.IsNaN(q.Near) || math.IsInf(q.Near, 0) {
		return nil, fmt.Errorf("paper chain needs a positive underlying price, got %v", q.Near)
	}
	symbol := strings.ToUpper(q.Symbol)

	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.spot[symbol] = q.Near

	center := math.Round(q.Near/pp.p.StrikeStep) * pp.p.StrikeStep
	expiries := pp.expiries(q.Month)
	out := make([]types.ContractDescriptor, 0, len(expiries)*(2*pp.p.StrikesPerSide+1))
	for _, exp := range expiries {
		for i := -pp.p.StrikesPerSide; i <= pp.p.StrikesPerSide; i++ {
			strike := center + float64(i)*pp.p.StrikeStep
			if strike <= 0 {
				continue
			}
			out = append(out, pp.contract(symbol, q.Right, strike, exp))
		}
	}
	return out, nil
}

// expiries lists the coming weekly expiries in the market location, today
// included, filtered to month when it is set.
func (pp *Paper) expiries(month string) []time.Time {
	now := pp.p.Now().In(pp.p.Location)
	first := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, pp.p.Location)
	first = first.AddDate(0, 0, (int(pp.p.ExpiryWeekday)-int(first.Weekday())+7)%7)

	seen := make(map[string]bool)
	var out []time.Time
	add := func(t time.Time) {
		k := t.Format("20060102")
		if seen[k] || (month != "" && t.Format("200601") != month) {
			return
		}
		seen[k] = true
		out = append(out, t)
	}
	for i := 0; i < pp.p.WeeklyExpiries; i++ {
		add(first.AddDate(0, 0, 7*i))
	}
	if month != "" {
		if m, err := time.ParseInLocation("200601", month, pp.p.Location); err == nil {
			add(lastWeekday(m, pp.p.ExpiryWeekday))
		}
	}
	return out
}

func lastWeekday(month time.Time, wd time.Weekday) time.Time {
	last := time.Date(month.Year(), month.Month()+1, 0, 0, 0, 0, 0, month.Location())
	return last.AddDate(0, 0, -((int(last.Weekday()) - int(wd) + 7) % 7))
}

func (pp *Paper) contract(symbol string, right types.Right, strike float64, expiry time.Time) types.ContractDescriptor {
	tsym := fmt.Sprintf("%s%s%s%s", symbol, expiry.Format("060102"), trimFloat(strike), right)
	return types.ContractDescriptor{
		ID:            tsym,
		Symbol:        symbol,
		Right:         right,
		Strike:        strike,
		Expiry:        expiry,
		Tick:          pp.p.Tick,
		Exchange:      "PAPER",
		TradingSymbol: tsym,
		LotSize:       1,
	}
}

// Quote prices the contract as intrinsic value plus PremiumPct of the
// underlying, with a SpreadTicks wide market around it.
func (pp *Paper) Quote(_ context.Context, c types.ContractDescriptor) (types.Quote, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.quote(c)
}

func (pp *Paper) quote(c types.ContractDescriptor) (types.Quote, error) {
	spot, ok := pp.spot[c.Symbol]
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: %s", ErrNoMarket, c.String())
	}
	intrinsic := spot - c.Strike
	if c.Right == types.Put {
		intrinsic = -intrinsic
	}
	mid := math.Max(intrinsic, 0) + spot*pp.p.PremiumPct/100

	tick := c.Tick
	if tick <= 0 {
		tick = pp.p.Tick
	}
	bid, err := pricing.RoundToTick(mid-float64(pp.p.SpreadTicks)*tick/2, tick)
	if err != nil {
		return types.Quote{}, err
	}
	if bid < tick {
		bid = tick
	}
	ask, err := pricing.RoundToTick(bid+float64(pp.p.SpreadTicks)*tick, tick)
	if err != nil {
		return types.Quote{}, err
	}
	return types.Quote{Bid: bid, Ask: ask}, nil
}

func (pp *Paper) SubmitOrder(_ context.Context, c types.ContractDescriptor, req types.OrderRequest) (types.TradeHandle, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	var parent *order
	if req.ParentID != "" {
		p, ok := pp.orders[req.ParentID]
		if !ok {
			return types.TradeHandle{}, fmt.Errorf("parent %q: %w", req.ParentID, ErrOrderNotFound)
		}
		if p.state == types.StateCancelled || p.state == types.StateRejected {
			return types.TradeHandle{}, fmt.Errorf("parent %q: %w", req.ParentID, ErrOrderDone)
		}
		parent = p
	}

	pp.nextID++
	o := &order{
		handle: types.TradeHandle{OrderID: fmt.Sprintf("SIM-%d", pp.nextID), Contract: c, Request: req},
		state:  types.StatePending,
	}
	pp.orders[o.handle.OrderID] = o
	if parent != nil {
		parent.children = append(parent.children, o.handle.OrderID)
	}

	if req.Transmit {
		pp.transmit(o, parent)
	}
	return o.handle, nil
}

// transmit sends o. A transmitting child also sends its held parent; other
// held siblings stay held until amended with transmit.
func (pp *Paper) transmit(o, parent *order) {
	if parent != nil {
		pp.send(parent)
	}
	pp.send(o)
}

func (pp *Paper) send(o *order) {
	if o.transmitted || o.state != types.StatePending {
		return
	}
	o.transmitted = true
	o.transmittedAt = pp.p.Now()
	o.handle.Request.Transmit = true
	o.state = types.StateSubmitted
	if o.handle.Request.ParentID == "" {
		o.fillPrice = o.handle.Request.Price
		if q, err := pp.quote(o.handle.Contract); err == nil && q.Ask < o.fillPrice {
			o.fillPrice = q.Ask
		}
	}
}

func (pp *Paper) AmendOrder(_ context.Context, h types.TradeHandle, price float64, transmit bool) (types.TradeHandle, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	o, ok := pp.orders[h.OrderID]
	if !ok {
		return h, fmt.Errorf("amend %q: %w", h.OrderID, ErrOrderNotFound)
	}
	if (types.TradeStatus{State: o.state}).Done() {
		return h, fmt.Errorf("amend %q: %w", h.OrderID, ErrOrderDone)
	}
	o.handle.Request.Price = price
	if transmit {
		pp.transmit(o, pp.orders[o.handle.Request.ParentID])
	}
	return o.handle, nil
}

func (pp *Paper) OrderStatus(_ context.Context, h types.TradeHandle) (types.TradeStatus, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	o, ok := pp.orders[h.OrderID]
	if !ok {
		return types.TradeStatus{}, fmt.Errorf("status %q: %w", h.OrderID, ErrOrderNotFound)
	}

	if o.state == types.StateSubmitted && o.handle.Request.ParentID == "" && !pp.p.NeverFill &&
		!pp.p.Now().Before(o.transmittedAt.Add(pp.p.FillDelay)) {
		o.state = types.StateFilled
	}

	st := types.TradeStatus{State: o.state}
	if o.state == types.StateFilled {
		st.FilledQty = o.handle.Request.Quantity
		st.AvgFillPrice = o.fillPrice
	}
	return st, nil
}

func (pp *Paper) CancelOrder(_ context.Context, h types.TradeHandle) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	o, ok := pp.orders[h.OrderID]
	if !ok {
		return fmt.Errorf("cancel %q: %w", h.OrderID, ErrOrderNotFound)
	}
	if (types.TradeStatus{State: o.state}).Done() {
		return fmt.Errorf("cancel %q: %w", h.OrderID, ErrOrderDone)
	}
	o.state = types.StateCancelled
	return nil
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
