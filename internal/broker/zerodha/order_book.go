package zerodha

import (
	"context"
	"fmt"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/types"
)

// historyEvery spaces order history calls per order. Kite allows ~10
// requests per second across the whole session.
const historyEvery = 250 * time.Millisecond

type orderPhase int

const (
	phaseHeld      orderPhase = iota // accepted locally, not transmitted
	phaseArmed                       // transmitted, waits for the parent fill
	phaseLive                        // placed on Kite
	phaseWithdrawn                   // cancelled before reaching Kite
)

type bookOrder struct {
	localID  string
	contract types.ContractDescriptor
	req      types.OrderRequest
	phase    orderPhase
	kiteID   string
	children []string

	// parentFilled is set on a parent once Kite reports it complete.
	parentFilled bool
	last         types.TradeStatus
	lastChecked  time.Time
}

// orderBook emulates held and transmitted orders on top of Kite. A held
// order stays local. Transmitting a child places a held parent and arms the
// held siblings; armed children go to Kite once the parent fills.
type orderBook struct {
	kc  kiteAPI
	p   Params
	now func() time.Time

	mu      sync.Mutex
	seq     int
	orders  map[string]*bookOrder
	byKite  map[string]string
	updates map[string]kiteconnect.Order
}

func newOrderBook(kc kiteAPI, p Params) *orderBook {
	return &orderBook{
		kc:      kc,
		p:       p,
		now:     time.Now,
		orders:  make(map[string]*bookOrder),
		byKite:  make(map[string]string),
		updates: make(map[string]kiteconnect.Order),
	}
}

func (b *orderBook) submit(contract types.ContractDescriptor, req types.OrderRequest) (types.TradeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var parent *bookOrder
	if req.ParentID != "" {
		p, ok := b.orders[req.ParentID]
		if !ok {
			return types.TradeHandle{}, fmt.Errorf("unknown parent order %s", req.ParentID)
		}
		parent = p
	}

	b.seq++
	o := &bookOrder{
		localID:  fmt.Sprintf("Z%06d", b.seq),
		contract: contract,
		req:      req,
		phase:    phaseHeld,
		last:     types.TradeStatus{State: types.StatePending},
	}
	b.orders[o.localID] = o
	if parent != nil {
		parent.children = append(parent.children, o.localID)
	}

	if req.Transmit {
		if err := b.transmit(o); err != nil {
			delete(b.orders, o.localID)
			if parent != nil {
				parent.children = parent.children[:len(parent.children)-1]
			}
			return types.TradeHandle{}, err
		}
	}
	return b.handle(o), nil
}

func (b *orderBook) amend(h types.TradeHandle, price float64, transmit bool) (types.TradeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[h.OrderID]
	if !ok {
		return h, fmt.Errorf("unknown order %s", h.OrderID)
	}
	o.req.Price = price

	switch o.phase {
	case phaseWithdrawn:
		return h, fmt.Errorf("order %s was cancelled", o.localID)
	case phaseLive:
		if _, err := b.kc.ModifyOrder(b.p.Variety, o.kiteID, b.modifyParams(o)); err != nil {
			return h, fmt.Errorf("failed to modify order %s: %w", o.kiteID, err)
		}
		o.req.Transmit = true
	case phaseHeld:
		if transmit {
			o.req.Transmit = true
			if err := b.transmit(o); err != nil {
				return h, err
			}
		}
	case phaseArmed:
		// Placement of armed children can fail when the parent fill is
		// observed; amending retries it.
		if p := b.orders[o.req.ParentID]; p != nil && p.parentFilled {
			if err := b.place(o); err != nil {
				return h, err
			}
		}
	}
	return b.handle(o), nil
}

func (b *orderBook) status(h types.TradeHandle) (types.TradeStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[h.OrderID]
	if !ok {
		return types.TradeStatus{}, fmt.Errorf("unknown order %s", h.OrderID)
	}

	switch o.phase {
	case phaseHeld:
		return types.TradeStatus{State: types.StatePending}, nil
	case phaseArmed:
		return types.TradeStatus{State: types.StateSubmitted}, nil
	case phaseWithdrawn:
		return types.TradeStatus{State: types.StateCancelled}, nil
	}

	if err := b.refresh(o); err != nil {
		return types.TradeStatus{}, err
	}
	if o.last.State == types.StateFilled && !o.parentFilled && len(o.children) > 0 {
		o.parentFilled = true
		b.placeArmedChildren(o)
	}
	return o.last, nil
}

func (b *orderBook) cancel(h types.TradeHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[h.OrderID]
	if !ok {
		return fmt.Errorf("unknown order %s", h.OrderID)
	}
	if o.phase != phaseLive {
		o.phase = phaseWithdrawn
		return nil
	}
	if _, err := b.kc.CancelOrder(b.p.Variety, o.kiteID, nil); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", o.kiteID, err)
	}
	return nil
}

// applyUpdate records a streamed order update. Unknown orders are ignored.
func (b *orderBook) applyUpdate(order kiteOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()

	localID, ok := b.byKite[order.OrderID]
	if !ok {
		return
	}
	b.updates[order.OrderID] = order

	o := b.orders[localID]
	o.last = kiteStatus(order)
	o.lastChecked = b.now()
	if o.last.State == types.StateFilled && !o.parentFilled && len(o.children) > 0 {
		o.parentFilled = true
		b.placeArmedChildren(o)
	}
}

// refresh updates o.last from the stream or, at most every historyEvery,
// from the order history. Terminal states are never refetched.
func (b *orderBook) refresh(o *bookOrder) error {
	if o.last.Done() {
		return nil
	}
	if u, ok := b.updates[o.kiteID]; ok {
		if st := kiteStatus(u); st.Done() {
			o.last = st
			return nil
		}
	}
	if !o.lastChecked.IsZero() && b.now().Sub(o.lastChecked) < historyEvery {
		return nil
	}

	hist, err := b.kc.GetOrderHistory(o.kiteID)
	if err != nil {
		return fmt.Errorf("failed to fetch history of order %s: %w", o.kiteID, err)
	}
	o.lastChecked = b.now()
	if len(hist) > 0 {
		o.last = kiteStatus(hist[len(hist)-1])
	}
	return nil
}

// transmit places o. For a child it places a held parent, arming the
// siblings held with it, and arms o until the parent fills.
func (b *orderBook) transmit(o *bookOrder) error {
	if o.req.ParentID == "" {
		return b.place(o)
	}

	parent := b.orders[o.req.ParentID]
	if parent.phase == phaseWithdrawn {
		return fmt.Errorf("parent order %s was cancelled", parent.localID)
	}
	if parent.phase == phaseHeld {
		if err := b.place(parent); err != nil {
			return err
		}
		for _, id := range parent.children {
			if c := b.orders[id]; c.phase == phaseHeld {
				c.phase = phaseArmed
			}
		}
	}
	if o.phase == phaseHeld {
		o.phase = phaseArmed
	}
	if parent.parentFilled {
		b.placeArmedChildren(parent)
	}
	return nil
}

func (b *orderBook) placeArmedChildren(parent *bookOrder) {
	for _, id := range parent.children {
		c := b.orders[id]
		if c.phase != phaseArmed {
			continue
		}
		if err := b.place(c); err != nil {
			logger.ErrorWithErr(context.Background(), "Failed to place child order after parent fill", err,
				"order_id", c.localID,
				"parent_kite_id", parent.kiteID,
			)
		}
	}
}

func (b *orderBook) place(o *bookOrder) error {
	resp, err := b.kc.PlaceOrder(b.p.Variety, b.placeParams(o))
	if err != nil {
		return fmt.Errorf("failed to place order %s: %w", o.localID, err)
	}
	o.kiteID = resp.OrderID
	o.phase = phaseLive
	o.last = types.TradeStatus{State: types.StateSubmitted}
	b.byKite[resp.OrderID] = o.localID

	logger.Debug(context.Background(), "Order placed on Kite",
		"order_id", o.localID,
		"kite_order_id", resp.OrderID,
		"tradingsymbol", o.contract.TradingSymbol,
	)
	return nil
}

func (b *orderBook) placeParams(o *bookOrder) kiteconnect.OrderParams {
	params := kiteconnect.OrderParams{
		Exchange:        o.contract.Exchange,
		Tradingsymbol:   o.contract.TradingSymbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         b.p.Product,
		OrderType:       kiteconnect.OrderTypeLimit,
		TransactionType: kiteconnect.TransactionTypeBuy,
		Quantity:        b.quantity(o),
		Price:           o.req.Price,
		Tag:             o.req.Tag,
	}
	if params.Exchange == "" {
		params.Exchange = b.p.Exchange
	}
	if o.req.Side == types.Sell {
		params.TransactionType = kiteconnect.TransactionTypeSell
	}
	if o.req.Type == types.Stop {
		params.OrderType = kiteconnect.OrderTypeSL
		params.TriggerPrice = o.req.Price
	}
	return params
}

func (b *orderBook) modifyParams(o *bookOrder) kiteconnect.OrderParams {
	params := kiteconnect.OrderParams{
		Quantity:  b.quantity(o),
		Price:     o.req.Price,
		OrderType: kiteconnect.OrderTypeLimit,
		Validity:  kiteconnect.ValidityDay,
	}
	if o.req.Type == types.Stop {
		params.OrderType = kiteconnect.OrderTypeSL
		params.TriggerPrice = o.req.Price
	}
	return params
}

// quantity converts lots into Kite units.
func (b *orderBook) quantity(o *bookOrder) int {
	lot := o.contract.LotSize
	if lot < 1 {
		lot = 1
	}
	return o.req.Quantity * lot
}

func (b *orderBook) handle(o *bookOrder) types.TradeHandle {
	return types.TradeHandle{OrderID: o.localID, Contract: o.contract, Request: o.req}
}

func kiteStatus(o kiteconnect.Order) types.TradeStatus {
	st := types.TradeStatus{
		FilledQty:    int(o.FilledQuantity),
		AvgFillPrice: o.AveragePrice,
		Message:      o.StatusMessage,
	}
	switch o.Status {
	case "COMPLETE":
		st.State = types.StateFilled
	case "CANCELLED":
		st.State = types.StateCancelled
	case "REJECTED":
		st.State = types.StateRejected
	default:
		st.State = types.StateSubmitted
	}
	return st
}
