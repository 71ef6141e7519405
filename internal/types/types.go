package types

import (
	"fmt"
	"strings"
	"time"
)

// Right is the option right of a contract.
type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

// ParseRight accepts C, P, CALL or PUT in any case.
func ParseRight(s string) (Right, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL":
		return Call, nil
	case "P", "PUT":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option right %q", s)
}

func (r Right) String() string { return string(r) }

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderType string

const (
	Limit OrderType = "LMT"
	Stop  OrderType = "STP"
)

// ContractQuery asks a lookup for option contracts. Month is a YYYYMM hint
// and Near the underlying price the strike will be picked around; lookups
// may return more than asked for.
type ContractQuery struct {
	Symbol string
	Right  Right
	Month  string
	Near   float64
}

// ContractDescriptor is one tradable option instrument as returned by a lookup.
type ContractDescriptor struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Right         Right     `json:"right"`
	Strike        float64   `json:"strike"`
	Expiry        time.Time `json:"expiry"`
	Tick          float64   `json:"tick"`
	Exchange      string    `json:"exchange,omitempty"`
	TradingSymbol string    `json:"trading_symbol,omitempty"`
	LotSize       int       `json:"lot_size,omitempty"`
}

// ExpiryCutoff is the last moment the contract is considered tradable:
// 23:59:00 on the expiry date, in the expiry's own location.
func (c ContractDescriptor) ExpiryCutoff() time.Time {
	y, m, d := c.Expiry.Date()
	return time.Date(y, m, d, 23, 59, 0, 0, c.Expiry.Location())
}

func (c ContractDescriptor) String() string {
	return fmt.Sprintf("%s %s %s %.2f", c.Symbol, c.Expiry.Format("20060102"), c.Right, c.Strike)
}

type Quote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// OrderRequest is a single order as handed to the gateway. Transmit=false
// asks the gateway to hold the order until a later amend releases it.
type OrderRequest struct {
	Side     Side      `json:"side"`
	Type     OrderType `json:"type"`
	Quantity int       `json:"quantity"`
	Price    float64   `json:"price"`
	ParentID string    `json:"parent_id,omitempty"`
	Transmit bool      `json:"transmit"`
	Tag      string    `json:"tag,omitempty"`
}

// TradeHandle is the caller's reference to a submitted order.
type TradeHandle struct {
	OrderID  string             `json:"order_id"`
	Contract ContractDescriptor `json:"contract"`
	Request  OrderRequest       `json:"request"`
}

type OrderState string

const (
	StatePending   OrderState = "PENDING" // held, not transmitted
	StateSubmitted OrderState = "SUBMITTED"
	StateFilled    OrderState = "FILLED"
	StateCancelled OrderState = "CANCELLED"
	StateRejected  OrderState = "REJECTED"
)

type TradeStatus struct {
	State        OrderState `json:"state"`
	FilledQty    int        `json:"filled_qty"`
	AvgFillPrice float64    `json:"avg_fill_price"`
	Message      string     `json:"message,omitempty"`
}

func (s TradeStatus) Filled() bool { return s.State == StateFilled }

// Done reports whether the order reached a terminal state.
func (s TradeStatus) Done() bool {
	return s.State == StateFilled || s.State == StateCancelled || s.State == StateRejected
}

// BracketRequest is a fully defaulted placement request.
type BracketRequest struct {
	AlertID            string  `json:"alert_id,omitempty"`
	ReferencePrice     float64 `json:"reference_price"`
	Symbol             string  `json:"symbol"`
	Right              Right   `json:"right"`
	Quantity           int     `json:"quantity"`
	ParentLimitPercent float64 `json:"parent_limit_percent"`
	StopLossPercent    float64 `json:"stop_loss_percent"`
	TakeProfitPercent  float64 `json:"take_profit_percent"`
}

type BracketResult struct {
	PlacementID     string             `json:"placement_id"`
	Contract        ContractDescriptor `json:"contract"`
	Parent          TradeHandle        `json:"parent"`
	TakeProfit      TradeHandle        `json:"take_profit"`
	StopLoss        TradeHandle        `json:"stop_loss"`
	EntryPrice      float64            `json:"entry_price"`
	AvgFillPrice    float64            `json:"avg_fill_price"`
	TakeProfitPrice float64            `json:"take_profit_price"`
	StopLossPrice   float64            `json:"stop_loss_price"`
}
