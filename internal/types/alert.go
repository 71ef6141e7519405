package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid request")

// Alert is the JSON body a charting webhook posts. Numeric fields accept JSON
// numbers or numeric strings since alert templates render placeholders as text.
type Alert struct {
	ID                 string     `json:"id,omitempty"`
	ReferencePrice     *flexFloat `json:"referencePrice,omitempty"`
	StockPrice         *flexFloat `json:"stock_price,omitempty"`
	CurPrice           *flexFloat `json:"curPrice,omitempty"`
	Symbol             string     `json:"symbol"`
	Right              string     `json:"right"`
	Quantity           *flexFloat `json:"quantity,omitempty"`
	ParentLimitPercent *flexFloat `json:"parentLimitPercent,omitempty"`
	StopLossPercent    *flexFloat `json:"stopLossPercent,omitempty"`
	TakeProfitPercent  *flexFloat `json:"takeProfitPercent,omitempty"`
}

// BracketDefaults fills the optional alert fields.
type BracketDefaults struct {
	Quantity           int
	ParentLimitPercent float64
	StopLossPercent    float64
	TakeProfitPercent  float64
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexFloat(v)
	return nil
}

// ParseAlert decodes an alert body. It checks syntax only; see Alert.Request
// for field validation.
func ParseAlert(data []byte) (Alert, error) {
	var a Alert
	if len(bytes.TrimSpace(data)) == 0 {
		return a, fmt.Errorf("%w: empty alert", ErrInvalidRequest)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return a, nil
}

// Price returns the reference price, preferring referencePrice over the
// stock_price and curPrice aliases.
func (a Alert) Price() (float64, bool) {
	for _, f := range []*flexFloat{a.ReferencePrice, a.StockPrice, a.CurPrice} {
		if f != nil {
			return float64(*f), true
		}
	}
	return 0, false
}

// Request converts the alert into a BracketRequest with defaults applied.
func (a Alert) Request(d BracketDefaults) (BracketRequest, error) {
	price, ok := a.Price()
	if !ok {
		return BracketRequest{}, fmt.Errorf("%w: referencePrice is required", ErrInvalidRequest)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return BracketRequest{}, fmt.Errorf("%w: referencePrice must be positive, got %v", ErrInvalidRequest, price)
	}

	symbol := strings.TrimSpace(a.Symbol)
	if symbol == "" {
		return BracketRequest{}, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}

	right, err := ParseRight(a.Right)
	if err != nil {
		return BracketRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req := BracketRequest{
		AlertID:            a.ID,
		ReferencePrice:     price,
		Symbol:             strings.ToUpper(symbol),
		Right:              right,
		Quantity:           d.Quantity,
		ParentLimitPercent: d.ParentLimitPercent,
		StopLossPercent:    d.StopLossPercent,
		TakeProfitPercent:  d.TakeProfitPercent,
	}

	if a.Quantity != nil {
		q := float64(*a.Quantity)
		if q != math.Trunc(q) {
			return BracketRequest{}, fmt.Errorf("%w: quantity must be a whole number, got %v", ErrInvalidRequest, q)
		}
		req.Quantity = int(q)
	}
	if a.ParentLimitPercent != nil {
		req.ParentLimitPercent = float64(*a.ParentLimitPercent)
	}
	if a.StopLossPercent != nil {
		req.StopLossPercent = float64(*a.StopLossPercent)
	}
	if a.TakeProfitPercent != nil {
		req.TakeProfitPercent = float64(*a.TakeProfitPercent)
	}

	return req, req.Validate()
}

// Validate reports ErrInvalidRequest for any field that would make the
// bracket unpriceable.
func (r BracketRequest) Validate() error {
	switch {
	case math.IsNaN(r.ReferencePrice) || math.IsInf(r.ReferencePrice, 0) || r.ReferencePrice <= 0:
		return fmt.Errorf("%w: referencePrice must be positive, got %v", ErrInvalidRequest, r.ReferencePrice)
	case strings.TrimSpace(r.Symbol) == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	case r.Right != Call && r.Right != Put:
		return fmt.Errorf("%w: right must be C or P, got %q", ErrInvalidRequest, r.Right)
	case r.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1, got %d", ErrInvalidRequest, r.Quantity)
	case !finite(r.ParentLimitPercent) || r.ParentLimitPercent <= -100:
		return fmt.Errorf("%w: parentLimitPercent must be above -100, got %v", ErrInvalidRequest, r.ParentLimitPercent)
	case !finite(r.StopLossPercent) || r.StopLossPercent <= 0:
		return fmt.Errorf("%w: stopLossPercent must be positive, got %v", ErrInvalidRequest, r.StopLossPercent)
	case !finite(r.TakeProfitPercent) || r.TakeProfitPercent <= 0:
		return fmt.Errorf("%w: takeProfitPercent must be positive, got %v", ErrInvalidRequest, r.TakeProfitPercent)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
