package zerodha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/types"
)

type Params struct {
	APIKey             string
	AccessToken        string
	Exchange           string
	Product            string
	Variety            string
	DefaultTick        float64
	InstrumentsTTL     time.Duration
	StreamOrderUpdates bool
	Location           *time.Location
}

// kiteAPI is the subset of *kiteconnect.Client the adapter calls.
type kiteAPI interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	ModifyOrder(variety string, orderID string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	CancelOrder(variety string, orderID string, parentOrderID *string) (kiteconnect.OrderResponse, error)
	GetOrderHistory(orderID string) ([]kiteconnect.Order, error)
}

// Zerodha is a Kite Connect session exposing option contracts, depth quotes
// and bracket orders. Kite has no transmit flag, so held orders stay in the
// local order book until the bracket is released.
type Zerodha struct {
	p           Params
	kc          kiteAPI
	instruments *instrumentCache
	book        *orderBook
	tickerMgr   *tickerManager
}

var _ interfaces.Broker = (*Zerodha)(nil)

func NewZerodha(p Params) (*Zerodha, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, errors.New("missing API key/access token")
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)

	z := newWithClient(p, kc)
	if p.StreamOrderUpdates {
		z.tickerMgr = newTickerManager(p.APIKey, p.AccessToken, z.book)
	}
	return z, nil
}

func newWithClient(p Params, kc kiteAPI) *Zerodha {
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Exchange == "" {
		p.Exchange = kiteconnect.ExchangeNFO
	}
	if p.Product == "" {
		p.Product = kiteconnect.ProductNRML
	}
	if p.Variety == "" {
		p.Variety = kiteconnect.VarietyRegular
	}
	return &Zerodha{
		p:           p,
		kc:          kc,
		instruments: newInstrumentCache(kc.GetInstrumentsByExchange, p.InstrumentsTTL, time.Now),
		book:        newOrderBook(kc, p),
	}
}

func (z *Zerodha) Start(ctx context.Context) error {
	if z.tickerMgr == nil {
		return nil
	}
	if err := z.tickerMgr.start(ctx); err != nil {
		return fmt.Errorf("failed to start order update stream: %w", err)
	}
	return nil
}

func (z *Zerodha) Stop(ctx context.Context) {
	if z.tickerMgr != nil {
		z.tickerMgr.stop(ctx)
	}
}

func (z *Zerodha) LookupContracts(ctx context.Context, q types.ContractQuery) ([]types.ContractDescriptor, error) {
	all, err := z.instruments.get(z.p.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s instruments: %w", z.p.Exchange, err)
	}
	return optionContracts(all, q.Symbol, q.Right, q.Month, z.p.Location, z.p.DefaultTick), nil
}

// Quote reads the best bid and offer from market depth.
func (z *Zerodha) Quote(ctx context.Context, contract types.ContractDescriptor) (types.Quote, error) {
	key := quoteKey(contract)
	q, err := z.kc.GetQuote(key)
	if err != nil {
		return types.Quote{}, fmt.Errorf("failed to fetch quote for %s: %w", key, err)
	}
	data, ok := q[key]
	if !ok {
		return types.Quote{}, fmt.Errorf("no quote returned for %s", key)
	}
	return types.Quote{
		Bid: data.Depth.Buy[0].Price,
		Ask: data.Depth.Sell[0].Price,
	}, nil
}

func (z *Zerodha) SubmitOrder(ctx context.Context, contract types.ContractDescriptor, req types.OrderRequest) (types.TradeHandle, error) {
	return z.book.submit(contract, req)
}

func (z *Zerodha) AmendOrder(ctx context.Context, h types.TradeHandle, price float64, transmit bool) (types.TradeHandle, error) {
	return z.book.amend(h, price, transmit)
}

func (z *Zerodha) OrderStatus(ctx context.Context, h types.TradeHandle) (types.TradeStatus, error) {
	return z.book.status(h)
}

func (z *Zerodha) CancelOrder(ctx context.Context, h types.TradeHandle) error {
	return z.book.cancel(h)
}

func quoteKey(c types.ContractDescriptor) string {
	return c.Exchange + ":" + c.TradingSymbol
}

// optionContracts converts instruments of one exchange into descriptors for
// symbol's options of the given right expiring in month (YYYYMM, empty for
// any). Expiries are re-anchored to loc.
func optionContracts(all kiteconnect.Instruments, symbol string, right types.Right, month string, loc *time.Location, defaultTick float64) []types.ContractDescriptor {
	instType := "CE"
	if right == types.Put {
		instType = "PE"
	}

	out := make([]types.ContractDescriptor, 0, 64)
	for _, inst := range all {
		if inst.InstrumentType != instType || !strings.EqualFold(inst.Name, symbol) {
			continue
		}
		if inst.Expiry.Time.IsZero() {
			continue
		}
		y, m, d := inst.Expiry.Time.Date()
		expiry := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if month != "" && expiry.Format("200601") != month {
			continue
		}
		tick := inst.TickSize
		if tick <= 0 {
			tick = defaultTick
		}
		out = append(out, types.ContractDescriptor{
			ID:            fmt.Sprintf("%d", inst.InstrumentToken),
			Symbol:        strings.ToUpper(symbol),
			Right:         right,
			Strike:        inst.StrikePrice,
			Expiry:        expiry,
			Tick:          tick,
			Exchange:      inst.Exchange,
			TradingSymbol: inst.Tradingsymbol,
			LotSize:       int(inst.LotSize),
		})
	}
	return out
}
