package interfaces

import (
	"context"

	"tv-bracket-bot/internal/types"
)

// ContractLookup lists option contracts matching a query.
type ContractLookup interface {
	LookupContracts(ctx context.Context, q types.ContractQuery) ([]types.ContractDescriptor, error)
}

type QuoteFeed interface {
	Quote(ctx context.Context, contract types.ContractDescriptor) (types.Quote, error)
}

// OrderGateway submits and tracks orders. An order submitted with
// Transmit=false is held by the gateway until amended with transmit=true,
// or until a later order of the same bracket is submitted with Transmit=true.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, contract types.ContractDescriptor, req types.OrderRequest) (types.TradeHandle, error)
	AmendOrder(ctx context.Context, h types.TradeHandle, price float64, transmit bool) (types.TradeHandle, error)
	OrderStatus(ctx context.Context, h types.TradeHandle) (types.TradeStatus, error)
}

// OrderCanceller is implemented by gateways that can withdraw an order.
type OrderCanceller interface {
	CancelOrder(ctx context.Context, h types.TradeHandle) error
}

// Broker is a brokerage session exposing every collaborator the placer needs.
type Broker interface {
	ContractLookup
	QuoteFeed
	OrderGateway
	OrderCanceller

	Start(ctx context.Context) error
	Stop(ctx context.Context)
}
