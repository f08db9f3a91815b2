package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"main/internal/adapter/enum"
)

// ExchangePosition is a position as reported by the exchange.
type ExchangePosition struct {
	Symbol   string
	Quantity decimal.Decimal
	UsdValue decimal.Decimal
}

// OpenOrder is an open order as reported by the exchange.
type OpenOrder struct {
	OrderID   string
	Symbol    string
	CreatedAt int64
	ValueUsd  decimal.Decimal
}

// OrderRequest describes an order to place.
type OrderRequest struct {
	Symbol string
	Side   enum.OrderSide
	Kind   enum.OrderKind
	Size   decimal.Decimal
}

// OrderResult is the exchange acknowledgment for a placed order.
type OrderResult struct {
	Status    enum.OrderStatus
	OrderID   string
	FillPrice decimal.Decimal
}

// Broker is the capability interface every exchange adapter implements
// fully. Operations an exchange cannot serve return
// exception.ErrUnsupported.
type Broker interface {
	Name() string
	GetBalances(ctx context.Context) (map[string]decimal.Decimal, error)
	GetPositions(ctx context.Context) ([]ExchangePosition, error)
	GetOpenOrders(ctx context.Context) ([]OpenOrder, error)
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
}
