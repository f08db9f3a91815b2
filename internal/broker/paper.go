package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/internal/reconcile"
	"main/pkg/exception"
)

// PaperBroker is an in-memory exchange used for dry runs and tests.
// Market orders fill immediately at the seeded price; stop and target
// orders rest in the open-order list until canceled.
type PaperBroker struct {
	mu         sync.Mutex
	name       string
	balances   map[string]decimal.Decimal
	prices     map[string]decimal.Decimal
	openOrders map[string]adapter.OpenOrder
}

func NewPaperBroker(name string, usdBalance decimal.Decimal) *PaperBroker {
	if name == "" {
		name = "paper"
	}
	return &PaperBroker{
		name:       name,
		balances:   map[string]decimal.Decimal{"USD": usdBalance},
		prices:     make(map[string]decimal.Decimal),
		openOrders: make(map[string]adapter.OpenOrder),
	}
}

func (b *PaperBroker) Name() string {
	return b.name
}

// SetPrice seeds or moves a quote.
func (b *PaperBroker) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

// ApplyTickerPayload seeds a quote from a recorded exchange ticker
// message.
func (b *PaperBroker) ApplyTickerPayload(data []byte) error {
	symbol, price, err := ParseTickerPayload(data)
	if err != nil {
		return err
	}
	b.SetPrice(symbol, price)
	return nil
}

// SetBalance seeds an asset balance.
func (b *PaperBroker) SetBalance(asset string, qty decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[asset] = qty
}

func (b *PaperBroker) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(b.balances))
	for asset, qty := range b.balances {
		out[asset] = qty
	}
	return out, nil
}

func (b *PaperBroker) GetPositions(ctx context.Context) ([]adapter.ExchangePosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]adapter.ExchangePosition, 0, len(b.balances))
	for asset, qty := range b.balances {
		if asset == "USD" || qty.LessThanOrEqual(decimal.Zero) {
			continue
		}
		usd := decimal.Zero
		if price, ok := b.priceFor(asset); ok {
			usd = qty.Mul(price)
		}
		out = append(out, adapter.ExchangePosition{Symbol: asset, Quantity: qty, UsdValue: usd})
	}
	return out, nil
}

func (b *PaperBroker) GetOpenOrders(ctx context.Context) ([]adapter.OpenOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]adapter.OpenOrder, 0, len(b.openOrders))
	for _, o := range b.openOrders {
		out = append(out, o)
	}
	return out, nil
}

func (b *PaperBroker) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if price, ok := b.prices[symbol]; ok {
		return price, nil
	}
	if price, ok := b.priceFor(reconcile.BaseAsset(symbol)); ok {
		return price, nil
	}
	return decimal.Zero, exception.ErrBrokerPriceUnavailable
}

func (b *PaperBroker) PlaceOrder(ctx context.Context, req adapter.OrderRequest) (adapter.OrderResult, error) {
	if !req.Side.IsAvailable() || !req.Kind.IsAvailable() || req.Size.LessThanOrEqual(decimal.Zero) {
		return adapter.OrderResult{Status: enum.OrderStatusRejected}, exception.ErrBrokerOrderRejected
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	orderID := uuid.New().String()
	if req.Kind != enum.OrderKindMarket {
		b.openOrders[orderID] = adapter.OpenOrder{
			OrderID:   orderID,
			Symbol:    req.Symbol,
			CreatedAt: time.Now().UTC().UnixNano(),
		}
		return adapter.OrderResult{Status: enum.OrderStatusPlaced, OrderID: orderID}, nil
	}

	price, ok := b.prices[req.Symbol]
	if !ok {
		price, ok = b.priceFor(reconcile.BaseAsset(req.Symbol))
	}
	if !ok {
		return adapter.OrderResult{Status: enum.OrderStatusRejected}, exception.ErrBrokerPriceUnavailable
	}

	asset := reconcile.BaseAsset(req.Symbol)
	notional := req.Size.Mul(price)
	switch req.Side {
	case enum.OrderSideBuy:
		if b.balances["USD"].LessThan(notional) {
			return adapter.OrderResult{Status: enum.OrderStatusRejected}, exception.ErrBrokerOrderRejected
		}
		b.balances["USD"] = b.balances["USD"].Sub(notional)
		b.balances[asset] = b.balances[asset].Add(req.Size)
	case enum.OrderSideSell:
		if b.balances[asset].LessThan(req.Size) {
			return adapter.OrderResult{Status: enum.OrderStatusRejected}, exception.ErrBrokerOrderRejected
		}
		b.balances[asset] = b.balances[asset].Sub(req.Size)
		b.balances["USD"] = b.balances["USD"].Add(notional)
	}

	return adapter.OrderResult{
		Status:    enum.OrderStatusFilled,
		OrderID:   orderID,
		FillPrice: price,
	}, nil
}

func (b *PaperBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.openOrders[orderID]; !ok {
		return false, nil
	}
	delete(b.openOrders, orderID)
	return true, nil
}

func (b *PaperBroker) priceFor(asset string) (decimal.Decimal, bool) {
	for _, suffix := range []string{"", "-USD", "-USDT"} {
		if price, ok := b.prices[asset+suffix]; ok {
			return price, true
		}
	}
	return decimal.Zero, false
}

var _ adapter.Broker = (*PaperBroker)(nil)
