package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/adapter/enum"
)

// Position is what the system believes it owns for one
// (container, symbol). At most one open position exists per pair.
type Position struct {
	Container  string
	Symbol     string
	Side       enum.PositionSide
	Quantity   decimal.Decimal // base quantity at entry
	EntryPrice decimal.Decimal
	QuoteSize  decimal.Decimal // entry size in quote currency
	StopPrice  decimal.Decimal
	Remaining  decimal.Decimal // fraction of entry size still open, 1 = full
	OpenedAt   int64
	UpdatedAt  int64
}

// RemainingQuantity is the base quantity still open. Exit sizes are
// always derived from this, never from caller-supplied quantities.
func (p Position) RemainingQuantity() decimal.Decimal {
	return p.Quantity.Mul(p.Remaining)
}

// RemainingQuoteSize is the quote-currency size still open.
func (p Position) RemainingQuoteSize() decimal.Decimal {
	return p.QuoteSize.Mul(p.Remaining)
}

// PendingOrder tracks an order from submission until a terminal status
// is observed. Orders missing from the exchange open-order list without
// a terminal status recorded are orphaned.
type PendingOrder struct {
	OrderID     string
	Container   string
	Symbol      string
	Side        enum.OrderSide
	Kind        enum.OrderKind
	SubmittedAt int64
	Status      enum.OrderStatus
}

func newPosition(container, symbol string, side enum.PositionSide, qty, price, stop decimal.Decimal) *Position {
	now := time.Now().UTC().UnixNano()
	return &Position{
		Container:  container,
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: price,
		QuoteSize:  qty.Mul(price),
		StopPrice:  stop,
		Remaining:  decimal.NewFromInt(1),
		OpenedAt:   now,
		UpdatedAt:  now,
	}
}
