package executor

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/internal/capital"
	"main/internal/ledger"
	"main/internal/obs"
	"main/pkg/exception"
)

// ClosedTrade is the journal row emitted after a confirmed exit.
type ClosedTrade struct {
	Container  string
	Symbol     string
	Side       enum.PositionSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	PnlUsd     decimal.Decimal
	Fraction   decimal.Decimal
	Reason     string
	ClosedAt   int64
}

// TradeJournal persists confirmed exits. A nil journal disables
// persistence.
type TradeJournal interface {
	JournalExit(ctx context.Context, trade ClosedTrade) error
}

// Coordinator serializes position closes per (container, symbol) and
// guarantees both exit gates are released on every path.
type Coordinator struct {
	ledger      *ledger.Ledger
	capital     *capital.Engine
	broker      adapter.Broker
	journal     TradeJournal
	callTimeout time.Duration
}

func NewCoordinator(book *ledger.Ledger, cap *capital.Engine, broker adapter.Broker, journal TradeJournal, callTimeout time.Duration) *Coordinator {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Coordinator{
		ledger:      book,
		capital:     cap,
		broker:      broker,
		journal:     journal,
		callTimeout: callTimeout,
	}
}

// AcquireCloseLock grants the close gate for (container, symbol). A
// not-granted result is a normal already-in-progress outcome, not an
// error; the caller must treat it as a no-op.
func (c *Coordinator) AcquireCloseLock(container, symbol string) bool {
	granted := c.ledger.AcquireCloseLock(container, symbol)
	if !granted {
		logs.Infof("close already in progress, container: %s, symbol: %s", container, symbol)
	}
	return granted
}

// RegisterEntry opens a position after the owning container grants
// quota. Rejections return a reason string and never reach the broker.
func (c *Coordinator) RegisterEntry(container, symbol string, qty, price decimal.Decimal, side enum.PositionSide, stop decimal.Decimal) (ledger.Position, string, error) {
	ct, ok := c.capital.Container(container)
	if !ok {
		return ledger.Position{}, "container not found", exception.ErrCapitalContainerNotFound
	}

	sizeUsd := qty.Mul(price)
	if ok, reason := ct.CanOpenPosition(sizeUsd); !ok {
		obs.EntryRejected(rejectLabel(reason))
		return ledger.Position{}, reason, exception.ErrCapitalQuotaDenied
	}
	if err := ct.AllocateCapital(sizeUsd); err != nil {
		return ledger.Position{}, "allocation failed", err
	}

	p, err := c.ledger.Open(container, symbol, side, qty, price, stop)
	if err != nil {
		ct.ReleaseCapital(sizeUsd, true)
		return ledger.Position{}, "position already exists", err
	}
	obs.EntryOpened()
	logs.Infof("entry registered, container: %s, symbol: %s, side: %s, qty: %s @ %s", container, symbol, side, qty, price)
	return p, "", nil
}

// ExecuteExit closes fraction of the remaining position size. The
// caller must hold the close lock from AcquireCloseLock; calling
// without it is a programmer error and panics. Both gates are released
// before returning on success, broker failure and timeout alike.
func (c *Coordinator) ExecuteExit(ctx context.Context, container, symbol string, price, fraction decimal.Decimal, reason string) (ok bool, err error) {
	if closing, _ := c.ledger.GateState(container, symbol); !closing {
		panic("executor: ExecuteExit called without close lock")
	}
	defer c.ledger.ReleaseCloseLock(container, symbol)

	pos, found := c.ledger.Get(container, symbol)
	if !found {
		return false, exception.ErrLedgerPositionNotFound
	}
	one := decimal.NewFromInt(1)
	if fraction.LessThanOrEqual(decimal.Zero) || fraction.GreaterThan(one) {
		return false, exception.ErrLedgerInvalidFraction
	}

	// Exit size comes from the locally tracked remaining quantity,
	// never from the caller.
	exitQty := pos.RemainingQuantity().Mul(fraction)
	if err := c.ledger.MarkExitOrderActive(container, symbol); err != nil {
		return false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	result, err := c.broker.PlaceOrder(callCtx, adapter.OrderRequest{
		Symbol: symbol,
		Side:   exitSide(pos.Side),
		Kind:   enum.OrderKindMarket,
		Size:   exitQty,
	})
	if err != nil {
		if callCtx.Err() != nil {
			// Timeout leaves the order state unknown. Track it for the
			// next reconciliation pass instead of guessing an outcome.
			c.trackUnknownOrder(container, symbol, pos.Side, result.OrderID)
			obs.ExitFailed("timeout")
			return false, exception.ErrBrokerStateUnknown
		}
		obs.ExitFailed("broker")
		logs.Errorf("exit order failed, container: %s, symbol: %s, err: %+v", container, symbol, err)
		return false, errors.Wrap(err, "place exit order")
	}
	if result.Status == enum.OrderStatusRejected {
		obs.ExitFailed("rejected")
		return false, exception.ErrBrokerOrderRejected
	}

	removed, err := c.ledger.ApplyExit(container, symbol, fraction)
	if err != nil {
		return false, errors.Wrap(err, "apply exit")
	}

	fillPrice := result.FillPrice
	if fillPrice.IsZero() {
		fillPrice = price
	}
	c.settle(ctx, pos, exitQty, fillPrice, fraction, removed, reason)
	obs.ExitExecuted(reason, removed)
	return true, nil
}

func (c *Coordinator) settle(ctx context.Context, pos ledger.Position, exitQty, fillPrice, fraction decimal.Decimal, fullExit bool, reason string) {
	pnl := fillPrice.Sub(pos.EntryPrice).Mul(exitQty)
	if pos.Side == enum.PositionSideShort {
		pnl = pnl.Neg()
	}

	released := pos.RemainingQuoteSize().Mul(fraction)
	if ct, ok := c.capital.Container(pos.Container); ok {
		ct.ReleaseCapital(released, fullExit)
		ct.RecordTrade(pnl, pnl.GreaterThanOrEqual(decimal.Zero))
	}

	if c.journal != nil {
		trade := ClosedTrade{
			Container:  pos.Container,
			Symbol:     pos.Symbol,
			Side:       pos.Side,
			Quantity:   exitQty,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  fillPrice,
			PnlUsd:     pnl,
			Fraction:   fraction,
			Reason:     reason,
			ClosedAt:   time.Now().UTC().UnixNano(),
		}
		if err := c.journal.JournalExit(ctx, trade); err != nil {
			logs.Warnf("journal exit failed, symbol: %s, err: %+v", pos.Symbol, err)
		}
	}

	logs.Infof("exit executed, container: %s, symbol: %s, fraction: %s, pnl: %s, full: %t",
		pos.Container, pos.Symbol, fraction, pnl, fullExit)
}

func (c *Coordinator) trackUnknownOrder(container, symbol string, side enum.PositionSide, orderID string) {
	if orderID == "" {
		orderID = "unknown-" + symbol
	}
	_ = c.ledger.AddPending(ledger.PendingOrder{
		OrderID:     orderID,
		Container:   container,
		Symbol:      symbol,
		Side:        exitSide(side),
		Kind:        enum.OrderKindMarket,
		SubmittedAt: time.Now().UTC().UnixNano(),
		Status:      enum.OrderStatusPlaced,
	})
	logs.Warnf("exit order state unknown, deferred to reconciliation, container: %s, symbol: %s", container, symbol)
}

// rejectLabel collapses a free-form quota reason into a bounded metric
// label.
func rejectLabel(reason string) string {
	switch {
	case strings.Contains(reason, "not active"):
		return "status"
	case strings.Contains(reason, "max positions"):
		return "position_count"
	case strings.Contains(reason, "per-position cap"):
		return "size_cap"
	case strings.Contains(reason, "available capital"):
		return "capital"
	case strings.Contains(reason, "daily loss"):
		return "daily_loss"
	default:
		return "other"
	}
}

func exitSide(side enum.PositionSide) enum.OrderSide {
	if side == enum.PositionSideShort {
		return enum.OrderSideBuy
	}
	return enum.OrderSideSell
}
