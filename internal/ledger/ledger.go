package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/adapter/enum"
	"main/pkg/exception"
)

// remainingEpsilon bounds the fraction below which a position counts
// as fully exited.
var remainingEpsilon = decimal.New(1, -9)

type key struct {
	container string
	symbol    string
}

// symbolLock carries the two independent exit gates for one
// (container, symbol). Both must be clear before a close may begin and
// both must be released on every exit path.
type symbolLock struct {
	closing    bool // a close attempt is in progress
	activeExit bool // an exit order is submitted but unconfirmed
}

// Ledger is the internal source of truth for positions, in-flight
// orders and per-symbol exit gates. The embedded mutex only guards map
// access; exclusion across broker calls comes from the gates.
type Ledger struct {
	mu        sync.Mutex
	positions map[key]*Position
	pending   map[string]*PendingOrder
	locks     map[key]*symbolLock
}

func New() *Ledger {
	return &Ledger{
		positions: make(map[key]*Position),
		pending:   make(map[string]*PendingOrder),
		locks:     make(map[key]*symbolLock),
	}
}

// AcquireCloseLock fails closed: it grants only when both gates are
// clear, and sets closing-in-progress as a side effect. A not-granted
// result means a close is already running; the caller must not proceed.
func (l *Ledger) AcquireCloseLock(container, symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.lockFor(container, symbol)
	if lock.closing || lock.activeExit {
		return false
	}
	lock.closing = true
	return true
}

// MarkExitOrderActive sets the active-exit-order gate. It requires the
// closing gate to be held already.
func (l *Ledger) MarkExitOrderActive(container, symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.lockFor(container, symbol)
	if !lock.closing {
		return exception.ErrLedgerLockNotHeld
	}
	lock.activeExit = true
	return nil
}

// ReleaseCloseLock clears both gates unconditionally.
func (l *Ledger) ReleaseCloseLock(container, symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.lockFor(container, symbol)
	lock.closing = false
	lock.activeExit = false
}

// GateState reports the current gate values.
func (l *Ledger) GateState(container, symbol string) (closing, activeExit bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.lockFor(container, symbol)
	return lock.closing, lock.activeExit
}

func (l *Ledger) lockFor(container, symbol string) *symbolLock {
	k := key{container, symbol}
	lock, ok := l.locks[k]
	if !ok {
		lock = &symbolLock{}
		l.locks[k] = lock
	}
	return lock
}

// Open records a new position. A symbol has at most one open position
// per container.
func (l *Ledger) Open(container, symbol string, side enum.PositionSide, qty, price, stop decimal.Decimal) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{container, symbol}
	if _, ok := l.positions[k]; ok {
		return Position{}, exception.ErrLedgerPositionExists
	}
	p := newPosition(container, symbol, side, qty, price, stop)
	l.positions[k] = p
	return *p, nil
}

// Get returns a copy of the position for (container, symbol).
func (l *Ledger) Get(container, symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[key{container, symbol}]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// ApplyExit reduces the position by fraction of its remaining size.
// When the leftover fraction falls within epsilon of zero the position
// is deleted synchronously, never deferred to a later poll.
func (l *Ledger) ApplyExit(container, symbol string, fraction decimal.Decimal) (removed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{container, symbol}
	p, ok := l.positions[k]
	if !ok {
		return false, exception.ErrLedgerPositionNotFound
	}
	one := decimal.NewFromInt(1)
	if fraction.LessThanOrEqual(decimal.Zero) || fraction.GreaterThan(one) {
		return false, exception.ErrLedgerInvalidFraction
	}

	left := p.Remaining.Mul(one.Sub(fraction))
	if left.LessThanOrEqual(remainingEpsilon) {
		delete(l.positions, k)
		return true, nil
	}
	p.Remaining = left
	p.UpdatedAt = time.Now().UTC().UnixNano()
	return false, nil
}

// Adjust overwrites the remaining fraction from a reconciliation
// decision. A zero or negative target deletes the position.
func (l *Ledger) Adjust(container, symbol string, remaining decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{container, symbol}
	p, ok := l.positions[k]
	if !ok {
		return exception.ErrLedgerPositionNotFound
	}
	if remaining.LessThanOrEqual(remainingEpsilon) {
		delete(l.positions, k)
		return nil
	}
	p.Remaining = remaining
	p.UpdatedAt = time.Now().UTC().UnixNano()
	return nil
}

// Remove deletes a position outright.
func (l *Ledger) Remove(container, symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{container, symbol}
	if _, ok := l.positions[k]; !ok {
		return false
	}
	delete(l.positions, k)
	return true
}

// Positions returns copies of all open positions for one container.
func (l *Ledger) Positions(container string) []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for k, p := range l.positions {
		if k.container == container {
			out = append(out, *p)
		}
	}
	return out
}

// AllPositions returns copies of every open position.
func (l *Ledger) AllPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out
}

// AddPending tracks a submitted order until a terminal status arrives.
func (l *Ledger) AddPending(o PendingOrder) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[o.OrderID]; ok {
		return exception.ErrLedgerOrderExists
	}
	cp := o
	l.pending[o.OrderID] = &cp
	return nil
}

// ResolvePending records a status update and drops the order once the
// status is terminal.
func (l *Ledger) ResolvePending(orderID string, status enum.OrderStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.pending[orderID]
	if !ok {
		return
	}
	o.Status = status
	if status.IsTerminal() {
		delete(l.pending, orderID)
	}
}

// PendingOrders returns copies of all tracked in-flight orders.
func (l *Ledger) PendingOrders() []PendingOrder {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]PendingOrder, 0, len(l.pending))
	for _, o := range l.pending {
		out = append(out, *o)
	}
	return out
}

// OrphanedPending returns tracked orders that no longer appear in the
// exchange open-order listing and never reached a terminal status.
func (l *Ledger) OrphanedPending(openOrderIDs map[string]struct{}) []PendingOrder {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]PendingOrder, 0)
	for id, o := range l.pending {
		if _, ok := openOrderIDs[id]; !ok {
			out = append(out, *o)
		}
	}
	return out
}
