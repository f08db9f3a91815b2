package ledger

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/adapter/enum"
	"main/pkg/exception"
)

func TestAcquireCloseLockFailsClosed(t *testing.T) {
	book := New()

	require.True(t, book.AcquireCloseLock("ct-a", "BTC-USD"))
	assert.False(t, book.AcquireCloseLock("ct-a", "BTC-USD"), "second acquire must not be granted")

	// Other symbols and containers are unaffected.
	assert.True(t, book.AcquireCloseLock("ct-a", "ETH-USD"))
	assert.True(t, book.AcquireCloseLock("ct-b", "BTC-USD"))

	book.ReleaseCloseLock("ct-a", "BTC-USD")
	assert.True(t, book.AcquireCloseLock("ct-a", "BTC-USD"))
}

func TestAcquireCloseLockBlockedByActiveExit(t *testing.T) {
	book := New()

	require.True(t, book.AcquireCloseLock("ct-a", "BTC-USD"))
	require.NoError(t, book.MarkExitOrderActive("ct-a", "BTC-USD"))

	closing, activeExit := book.GateState("ct-a", "BTC-USD")
	assert.True(t, closing)
	assert.True(t, activeExit)

	book.ReleaseCloseLock("ct-a", "BTC-USD")
	closing, activeExit = book.GateState("ct-a", "BTC-USD")
	assert.False(t, closing)
	assert.False(t, activeExit)
}

func TestMarkExitOrderActiveRequiresLock(t *testing.T) {
	book := New()
	err := book.MarkExitOrderActive("ct-a", "BTC-USD")
	assert.ErrorIs(t, err, exception.ErrLedgerLockNotHeld)
}

func TestAcquireCloseLockConcurrent(t *testing.T) {
	book := New()

	const attempts = 32
	granted := make(chan bool, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted <- book.AcquireCloseLock("ct-a", "BTC-USD")
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for ok := range granted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one acquire may win")
}

func TestOpenRejectsDuplicate(t *testing.T) {
	book := New()

	_, err := book.Open("ct-a", "BTC-USD", enum.PositionSideLong,
		decimal.NewFromFloat(0.01), decimal.NewFromInt(50_000), decimal.Zero)
	require.NoError(t, err)

	_, err = book.Open("ct-a", "BTC-USD", enum.PositionSideLong,
		decimal.NewFromFloat(0.02), decimal.NewFromInt(51_000), decimal.Zero)
	assert.ErrorIs(t, err, exception.ErrLedgerPositionExists)
}

func TestApplyExitPartialThenFull(t *testing.T) {
	book := New()
	_, err := book.Open("ct-a", "BTC-USD", enum.PositionSideLong,
		decimal.NewFromFloat(0.01), decimal.NewFromInt(50_000), decimal.Zero)
	require.NoError(t, err)

	removed, err := book.ApplyExit("ct-a", "BTC-USD", decimal.NewFromFloat(0.5))
	require.NoError(t, err)
	assert.False(t, removed)

	pos, ok := book.Get("ct-a", "BTC-USD")
	require.True(t, ok)
	assert.True(t, pos.Remaining.Equal(decimal.NewFromFloat(0.5)),
		"remaining should be 0.5, got %s", pos.Remaining)

	removed, err = book.ApplyExit("ct-a", "BTC-USD", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok = book.Get("ct-a", "BTC-USD")
	assert.False(t, ok, "position must be gone immediately after full exit")
}

func TestApplyExitFractionBounds(t *testing.T) {
	book := New()
	_, err := book.Open("ct-a", "BTC-USD", enum.PositionSideLong,
		decimal.NewFromFloat(0.01), decimal.NewFromInt(50_000), decimal.Zero)
	require.NoError(t, err)

	_, err = book.ApplyExit("ct-a", "BTC-USD", decimal.Zero)
	assert.ErrorIs(t, err, exception.ErrLedgerInvalidFraction)

	_, err = book.ApplyExit("ct-a", "BTC-USD", decimal.NewFromFloat(1.5))
	assert.ErrorIs(t, err, exception.ErrLedgerInvalidFraction)

	_, err = book.ApplyExit("ct-a", "ETH-USD", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, exception.ErrLedgerPositionNotFound)
}

func TestRemainingQuantity(t *testing.T) {
	book := New()
	_, err := book.Open("ct-a", "BTC-USD", enum.PositionSideLong,
		decimal.NewFromFloat(0.04), decimal.NewFromInt(50_000), decimal.Zero)
	require.NoError(t, err)

	_, err = book.ApplyExit("ct-a", "BTC-USD", decimal.NewFromFloat(0.25))
	require.NoError(t, err)

	pos, ok := book.Get("ct-a", "BTC-USD")
	require.True(t, ok)
	assert.True(t, pos.RemainingQuantity().Equal(decimal.NewFromFloat(0.03)),
		"remaining quantity should be 0.03, got %s", pos.RemainingQuantity())
}

func TestAdjust(t *testing.T) {
	book := New()
	_, err := book.Open("ct-a", "BTC-USD", enum.PositionSideLong,
		decimal.NewFromFloat(0.01), decimal.NewFromInt(50_000), decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, book.Adjust("ct-a", "BTC-USD", decimal.NewFromFloat(0.3)))
	pos, ok := book.Get("ct-a", "BTC-USD")
	require.True(t, ok)
	assert.True(t, pos.Remaining.Equal(decimal.NewFromFloat(0.3)))

	require.NoError(t, book.Adjust("ct-a", "BTC-USD", decimal.Zero))
	_, ok = book.Get("ct-a", "BTC-USD")
	assert.False(t, ok, "adjust to zero removes the position")
}

func TestPendingOrderLifecycle(t *testing.T) {
	book := New()

	order := PendingOrder{
		OrderID:   "ord-1",
		Container: "ct-a",
		Symbol:    "BTC-USD",
		Side:      enum.OrderSideSell,
		Kind:      enum.OrderKindMarket,
		Status:    enum.OrderStatusPlaced,
	}
	require.NoError(t, book.AddPending(order))
	assert.ErrorIs(t, book.AddPending(order), exception.ErrLedgerOrderExists)

	book.ResolvePending("ord-1", enum.OrderStatusPartialFilled)
	assert.Len(t, book.PendingOrders(), 1, "non-terminal status keeps the order")

	book.ResolvePending("ord-1", enum.OrderStatusFilled)
	assert.Empty(t, book.PendingOrders(), "terminal status drops the order")
}

func TestOrphanedPending(t *testing.T) {
	book := New()
	require.NoError(t, book.AddPending(PendingOrder{OrderID: "ord-1", Symbol: "BTC-USD", Status: enum.OrderStatusPlaced}))
	require.NoError(t, book.AddPending(PendingOrder{OrderID: "ord-2", Symbol: "ETH-USD", Status: enum.OrderStatusPlaced}))

	orphans := book.OrphanedPending(map[string]struct{}{"ord-2": {}})
	require.Len(t, orphans, 1)
	assert.Equal(t, "ord-1", orphans[0].OrderID)
}
