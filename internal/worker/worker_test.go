package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/capital"
	"main/internal/executor"
	"main/internal/ledger"
	"main/internal/resolve"
	"main/internal/restart"
	"main/pkg/exception"
)

type workerFixture struct {
	worker    *Worker
	book      *ledger.Ledger
	ct        *capital.Container
	mgr       *restart.Manager
	paper     *broker.PaperBroker
	statePath string
}

func newWorkerFixture(t *testing.T, reconcile bool) workerFixture {
	t.Helper()

	paper := broker.NewPaperBroker("paper", decimal.NewFromInt(100_000))
	paper.SetPrice("BTC-USD", decimal.NewFromInt(50_000))
	paper.SetBalance("BTC", decimal.NewFromInt(1))

	book := ledger.New()
	engine := capital.NewEngine(decimal.NewFromInt(100_000), 4)
	ct, err := engine.CreateContainer("alice", decimal.NewFromInt(10_000), capital.TierStandard)
	require.NoError(t, err)

	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := restart.NewManager(statePath, decimal.Zero)
	if reconcile {
		_, _, err = mgr.LoadState()
		require.NoError(t, err)
		mgr.ReconcileWithExchange(nil, nil, nil)
	}

	coord := executor.NewCoordinator(book, engine, paper, nil, time.Second)
	resolver := resolve.NewResolver(paper, resolve.NewTracker(0))
	stopRule := executor.NewStopRule(executor.StopCombineOr, decimal.NewFromInt(5))

	w := New(Config{}, ct, paper, book, coord, bus.NewQueue(16), mgr, resolver, stopRule)
	return workerFixture{worker: w, book: book, ct: ct, mgr: mgr, paper: paper, statePath: statePath}
}

func TestRunRefusesBeforeReconciliation(t *testing.T) {
	f := newWorkerFixture(t, false)
	err := f.worker.Run(context.Background())
	assert.ErrorIs(t, err, exception.ErrRestartNotReconciled)
}

func TestHandleBuyOpensPosition(t *testing.T) {
	f := newWorkerFixture(t, true)

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		SizeUsd:  decimal.NewFromInt(500),
	})

	pos, ok := f.book.Get(f.ct.ID, "BTC-USD")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromFloat(0.01)),
		"500 USD at 50000 buys 0.01, got %s", pos.Quantity)
	assert.True(t, f.ct.Snapshot().AvailableCapital.Equal(decimal.NewFromInt(9_500)))
}

func TestHandleSellClosesPosition(t *testing.T) {
	f := newWorkerFixture(t, true)

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		SizeUsd:  decimal.NewFromInt(500),
	})
	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-2",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideSell,
		Reason:   "signal",
	})

	_, ok := f.book.Get(f.ct.ID, "BTC-USD")
	assert.False(t, ok)
	closing, activeExit := f.book.GateState(f.ct.ID, "BTC-USD")
	assert.False(t, closing)
	assert.False(t, activeExit)
}

func TestHandleRejectsDuplicateSignal(t *testing.T) {
	f := newWorkerFixture(t, true)

	signal := adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		SizeUsd:  decimal.NewFromInt(500),
	}
	f.worker.Handle(context.Background(), signal)
	_, err := f.book.ApplyExit(f.ct.ID, "BTC-USD", decimal.NewFromInt(1))
	require.NoError(t, err)

	// Replay of the persisted signal id must be a no-op.
	f.worker.Handle(context.Background(), signal)
	_, ok := f.book.Get(f.ct.ID, "BTC-USD")
	assert.False(t, ok, "duplicate signal must not re-open the position")
}

func TestHandleDropsForeignContainer(t *testing.T) {
	f := newWorkerFixture(t, true)

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID:  "sig-1",
		Container: "ct-someone-else",
		Symbol:    "BTC-USD",
		Side:      enum.OrderSideBuy,
		SizeUsd:   decimal.NewFromInt(500),
	})
	assert.Empty(t, f.book.AllPositions())
}

func TestHandleSellWithoutPositionIsNoOp(t *testing.T) {
	f := newWorkerFixture(t, true)

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideSell,
	})
	closing, _ := f.book.GateState(f.ct.ID, "BTC-USD")
	assert.False(t, closing, "no lock may be left behind")
}

func TestHandlePersistsSnapshot(t *testing.T) {
	f := newWorkerFixture(t, true)

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		SizeUsd:  decimal.NewFromInt(500),
	})

	assert.False(t, f.mgr.PreventDuplicate("sig-1"), "signal id persisted for idempotency")
}

func TestSnapshotCarriesBrokerBalances(t *testing.T) {
	f := newWorkerFixture(t, true)

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		SizeUsd:  decimal.NewFromInt(500),
	})

	reloaded := restart.NewManager(f.statePath, decimal.Zero)
	snap, restarted, err := reloaded.LoadState()
	require.NoError(t, err)
	require.True(t, restarted)

	require.NotEmpty(t, snap.Balances, "snapshot records live balances")
	assert.True(t, snap.Balances["USD"].Equal(decimal.NewFromInt(99_500)),
		"USD balance after the 500 USD fill, got %s", snap.Balances["USD"])
	assert.True(t, snap.Balances["BTC"].Equal(decimal.NewFromFloat(1.01)),
		"BTC balance after the 0.01 fill, got %s", snap.Balances["BTC"])
}

func TestCheckStopsClosesTriggeredPosition(t *testing.T) {
	f := newWorkerFixture(t, true)

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		SizeUsd:  decimal.NewFromInt(500),
		StopLoss: decimal.NewFromInt(48_000),
	})

	// Above the stop: nothing happens.
	f.worker.CheckStops(context.Background())
	_, ok := f.book.Get(f.ct.ID, "BTC-USD")
	require.True(t, ok)

	f.paper.SetPrice("BTC-USD", decimal.NewFromInt(47_000))
	f.worker.CheckStops(context.Background())
	_, ok = f.book.Get(f.ct.ID, "BTC-USD")
	assert.False(t, ok, "stop crossed, position closed")
}
