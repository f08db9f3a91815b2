package worker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/internal/restart"
)

func TestRecoverySuspendsAndResumes(t *testing.T) {
	f := newWorkerFixture(t, true)
	recovery := NewRecovery(f.ct, f.mgr, f.book, f.paper)

	require.NoError(t, recovery.Begin(context.Background()))
	assert.Equal(t, enum.ContainerStatusSuspended, f.ct.Snapshot().Status)

	snap, restarted, err := restart.NewManager(f.statePath, decimal.Zero).LoadState()
	require.NoError(t, err)
	require.True(t, restarted)
	assert.Equal(t, enum.TradingStateRecovery, snap.TradingState, "crash mid-recovery must restart suspended")

	require.NoError(t, recovery.ResumeTrading(context.Background()))
	assert.Equal(t, enum.ContainerStatusActive, f.ct.Snapshot().Status)

	snap, _, err = restart.NewManager(f.statePath, decimal.Zero).LoadState()
	require.NoError(t, err)
	assert.Equal(t, enum.TradingStateActive, snap.TradingState)
}

func TestRecoveryKeepsIdempotencyGuard(t *testing.T) {
	f := newWorkerFixture(t, true)

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		SizeUsd:  decimal.NewFromInt(500),
	})

	recovery := NewRecovery(f.ct, f.mgr, f.book, f.paper)
	require.NoError(t, recovery.Begin(context.Background()))
	require.NoError(t, recovery.ResumeTrading(context.Background()))

	assert.False(t, f.mgr.PreventDuplicate("sig-1"),
		"recovery snapshots must not wipe the last signal id")
}

func TestSuspendedContainerRejectsEntries(t *testing.T) {
	f := newWorkerFixture(t, true)
	recovery := NewRecovery(f.ct, f.mgr, f.book, f.paper)
	require.NoError(t, recovery.Begin(context.Background()))

	f.worker.Handle(context.Background(), adapter.Signal{
		SignalID: "sig-1",
		Symbol:   "BTC-USD",
		Side:     enum.OrderSideBuy,
		SizeUsd:  decimal.NewFromInt(500),
	})
	assert.Empty(t, f.book.AllPositions(), "suspended container must not open positions")
}
