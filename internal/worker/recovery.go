package worker

import (
	"context"

	"github.com/yanun0323/logs"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/internal/capital"
	"main/internal/ledger"
	"main/internal/resolve"
	"main/internal/restart"
)

// Recovery suspends one container while stuck value is recovered and
// resumes it afterwards. Both transitions are persisted so a crash
// mid-recovery restarts in the suspended state.
type Recovery struct {
	container *capital.Container
	mgr       *restart.Manager
	book      *ledger.Ledger
	broker    adapter.Broker
}

func NewRecovery(container *capital.Container, mgr *restart.Manager, book *ledger.Ledger, broker adapter.Broker) *Recovery {
	return &Recovery{
		container: container,
		mgr:       mgr,
		book:      book,
		broker:    broker,
	}
}

// Begin suspends the container and persists the recovery state.
func (r *Recovery) Begin(ctx context.Context) error {
	r.container.Suspend()
	logs.Warnf("recovery started, container suspended: %s", r.container.ID)
	return r.persist(ctx, enum.TradingStateRecovery)
}

// ResumeTrading re-enables the container and persists the active state.
func (r *Recovery) ResumeTrading(ctx context.Context) error {
	r.container.Resume()
	logs.Infof("recovery complete, container resumed: %s", r.container.ID)
	return r.persist(ctx, enum.TradingStateActive)
}

func (r *Recovery) persist(ctx context.Context, state enum.TradingState) error {
	balances, err := r.broker.GetBalances(ctx)
	if err != nil {
		logs.Warnf("balance fetch for recovery snapshot failed, container: %s, err: %+v", r.container.ID, err)
		balances = nil
	}
	snap := restart.BuildSnapshot(
		state,
		r.book.AllPositions(),
		balances,
		r.book.PendingOrders(),
		"",
		r.mgr.LastSignalID(),
	)
	return r.mgr.SaveState(snap)
}

var _ resolve.RecoveryController = (*Recovery)(nil)
