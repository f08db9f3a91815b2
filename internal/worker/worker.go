package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/internal/bus"
	"main/internal/capital"
	"main/internal/executor"
	"main/internal/ledger"
	"main/internal/resolve"
	"main/internal/restart"
)

// Config tunes one trading worker.
type Config struct {
	StopCheckInterval time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.StopCheckInterval <= 0 {
		cfg.StopCheckInterval = 30 * time.Second
	}
	return cfg
}

// Worker is the long-lived loop for one (container, broker) pair. Each
// pair runs independently so one broker's outage cannot block another
// container's trading.
type Worker struct {
	cfg       Config
	container *capital.Container
	broker    adapter.Broker
	book      *ledger.Ledger
	coord     *executor.Coordinator
	queue     *bus.Queue
	restart   *restart.Manager
	resolver  *resolve.Resolver
	stopRule  executor.StopRule

	mu           sync.Mutex
	lastTradeID  string
	lastSignalID string
	lastBalances map[string]decimal.Decimal
}

func New(cfg Config, container *capital.Container, broker adapter.Broker, book *ledger.Ledger, coord *executor.Coordinator, queue *bus.Queue, mgr *restart.Manager, resolver *resolve.Resolver, stopRule executor.StopRule) *Worker {
	return &Worker{
		cfg:       cfg.withDefaults(),
		container: container,
		broker:    broker,
		book:      book,
		coord:     coord,
		queue:     queue,
		restart:   mgr,
		resolver:  resolver,
		stopRule:  stopRule,
	}
}

// Run blocks until shutdown. It refuses to start before restart
// reconciliation has completed; reconcile-then-trade is mandatory.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.restart.AssertReconciliationComplete(); err != nil {
		return err
	}

	go w.stopCheckLoop(ctx)

	logs.Infof("worker started, container: %s, broker: %s", w.container.ID, w.broker.Name())
	w.queue.Run(ctx, func(s adapter.Signal) {
		w.Handle(ctx, s)
	})
	return nil
}

// Handle processes one strategy signal end to end.
func (w *Worker) Handle(ctx context.Context, s adapter.Signal) {
	if s.Container != "" && s.Container != w.container.ID {
		logs.Warnf("signal for foreign container dropped, got: %s, want: %s", s.Container, w.container.ID)
		return
	}
	if !w.restart.PreventDuplicate(s.SignalID) {
		return
	}
	if !w.container.CountAPICall(time.Now()) {
		logs.Warnf("api budget exhausted, container: %s, signal dropped: %s", w.container.ID, s.SignalID)
		return
	}

	switch s.Side {
	case enum.OrderSideBuy:
		w.handleEntry(ctx, s)
	case enum.OrderSideSell:
		w.handleExit(ctx, s)
	default:
		logs.Warnf("signal with unknown side dropped, id: %s", s.SignalID)
		return
	}

	w.persist(ctx, s.SignalID)
}

func (w *Worker) handleEntry(ctx context.Context, s adapter.Signal) {
	price, err := w.resolver.Resolve(ctx, s.Symbol)
	if err != nil {
		logs.Warnf("entry skipped, no price, symbol: %s, err: %+v", s.Symbol, err)
		return
	}
	qty := s.SizeUsd.Div(price)

	_, reason, err := w.coord.RegisterEntry(w.container.ID, s.Symbol, qty, price, enum.PositionSideLong, s.StopLoss)
	if err != nil {
		logs.Infof("entry rejected, container: %s, symbol: %s, reason: %s", w.container.ID, s.Symbol, reason)
		return
	}
	w.setLastTradeID(uuid.NewString())
}

func (w *Worker) handleExit(ctx context.Context, s adapter.Signal) {
	if _, ok := w.book.Get(w.container.ID, s.Symbol); !ok {
		logs.Infof("exit signal for unknown position, symbol: %s", s.Symbol)
		return
	}
	if !w.coord.AcquireCloseLock(w.container.ID, s.Symbol) {
		// Normal already-in-progress outcome; success-no-op.
		return
	}

	price, err := w.resolver.Resolve(ctx, s.Symbol)
	if err != nil {
		w.book.ReleaseCloseLock(w.container.ID, s.Symbol)
		logs.Warnf("exit skipped, no price, symbol: %s, err: %+v", s.Symbol, err)
		return
	}

	ok, err := w.coord.ExecuteExit(ctx, w.container.ID, s.Symbol, price, decimal.NewFromInt(1), s.Reason)
	if err != nil {
		logs.Warnf("exit failed, container: %s, symbol: %s, err: %+v", w.container.ID, s.Symbol, err)
		return
	}
	if ok {
		w.setLastTradeID(uuid.NewString())
	}
}

func (w *Worker) stopCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.StopCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CheckStops(ctx)
		}
	}
}

// CheckStops evaluates the stop predicate against every open position
// and closes the triggered ones.
func (w *Worker) CheckStops(ctx context.Context) {
	for _, pos := range w.book.Positions(w.container.ID) {
		price, err := w.resolver.Resolve(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		if !w.stopRule.Triggered(pos, price) {
			continue
		}
		if !w.coord.AcquireCloseLock(w.container.ID, pos.Symbol) {
			continue
		}
		if _, err := w.coord.ExecuteExit(ctx, w.container.ID, pos.Symbol, price, decimal.NewFromInt(1), "stop_loss"); err != nil {
			logs.Warnf("stop exit failed, symbol: %s, err: %+v", pos.Symbol, err)
		}
		w.persist(ctx, w.lastSignal())
	}
}

// persist writes the system snapshot after a state-changing operation.
// Balances fall back to the last successful fetch when the broker is
// unreachable, so a transient outage never blanks the snapshot.
func (w *Worker) persist(ctx context.Context, signalID string) {
	balances, err := w.broker.GetBalances(ctx)

	w.mu.Lock()
	if signalID != "" {
		w.lastSignalID = signalID
	}
	if err != nil {
		logs.Warnf("balance fetch for snapshot failed, container: %s, err: %+v", w.container.ID, err)
		balances = w.lastBalances
	} else {
		w.lastBalances = balances
	}
	tradeID := w.lastTradeID
	lastSignal := w.lastSignalID
	w.mu.Unlock()

	snap := restart.BuildSnapshot(
		enum.TradingStateActive,
		w.book.AllPositions(),
		balances,
		w.book.PendingOrders(),
		tradeID,
		lastSignal,
	)
	if err := w.restart.SaveState(snap); err != nil {
		logs.Errorf("snapshot save failed, container: %s, err: %+v", w.container.ID, err)
	}
}

func (w *Worker) setLastTradeID(id string) {
	w.mu.Lock()
	w.lastTradeID = id
	w.mu.Unlock()
}

func (w *Worker) lastSignal() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSignalID
}
