package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/adapter"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/capital"
	"main/internal/executor"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/reconcile"
	"main/internal/resolve"
	"main/internal/restart"
	"main/internal/store"
	"main/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	snapshotPath := flag.String("snapshot-path", "", "System state snapshot path (overrides config)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *snapshotPath != "" {
		loaded.SnapshotPath = *snapshotPath
	}

	if loaded.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trading-bot",
			ServerAddress:   loaded.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer profiler.Stop()
	}

	if loaded.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", obs.Handler())
			if err := http.ListenAndServe(loaded.MetricsListen, mux); err != nil {
				logs.Errorf("metrics listener failed, err: %+v", err)
			}
		}()
	}

	var journal *store.Store
	if loaded.Storage != nil {
		journal, err = store.Open(*loaded.Storage)
		if err != nil {
			log.Fatalf("store open failed: %v", err)
		}
		defer journal.Close()
	}

	exchange := buildPaperBroker(loaded.Paper)
	book := ledger.New()
	engine := capital.NewEngine(loaded.TotalCapital, len(loaded.Containers))

	containers := make([]*capital.Container, 0, len(loaded.Containers))
	for _, c := range loaded.Containers {
		ct, err := engine.CreateContainer(c.UserID, c.AllocatedUsd, c.Tier)
		if err != nil {
			log.Fatalf("container create failed for %s: %v", c.UserID, err)
		}
		ct.ConnectBroker(exchange.Name())
		containers = append(containers, ct)
	}

	mgr := restart.NewManager(loaded.SnapshotPath, loaded.Reconcile.DustThresholdUsd)
	if err := runRestartReconciliation(ctx, mgr, book, exchange, journal); err != nil {
		log.Fatalf("restart reconciliation failed: %v", err)
	}

	tracker := resolve.NewTracker(loaded.Resolve.MaxPriceFailures)
	resolver := resolve.NewResolver(exchange, tracker)
	watchdog := reconcile.NewWatchdog(loaded.Reconcile, book, engine, journal)

	for _, ct := range containers {
		runDustRecovery(ctx, loaded.Resolve, ct, engine, exchange, book, mgr, resolver, tracker)
	}

	brokerTimeout := time.Duration(loaded.Worker.BrokerTimeoutMs) * time.Millisecond
	coord := executor.NewCoordinator(book, engine, exchange, journal, brokerTimeout)

	stopCombine := executor.StopCombineOr
	if loaded.Worker.StopCombineAnd {
		stopCombine = executor.StopCombineAnd
	}
	stopRule := executor.NewStopRule(stopCombine, loaded.Worker.StopMaxLossPercent)

	workerCfg := worker.Config{
		StopCheckInterval: time.Duration(loaded.Worker.StopCheckSeconds) * time.Second,
	}
	queueSize := loaded.Worker.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	for _, ct := range containers {
		queue := bus.NewQueue(queueSize)
		w := worker.New(workerCfg, ct, exchange, book, coord, queue, mgr, resolver, stopRule)
		go func(ct *capital.Container) {
			if err := w.Run(ctx); err != nil {
				logs.Errorf("worker stopped, container: %s, err: %+v", ct.ID, err)
			}
		}(ct)
		go watchdog.Run(ctx, exchange, ct.ID)
	}

	logs.Infof("trading bot started, containers: %d, broker: %s", len(containers), exchange.Name())
	<-sys.Shutdown()
	logs.Info("shutting down")
	cancel()
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return defaultLoaded()
	}
	return ops.Load(path)
}

func defaultLoaded() (ops.Loaded, error) {
	return ops.Loaded{
		Containers: []ops.ResolvedContainer{
			{
				UserID:       "default",
				AllocatedUsd: decimal.NewFromInt(10_000),
				Tier:         capital.TierStandard,
			},
		},
		TotalCapital: decimal.NewFromInt(10_000),
		SnapshotPath: "data/system_state.json",
		Paper: ops.PaperConfig{
			UsdBalance: decimal.NewFromInt(10_000),
			Prices: map[string]decimal.Decimal{
				"BTC-USD": decimal.NewFromInt(50_000),
				"ETH-USD": decimal.NewFromInt(3_000),
			},
		},
	}, nil
}

func buildPaperBroker(cfg ops.PaperConfig) *broker.PaperBroker {
	usd := cfg.UsdBalance
	if usd.IsZero() {
		usd = decimal.NewFromInt(10_000)
	}
	pb := broker.NewPaperBroker("paper", usd)
	for symbol, price := range cfg.Prices {
		pb.SetPrice(symbol, price)
	}
	return pb
}

// runDustRecovery suspends a container carrying positions, converts its
// sub-threshold dust to USD and resumes it. A failed run leaves the
// container suspended for operator attention.
func runDustRecovery(ctx context.Context, cfg ops.ResolveConfig, ct *capital.Container, engine *capital.Engine, exchange adapter.Broker, book *ledger.Ledger, mgr *restart.Manager, resolver *resolve.Resolver, tracker *resolve.Tracker) {
	positions := book.Positions(ct.ID)
	if len(positions) == 0 {
		return
	}

	prices := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		price, err := resolver.Resolve(ctx, p.Symbol)
		if err != nil {
			logs.Warnf("dust recovery price unavailable, symbol: %s, err: %+v", p.Symbol, err)
			continue
		}
		prices[p.Symbol] = price
	}

	recovery := worker.NewRecovery(ct, mgr, book, exchange)
	if err := recovery.Begin(ctx); err != nil {
		logs.Errorf("dust recovery begin failed, container: %s, err: %+v", ct.ID, err)
	}
	pipeline := resolve.NewDustPipeline(resolve.DustConfig{
		DustThresholdUsd: cfg.DustThresholdUsd,
		DryRun:           cfg.DryRun,
	}, exchange, book, tracker, engine, recovery)
	if _, err := pipeline.Run(ctx, ct.ID, prices); err != nil {
		logs.Errorf("dust recovery failed, container stays suspended: %s, err: %+v", ct.ID, err)
	}
}

// runRestartReconciliation loads the snapshot, rebuilds the ledger from
// it and reconciles against fresh exchange truth before any worker may
// accept entries.
func runRestartReconciliation(ctx context.Context, mgr *restart.Manager, book *ledger.Ledger, exchange adapter.Broker, journal *store.Store) error {
	snap, restarted, err := mgr.LoadState()
	if err != nil {
		return err
	}

	if restarted {
		for _, p := range snap.Positions {
			if _, err := book.Open(p.Container, p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.StopPrice); err != nil {
				logs.Warnf("snapshot position skipped, symbol: %s, err: %+v", p.Symbol, err)
				continue
			}
			if p.Remaining.LessThan(decimal.NewFromInt(1)) {
				_ = book.Adjust(p.Container, p.Symbol, p.Remaining)
			}
		}
		for _, o := range snap.PendingOrders {
			_ = book.AddPending(o)
		}
	}

	positions, err := exchange.GetPositions(ctx)
	if err != nil {
		return err
	}
	balances, err := exchange.GetBalances(ctx)
	if err != nil {
		return err
	}
	openOrders, err := exchange.GetOpenOrders(ctx)
	if err != nil {
		return err
	}

	report := mgr.ReconcileWithExchange(positions, balances, openOrders)
	logs.Infof("restart reconciliation, status: %s, discrepancies: %d, orphaned orders: %d",
		report.Status, len(report.Discrepancies), len(report.OrphanedOrders))
	if journal != nil {
		if err := journal.JournalReconcile(ctx, "restart", report); err != nil {
			logs.Warnf("journal reconcile failed, err: %+v", err)
		}
	}
	return nil
}
