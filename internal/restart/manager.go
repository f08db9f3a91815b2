package restart

import (
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/adapter"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/reconcile"
	"main/pkg/exception"
)

// Manager persists and reloads the system snapshot so a restarted
// process reconciles against exchange truth before trading resumes,
// and rejects replay of the last processed signal.
type Manager struct {
	mu   sync.Mutex
	path string

	loaded          *Snapshot
	restartDetected bool
	reconciled      bool
	lastSignalID    string

	dustThresholdUsd decimal.Decimal
}

func NewManager(path string, dustThresholdUsd decimal.Decimal) *Manager {
	if dustThresholdUsd.IsZero() {
		dustThresholdUsd = decimal.NewFromInt(1)
	}
	return &Manager{path: path, dustThresholdUsd: dustThresholdUsd}
}

// SaveState atomically overwrites the snapshot file.
func (m *Manager) SaveState(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := writeSnapshot(m.path, snap); err != nil {
		return err
	}
	m.lastSignalID = snap.LastSignalID
	return nil
}

// LoadState reads the snapshot at process start. Presence of the file
// implies a restart; absence implies a clean start.
func (m *Manager) LoadState() (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := readSnapshot(m.path)
	if os.IsNotExist(err) {
		m.restartDetected = false
		logs.Info("no snapshot found, clean start")
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	m.loaded = &snap
	m.restartDetected = true
	m.reconciled = false
	m.lastSignalID = snap.LastSignalID
	logs.Warnf("snapshot found, restart detected, taken: %s, positions: %d, pending orders: %d",
		time.Unix(0, snap.Timestamp).UTC().Format(time.RFC3339), len(snap.Positions), len(snap.PendingOrders))
	return snap, true, nil
}

// ReconcileWithExchange compares the loaded snapshot, not live state,
// against freshly fetched exchange truth. It marks reconciliation
// complete so trading may start.
func (m *Manager) ReconcileWithExchange(exchangePositions []adapter.ExchangePosition, exchangeBalances map[string]decimal.Decimal, exchangeOpenOrders []adapter.OpenOrder) reconcile.Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.restartDetected || m.loaded == nil {
		m.reconciled = true
		return reconcile.Report{Status: reconcile.StatusCleanStart}
	}

	discrepancies := m.diffPositions(exchangeBalances, exchangePositions)
	orphaned := m.orphanedOrders(exchangeOpenOrders)

	report := reconcile.NewReport(discrepancies, orphaned, nil)
	m.reconciled = true
	logs.Infof("restart reconciliation complete, status: %s, discrepancies: %d, orphaned orders: %d",
		report.Status, len(report.Discrepancies), len(report.OrphanedOrders))
	return report
}

// PreventDuplicate is the idempotency guard: a signal id equal to the
// last one recorded before the crash is rejected.
func (m *Manager) PreventDuplicate(signalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if signalID != "" && signalID == m.lastSignalID {
		obs.DuplicateSignal()
		logs.Warnf("duplicate signal rejected, id: %s", signalID)
		return false
	}
	return true
}

// LastSignalID reports the most recently recorded signal id.
func (m *Manager) LastSignalID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSignalID
}

// AssertReconciliationComplete errors until a reconcile ran in the
// current process. Callers must check it before enabling new entries.
func (m *Manager) AssertReconciliationComplete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.reconciled {
		return exception.ErrRestartNotReconciled
	}
	return nil
}

func (m *Manager) diffPositions(exchangeBalances map[string]decimal.Decimal, exchangePositions []adapter.ExchangePosition) []reconcile.Discrepancy {
	exchange := make(map[string]decimal.Decimal, len(exchangeBalances))
	for asset, qty := range exchangeBalances {
		exchange[reconcile.BaseAsset(asset)] = qty
	}
	usdValues := make(map[string]decimal.Decimal, len(exchangePositions))
	for _, p := range exchangePositions {
		asset := reconcile.BaseAsset(p.Symbol)
		if _, ok := exchange[asset]; !ok {
			exchange[asset] = p.Quantity
		}
		usdValues[asset] = p.UsdValue
	}

	internal := make(map[string]internalEntry, len(m.loaded.Positions))
	for _, p := range m.loaded.Positions {
		asset := reconcile.BaseAsset(p.Symbol)
		e := internal[asset]
		e.container = p.Container
		e.qty = e.qty.Add(p.RemainingQuantity())
		internal[asset] = e
	}

	now := time.Now().UTC().UnixNano()
	out := make([]reconcile.Discrepancy, 0)

	for asset, entry := range internal {
		have := exchange[asset]
		if have.GreaterThan(decimal.Zero) {
			continue
		}
		d := reconcile.Discrepancy{
			Container:       entry.container,
			Symbol:          asset,
			Type:            reconcile.PhantomPosition,
			ExchangeBalance: decimal.Zero,
			InternalBalance: entry.qty,
			UsdValue:        usdValues[asset],
			Recommended:     reconcile.ActionAdjust,
			DetectedAt:      now,
		}
		logs.Warnf("restart discrepancy, symbol: %s, type: %s", asset, d.Type)
		out = append(out, d)
	}

	for asset, qty := range exchange {
		if qty.LessThanOrEqual(decimal.Zero) || reconcile.IsQuoteAsset(asset) {
			continue
		}
		if _, ok := internal[asset]; ok {
			continue
		}
		usd := usdValues[asset]
		if !usd.IsZero() && usd.LessThan(m.dustThresholdUsd) {
			continue
		}
		d := reconcile.Discrepancy{
			Symbol:          asset,
			Type:            reconcile.OrphanedAsset,
			ExchangeBalance: qty,
			InternalBalance: decimal.Zero,
			UsdValue:        usd,
			Recommended:     reconcile.ActionAlertOnly,
			DetectedAt:      now,
		}
		logs.Warnf("restart discrepancy, symbol: %s, type: %s", asset, d.Type)
		out = append(out, d)
	}

	return out
}

func (m *Manager) orphanedOrders(exchangeOpenOrders []adapter.OpenOrder) []ledger.PendingOrder {
	open := make(map[string]struct{}, len(exchangeOpenOrders))
	for _, o := range exchangeOpenOrders {
		open[o.OrderID] = struct{}{}
	}

	out := make([]ledger.PendingOrder, 0)
	for _, o := range m.loaded.PendingOrders {
		if o.Status.IsTerminal() {
			continue
		}
		if _, ok := open[o.OrderID]; !ok {
			logs.Warnf("orphaned order, id: %s, symbol: %s", o.OrderID, o.Symbol)
			out = append(out, o)
		}
	}
	return out
}

type internalEntry struct {
	container string
	qty       decimal.Decimal
}
