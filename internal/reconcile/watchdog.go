package reconcile

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/internal/capital"
	"main/internal/ledger"
	"main/internal/obs"
)

// ReportJournal persists reconciliation reports for the audit trail.
type ReportJournal interface {
	JournalReconcile(ctx context.Context, container string, report Report) error
}

// Config tunes the watchdog. Auto-actions default off: the watchdog
// must never silently move money unless explicitly enabled.
type Config struct {
	Interval              time.Duration
	DustThresholdUsd      decimal.Decimal
	AdoptThresholdUsd     decimal.Decimal
	LiquidateThresholdUsd decimal.Decimal
	EnableAutoActions     bool
	KnownAirdropTickers   []string
	Retention             time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Minute
	}
	if cfg.DustThresholdUsd.IsZero() {
		cfg.DustThresholdUsd = decimal.NewFromInt(1)
	}
	if cfg.AdoptThresholdUsd.IsZero() {
		cfg.AdoptThresholdUsd = decimal.NewFromInt(10)
	}
	if cfg.LiquidateThresholdUsd.IsZero() {
		cfg.LiquidateThresholdUsd = decimal.NewFromFloat(0.5)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return cfg
}

// Watchdog periodically diffs exchange truth against the ledger and
// drives corrective action through the same per-symbol locks the
// coordinator uses.
type Watchdog struct {
	cfg      Config
	book     *ledger.Ledger
	capital  *capital.Engine
	journal  ReportJournal
	airdrops map[string]struct{}

	mu      sync.Mutex
	history []Discrepancy
}

func NewWatchdog(cfg Config, book *ledger.Ledger, engine *capital.Engine, journal ReportJournal) *Watchdog {
	cfg = cfg.withDefaults()
	airdrops := make(map[string]struct{}, len(cfg.KnownAirdropTickers))
	for _, t := range cfg.KnownAirdropTickers {
		airdrops[strings.ToUpper(t)] = struct{}{}
	}
	return &Watchdog{cfg: cfg, book: book, capital: engine, journal: journal, airdrops: airdrops}
}

// Run reconciles on a fixed interval until shutdown.
func (w *Watchdog) Run(ctx context.Context, broker adapter.Broker, containerID string) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ReconcileNow(ctx, broker, containerID); err != nil {
				logs.Errorf("reconcile pass failed, container: %s, err: %+v", containerID, err)
			}
		}
	}
}

// ReconcileNow fetches fresh exchange truth and reconciles on demand.
// Fetch failures degrade to an error without touching the ledger.
func (w *Watchdog) ReconcileNow(ctx context.Context, broker adapter.Broker, containerID string) (Report, error) {
	balances, err := broker.GetBalances(ctx)
	if err != nil {
		return Report{}, err
	}
	internal := w.book.Positions(containerID)

	prices := make(map[string]decimal.Decimal, len(balances))
	warnings := make([]string, 0)
	for asset := range balances {
		price, err := broker.GetCurrentPrice(ctx, asset)
		if err != nil {
			warnings = append(warnings, "price unavailable: "+asset)
			continue
		}
		prices[asset] = price
	}
	for _, p := range internal {
		asset := BaseAsset(p.Symbol)
		if _, ok := prices[asset]; ok {
			continue
		}
		if price, err := broker.GetCurrentPrice(ctx, asset); err == nil {
			prices[asset] = price
		}
	}

	discrepancies := w.Reconcile(ctx, balances, internal, prices, containerID, broker)
	report := NewReport(discrepancies, nil, warnings)
	if w.journal != nil {
		if err := w.journal.JournalReconcile(ctx, containerID, report); err != nil {
			logs.Warnf("journal reconcile failed, container: %s, err: %+v", containerID, err)
		}
	}
	return report, nil
}

// Reconcile diffs exchange balances against internal positions and
// classifies every mismatch above the dust threshold. Classification is
// pure; corrective actions run only when auto-actions are enabled.
func (w *Watchdog) Reconcile(ctx context.Context, exchangeBalances map[string]decimal.Decimal, internalPositions []ledger.Position, prices map[string]decimal.Decimal, containerID string, broker adapter.Broker) []Discrepancy {
	internal := make(map[string]decimal.Decimal, len(internalPositions))
	symbolByAsset := make(map[string]string, len(internalPositions))
	for _, p := range internalPositions {
		asset := BaseAsset(p.Symbol)
		internal[asset] = internal[asset].Add(p.RemainingQuantity())
		symbolByAsset[asset] = p.Symbol
	}

	assets := make([]string, 0, len(exchangeBalances)+len(internal))
	seen := make(map[string]struct{})
	for asset := range exchangeBalances {
		assets = append(assets, asset)
		seen[asset] = struct{}{}
	}
	for asset := range internal {
		if _, ok := seen[asset]; !ok {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)

	now := time.Now().UTC().UnixNano()
	out := make([]Discrepancy, 0)
	for _, asset := range assets {
		if IsQuoteAsset(asset) {
			continue
		}
		exchange := exchangeBalances[asset]
		local := internal[asset]
		delta := exchange.Sub(local).Abs()
		usd := delta.Mul(prices[asset])
		if usd.LessThan(w.cfg.DustThresholdUsd) {
			continue
		}

		kind, action := w.classify(asset, exchange, local, usd)
		if !w.cfg.EnableAutoActions {
			action = ActionAlertOnly
		}
		d := Discrepancy{
			Container:       containerID,
			Symbol:          asset,
			Type:            kind,
			ExchangeBalance: exchange,
			InternalBalance: local,
			UsdValue:        usd,
			Recommended:     action,
			DetectedAt:      now,
		}
		logs.Warnf("discrepancy, container: %s, symbol: %s, type: %s, exchange: %s, internal: %s, usd: %s, action: %s",
			containerID, asset, kind, exchange, local, usd, action)
		obs.DiscrepancyFound(string(kind), string(action))
		out = append(out, d)

		if w.cfg.EnableAutoActions {
			w.correct(ctx, d, symbolByAsset[asset], prices[asset], broker)
		}
	}

	w.retain(out)
	return out
}

// classify applies the priority-ordered rules.
func (w *Watchdog) classify(asset string, exchange, internal, usd decimal.Decimal) (DiscrepancyType, Action) {
	switch {
	case exchange.GreaterThan(decimal.Zero) && internal.IsZero():
		if _, ok := w.airdrops[strings.ToUpper(asset)]; ok {
			return AirdropDetected, ActionAdopt
		}
		if usd.GreaterThanOrEqual(w.cfg.AdoptThresholdUsd) {
			return OrphanedAsset, ActionAdopt
		}
		if usd.GreaterThanOrEqual(w.cfg.LiquidateThresholdUsd) {
			return OrphanedAsset, ActionLiquidate
		}
		return OrphanedAsset, ActionAlertOnly

	case internal.GreaterThan(decimal.Zero) && exchange.IsZero():
		return PhantomPosition, ActionAdjust

	default:
		larger := decimal.Max(exchange, internal)
		if larger.IsZero() {
			return SizeMismatch, ActionAlertOnly
		}
		relative := exchange.Sub(internal).Abs().Div(larger)
		if relative.GreaterThan(decimal.NewFromFloat(0.1)) {
			return PartialFillUntracked, ActionAdjust
		}
		return SizeMismatch, ActionAdjust
	}
}

// correct executes the recommended action under the per-symbol close
// lock. Contended locks skip the correction; the next pass retries.
// Every ledger mutation carries its matching capital-engine call so
// container accounting stays aligned with the book.
func (w *Watchdog) correct(ctx context.Context, d Discrepancy, symbol string, price decimal.Decimal, broker adapter.Broker) {
	if symbol == "" {
		symbol = d.Symbol
	}
	ct, found := w.capital.Container(d.Container)
	if !found {
		logs.Warnf("correction skipped, container not found: %s", d.Container)
		return
	}
	if !w.book.AcquireCloseLock(d.Container, symbol) {
		logs.Infof("correction skipped, exit in flight, container: %s, symbol: %s", d.Container, symbol)
		return
	}
	defer w.book.ReleaseCloseLock(d.Container, symbol)

	switch d.Recommended {
	case ActionAdopt:
		if price.IsZero() {
			logs.Warnf("adopt skipped, no price, symbol: %s", d.Symbol)
			return
		}
		sizeUsd := d.ExchangeBalance.Mul(price)
		if err := ct.AllocateCapital(sizeUsd); err != nil {
			logs.Warnf("adopt skipped, no capital, container: %s, symbol: %s, size: %s", d.Container, symbol, sizeUsd)
			return
		}
		if _, err := w.book.Open(d.Container, symbol, enum.PositionSideLong, d.ExchangeBalance, price, decimal.Zero); err != nil {
			ct.ReleaseCapital(sizeUsd, true)
			logs.Warnf("adopt failed, symbol: %s, err: %+v", symbol, err)
			return
		}
		logs.Infof("adopted orphaned asset, container: %s, symbol: %s, qty: %s", d.Container, symbol, d.ExchangeBalance)

	case ActionLiquidate:
		_, err := broker.PlaceOrder(ctx, adapter.OrderRequest{
			Symbol: symbol,
			Side:   enum.OrderSideSell,
			Kind:   enum.OrderKindMarket,
			Size:   d.ExchangeBalance,
		})
		if err != nil {
			logs.Warnf("liquidation failed, symbol: %s, err: %+v", symbol, err)
			return
		}
		logs.Infof("liquidated orphaned asset, container: %s, symbol: %s", d.Container, symbol)

	case ActionAdjust:
		pos, ok := w.book.Get(d.Container, symbol)
		if !ok {
			return
		}
		if d.Type == PhantomPosition {
			if err := w.book.Adjust(d.Container, symbol, decimal.Zero); err != nil {
				logs.Warnf("phantom adjust failed, symbol: %s, err: %+v", symbol, err)
				return
			}
			ct.ReleaseCapital(pos.RemainingQuoteSize(), true)
			return
		}
		if pos.Quantity.IsZero() {
			return
		}
		target := d.ExchangeBalance.Div(pos.Quantity)
		delta := pos.Remaining.Sub(target)
		if delta.LessThan(decimal.Zero) {
			if err := ct.AllocateCapital(pos.QuoteSize.Mul(delta.Neg())); err != nil {
				logs.Warnf("size adjust skipped, no capital, symbol: %s", symbol)
				return
			}
		}
		if err := w.book.Adjust(d.Container, symbol, target); err != nil {
			if delta.LessThan(decimal.Zero) {
				ct.ReleaseCapital(pos.QuoteSize.Mul(delta.Neg()), false)
			}
			logs.Warnf("size adjust failed, symbol: %s, err: %+v", symbol, err)
			return
		}
		if delta.GreaterThan(decimal.Zero) {
			_, still := w.book.Get(d.Container, symbol)
			ct.ReleaseCapital(pos.QuoteSize.Mul(delta), !still)
		}
	}
}

func (w *Watchdog) retain(found []Discrepancy) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-w.cfg.Retention).UTC().UnixNano()
	kept := make([]Discrepancy, 0, len(w.history)+len(found))
	for _, d := range w.history {
		if d.DetectedAt >= cutoff {
			kept = append(kept, d)
		}
	}
	w.history = append(kept, found...)
}

// History returns discrepancies inside the retention window.
func (w *Watchdog) History() []Discrepancy {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Discrepancy, len(w.history))
	copy(out, w.history)
	return out
}

// BaseAsset strips the quote suffix from a trading pair symbol.
func BaseAsset(symbol string) string {
	for _, quote := range []string{"-USDT", "-USD", "USDT", "USD"} {
		if cut, ok := strings.CutSuffix(symbol, quote); ok && cut != "" {
			return cut
		}
	}
	return symbol
}

// IsQuoteAsset reports whether the asset is a quote currency that never
// counts as a discrepancy on its own.
func IsQuoteAsset(asset string) bool {
	switch strings.ToUpper(asset) {
	case "USD", "USDT", "USDC":
		return true
	default:
		return false
	}
}
