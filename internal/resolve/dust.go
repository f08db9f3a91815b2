package resolve

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/adapter"
	"main/internal/adapter/enum"
	"main/internal/capital"
	"main/internal/ledger"
	"main/pkg/exception"
)

// RecoveryController re-enables trading after a successful recovery.
type RecoveryController interface {
	ResumeTrading(ctx context.Context) error
}

// DustConfig tunes the dust-to-USD pipeline.
type DustConfig struct {
	DustThresholdUsd decimal.Decimal
	DryRun           bool
}

// DustResult reports one pipeline run.
type DustResult struct {
	Identified []ledger.Position
	Converted  []string
	Failed     []string
	UsdBefore  decimal.Decimal
	UsdAfter   decimal.Decimal
	Resumed    bool
}

// DustPipeline recovers value stuck in sub-threshold positions in four
// phases: identify, convert, verify, resume.
type DustPipeline struct {
	cfg      DustConfig
	broker   adapter.Broker
	book     *ledger.Ledger
	tracker  *Tracker
	capital  *capital.Engine
	recovery RecoveryController
}

func NewDustPipeline(cfg DustConfig, broker adapter.Broker, book *ledger.Ledger, tracker *Tracker, engine *capital.Engine, recovery RecoveryController) *DustPipeline {
	if cfg.DustThresholdUsd.IsZero() {
		cfg.DustThresholdUsd = decimal.NewFromInt(5)
	}
	return &DustPipeline{
		cfg:      cfg,
		broker:   broker,
		book:     book,
		tracker:  tracker,
		capital:  engine,
		recovery: recovery,
	}
}

// Run executes the pipeline for one container. If every conversion
// fails the pipeline reports failure and trading is not resumed; a
// partial failure still verifies whatever succeeded.
func (p *DustPipeline) Run(ctx context.Context, container string, prices map[string]decimal.Decimal) (DustResult, error) {
	result := DustResult{}

	result.Identified = p.identify(container, prices)
	if len(result.Identified) == 0 {
		logs.Infof("dust pipeline: nothing to convert, container: %s", container)
		result.Resumed = true
		return result, p.resume(ctx)
	}

	usdBefore, err := p.usdBalance(ctx)
	if err != nil && !p.cfg.DryRun {
		return result, err
	}
	result.UsdBefore = usdBefore

	result.Converted, result.Failed = p.convert(ctx, result.Identified)
	if len(result.Converted) == 0 {
		logs.Errorf("dust pipeline: all conversions failed, container: %s", container)
		return result, exception.ErrResolveNothingRecovered
	}

	if !p.cfg.DryRun {
		usdAfter, err := p.usdBalance(ctx)
		if err != nil {
			return result, err
		}
		result.UsdAfter = usdAfter
		if !usdAfter.GreaterThan(usdBefore) {
			return result, exception.ErrResolveVerifyFailed
		}
	}

	if err := p.resume(ctx); err != nil {
		return result, err
	}
	result.Resumed = true
	logs.Infof("dust pipeline complete, container: %s, converted: %d, failed: %d",
		container, len(result.Converted), len(result.Failed))
	return result, nil
}

// identify scans positions below the USD dust threshold. Symbols
// already excluded from accounting are skipped.
func (p *DustPipeline) identify(container string, prices map[string]decimal.Decimal) []ledger.Position {
	out := make([]ledger.Position, 0)
	for _, pos := range p.book.Positions(container) {
		if p.tracker.Excluded(pos.Symbol) {
			continue
		}
		price, ok := prices[pos.Symbol]
		if !ok {
			continue
		}
		value := pos.RemainingQuantity().Mul(price)
		if value.LessThan(p.cfg.DustThresholdUsd) {
			out = append(out, pos)
		}
	}
	return out
}

func (p *DustPipeline) convert(ctx context.Context, dust []ledger.Position) (converted, failed []string) {
	for _, pos := range dust {
		if p.cfg.DryRun {
			logs.Infof("dust dry-run: would market-sell %s %s", pos.RemainingQuantity(), pos.Symbol)
			converted = append(converted, pos.Symbol)
			continue
		}

		_, err := p.broker.PlaceOrder(ctx, adapter.OrderRequest{
			Symbol: pos.Symbol,
			Side:   enum.OrderSideSell,
			Kind:   enum.OrderKindMarket,
			Size:   pos.RemainingQuantity(),
		})
		if err != nil {
			logs.Warnf("dust conversion failed, symbol: %s, err: %+v", pos.Symbol, err)
			failed = append(failed, pos.Symbol)
			if p.tracker.State(pos.Symbol) == AssetStateDelisted {
				p.tracker.MarkLiquidationFailed(pos.Symbol)
			}
			continue
		}
		if p.book.Remove(pos.Container, pos.Symbol) {
			if ct, ok := p.capital.Container(pos.Container); ok {
				ct.ReleaseCapital(pos.RemainingQuoteSize(), true)
			}
		}
		converted = append(converted, pos.Symbol)
	}
	return converted, failed
}

func (p *DustPipeline) usdBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := p.broker.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for asset, qty := range balances {
		switch strings.ToUpper(asset) {
		case "USD", "USDT", "USDC":
			total = total.Add(qty)
		}
	}
	return total, nil
}

func (p *DustPipeline) resume(ctx context.Context) error {
	if p.recovery == nil {
		return nil
	}
	return p.recovery.ResumeTrading(ctx)
}
