package resolve

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/adapter"
	"main/pkg/exception"
)

// bridge majors used for USD-bridge estimates.
var bridgeAssets = []string{"BTC", "ETH"}

// Resolver answers price questions a broker cannot answer directly:
// alternate ticker spellings first, then a USD bridge through a major
// pair. Exhausted routes count toward delisting.
type Resolver struct {
	broker  adapter.Broker
	tracker *Tracker
}

func NewResolver(broker adapter.Broker, tracker *Tracker) *Resolver {
	return &Resolver{broker: broker, tracker: tracker}
}

// Resolve returns a USD price for the symbol or an error after every
// route failed. Failures feed the tracker's delisting counter.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if r.tracker.State(symbol).Excluded() {
		return decimal.Zero, exception.ErrResolveDelisted
	}

	for _, candidate := range spellings(symbol) {
		price, err := r.broker.GetCurrentPrice(ctx, candidate)
		if err == nil && price.GreaterThan(decimal.Zero) {
			r.tracker.MarkPriceSuccess(symbol)
			return price, nil
		}
	}

	if price, ok := r.bridgeEstimate(ctx, symbol); ok {
		r.tracker.MarkPriceSuccess(symbol)
		return price, nil
	}

	state := r.tracker.MarkPriceFailure(symbol)
	if state == AssetStateDelisted {
		return decimal.Zero, exception.ErrResolveDelisted
	}
	logs.Warnf("price resolution failed, symbol: %s, state: %s", symbol, state)
	return decimal.Zero, exception.ErrResolveAllRoutesFailed
}

// bridgeEstimate prices symbol through symbol/major × major/USD.
func (r *Resolver) bridgeEstimate(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	base := strings.ToUpper(strings.SplitN(symbol, "-", 2)[0])
	for _, major := range bridgeAssets {
		if base == major {
			continue
		}
		cross, err := r.broker.GetCurrentPrice(ctx, base+"-"+major)
		if err != nil || cross.LessThanOrEqual(decimal.Zero) {
			continue
		}
		majorUsd, err := r.broker.GetCurrentPrice(ctx, major+"-USD")
		if err != nil || majorUsd.LessThanOrEqual(decimal.Zero) {
			continue
		}
		price := cross.Mul(majorUsd)
		logs.Infof("usd bridge estimate, symbol: %s, via: %s, price: %s", symbol, major, price)
		return price, true
	}
	return decimal.Zero, false
}

func spellings(symbol string) []string {
	base := strings.ToUpper(strings.SplitN(symbol, "-", 2)[0])
	out := []string{symbol}
	for _, alt := range []string{base + "-USD", base + "-USDT", base + "USDT", base} {
		if alt != symbol {
			out = append(out, alt)
		}
	}
	return out
}
