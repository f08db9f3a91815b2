package executor

import (
	"github.com/shopspring/decimal"

	"main/internal/adapter/enum"
	"main/internal/ledger"
)

// StopCombine selects how the stop conditions combine.
type StopCombine uint8

const (
	// StopCombineOr triggers when any condition holds. Default.
	StopCombineOr StopCombine = iota
	// StopCombineAnd triggers only when all conditions hold.
	StopCombineAnd
)

// StopRule is the stop-loss trigger as an explicit predicate. Two
// threshold conditions feed it: the stop price crossing and the
// unrealized loss percentage.
type StopRule struct {
	Combine        StopCombine
	MaxLossPct     decimal.Decimal // e.g. 5 means -5% triggers
	disableLossPct bool
}

func NewStopRule(combine StopCombine, maxLossPct decimal.Decimal) StopRule {
	return StopRule{
		Combine:        combine,
		MaxLossPct:     maxLossPct,
		disableLossPct: maxLossPct.LessThanOrEqual(decimal.Zero),
	}
}

// Triggered evaluates the predicate for a position at the given price.
func (r StopRule) Triggered(pos ledger.Position, price decimal.Decimal) bool {
	priceHit := r.priceConditionHit(pos, price)
	lossHit := r.lossConditionHit(pos, price)

	if r.Combine == StopCombineAnd {
		if r.disableLossPct || pos.StopPrice.IsZero() {
			// With a condition unset, AND degenerates to the remaining one.
			return priceHit || (!r.disableLossPct && lossHit)
		}
		return priceHit && lossHit
	}
	return priceHit || lossHit
}

func (r StopRule) priceConditionHit(pos ledger.Position, price decimal.Decimal) bool {
	if pos.StopPrice.IsZero() || price.IsZero() {
		return false
	}
	if pos.Side == enum.PositionSideShort {
		return price.GreaterThanOrEqual(pos.StopPrice)
	}
	return price.LessThanOrEqual(pos.StopPrice)
}

func (r StopRule) lossConditionHit(pos ledger.Position, price decimal.Decimal) bool {
	if r.disableLossPct || pos.EntryPrice.IsZero() || price.IsZero() {
		return false
	}
	change := price.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(decimal.NewFromInt(100))
	if pos.Side == enum.PositionSideShort {
		change = change.Neg()
	}
	return change.LessThanOrEqual(r.MaxLossPct.Neg())
}
