package executor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"main/internal/adapter/enum"
	"main/internal/ledger"
)

func stopTestPosition(side enum.PositionSide, entry, stop int64) ledger.Position {
	return ledger.Position{
		Container:  "ct-a",
		Symbol:     "BTC-USD",
		Side:       side,
		Quantity:   decimal.NewFromFloat(0.01),
		EntryPrice: decimal.NewFromInt(entry),
		StopPrice:  decimal.NewFromInt(stop),
		Remaining:  decimal.NewFromInt(1),
	}
}

func TestStopRuleOrTriggersOnEitherCondition(t *testing.T) {
	rule := NewStopRule(StopCombineOr, decimal.NewFromInt(5))
	pos := stopTestPosition(enum.PositionSideLong, 50_000, 48_000)

	// Price above stop, loss below threshold: no trigger.
	assert.False(t, rule.Triggered(pos, decimal.NewFromInt(49_000)))

	// Stop price crossed.
	assert.True(t, rule.Triggered(pos, decimal.NewFromInt(47_500)))

	// Loss threshold crossed without touching the stop price.
	far := stopTestPosition(enum.PositionSideLong, 50_000, 40_000)
	assert.True(t, rule.Triggered(far, decimal.NewFromInt(47_000)))
}

func TestStopRuleAndRequiresBothConditions(t *testing.T) {
	rule := NewStopRule(StopCombineAnd, decimal.NewFromInt(5))
	pos := stopTestPosition(enum.PositionSideLong, 50_000, 48_000)

	// Neither condition holds: price above stop, loss only 3%.
	assert.False(t, rule.Triggered(pos, decimal.NewFromInt(48_500)))

	// Stop crossed but loss only 4.2%: AND demands both.
	assert.False(t, rule.Triggered(pos, decimal.NewFromInt(47_900)))

	// Both: price 47000 is below stop and -6%.
	assert.True(t, rule.Triggered(pos, decimal.NewFromInt(47_000)))
}

func TestStopRuleShortSide(t *testing.T) {
	rule := NewStopRule(StopCombineOr, decimal.NewFromInt(5))
	pos := stopTestPosition(enum.PositionSideShort, 50_000, 52_000)

	assert.False(t, rule.Triggered(pos, decimal.NewFromInt(50_500)))
	assert.True(t, rule.Triggered(pos, decimal.NewFromInt(52_100)), "short stops above entry")
	assert.True(t, rule.Triggered(pos, decimal.NewFromInt(53_000)))
}

func TestStopRuleWithoutStopPrice(t *testing.T) {
	rule := NewStopRule(StopCombineOr, decimal.NewFromInt(5))
	pos := stopTestPosition(enum.PositionSideLong, 50_000, 0)

	assert.False(t, rule.Triggered(pos, decimal.NewFromInt(49_000)))
	assert.True(t, rule.Triggered(pos, decimal.NewFromInt(47_000)), "loss condition alone still applies")
}
