package capital

import "github.com/shopspring/decimal"

// Tier selects a fixed quota table. Strategy signals can never push a
// container past its tier limits.
type Tier uint8

const (
	_tier_beg Tier = iota
	TierStarter
	TierStandard
	TierPremium
	_tier_end
)

func (t Tier) IsAvailable() bool {
	return t > _tier_beg && t < _tier_end
}

func (t Tier) String() string {
	switch t {
	case TierStarter:
		return "starter"
	case TierStandard:
		return "standard"
	case TierPremium:
		return "premium"
	default:
		return "unknown"
	}
}

// Quota is the fixed limit table for one tier.
type Quota struct {
	MaxPositions       int
	MaxPositionSizeUsd decimal.Decimal
	MaxDailyLossUsd    decimal.Decimal
	APICallsPerDay     int
}

func (t Tier) Quota() Quota {
	switch t {
	case TierStarter:
		return Quota{
			MaxPositions:       3,
			MaxPositionSizeUsd: decimal.NewFromInt(500),
			MaxDailyLossUsd:    decimal.NewFromInt(50),
			APICallsPerDay:     2_000,
		}
	case TierStandard:
		return Quota{
			MaxPositions:       8,
			MaxPositionSizeUsd: decimal.NewFromInt(5_000),
			MaxDailyLossUsd:    decimal.NewFromInt(500),
			APICallsPerDay:     20_000,
		}
	case TierPremium:
		return Quota{
			MaxPositions:       20,
			MaxPositionSizeUsd: decimal.NewFromInt(50_000),
			MaxDailyLossUsd:    decimal.NewFromInt(5_000),
			APICallsPerDay:     200_000,
		}
	default:
		return Quota{}
	}
}
