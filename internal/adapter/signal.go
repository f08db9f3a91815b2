package adapter

import (
	"github.com/shopspring/decimal"

	"main/internal/adapter/enum"
)

// Signal is the strategy engine boundary. SignalID is the idempotency
// key checked against the restart snapshot before acting.
type Signal struct {
	SignalID  string
	Container string
	Symbol    string
	Side      enum.OrderSide
	SizeUsd   decimal.Decimal
	StopLoss  decimal.Decimal
	Reason    string
}
