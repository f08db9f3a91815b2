package reconcile

import (
	"github.com/shopspring/decimal"

	"main/internal/ledger"
)

// DiscrepancyType classifies a ledger-vs-exchange mismatch.
type DiscrepancyType string

const (
	OrphanedAsset        DiscrepancyType = "ORPHANED_ASSET"
	PhantomPosition      DiscrepancyType = "PHANTOM_POSITION"
	SizeMismatch         DiscrepancyType = "SIZE_MISMATCH"
	AirdropDetected      DiscrepancyType = "AIRDROP_DETECTED"
	PartialFillUntracked DiscrepancyType = "PARTIAL_FILL_UNTRACKED"
)

// Action is the recommended correction for a discrepancy.
type Action string

const (
	ActionAdopt     Action = "ADOPT"
	ActionLiquidate Action = "LIQUIDATE"
	ActionAdjust    Action = "ADJUST"
	ActionAlertOnly Action = "ALERT_ONLY"
)

// Discrepancy is one classified mismatch for one symbol.
type Discrepancy struct {
	Container       string          `json:"container"`
	Symbol          string          `json:"symbol"`
	Type            DiscrepancyType `json:"type"`
	ExchangeBalance decimal.Decimal `json:"exchange_balance"`
	InternalBalance decimal.Decimal `json:"internal_balance"`
	UsdValue        decimal.Decimal `json:"usd_value"`
	Recommended     Action          `json:"recommended_action"`
	DetectedAt      int64           `json:"detected_at"`
}

// Report statuses shared by the watchdog and restart reconciliation.
const (
	StatusClean         = "CLEAN"
	StatusCleanStart    = "CLEAN_START"
	StatusDiscrepancies = "DISCREPANCIES_FOUND"
)

// Report is the structured result of one reconciliation pass.
type Report struct {
	Status         string                `json:"status"`
	Discrepancies  []Discrepancy         `json:"discrepancies"`
	OrphanedOrders []ledger.PendingOrder `json:"orphaned_orders,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
}

// NewReport derives the status from its contents.
func NewReport(discrepancies []Discrepancy, orphaned []ledger.PendingOrder, warnings []string) Report {
	status := StatusClean
	if len(discrepancies) > 0 || len(orphaned) > 0 {
		status = StatusDiscrepancies
	}
	return Report{
		Status:         status,
		Discrepancies:  discrepancies,
		OrphanedOrders: orphaned,
		Warnings:       warnings,
	}
}
