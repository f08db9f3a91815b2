package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"main/internal/executor"
	"main/internal/reconcile"
	"main/pkg/conn"
)

// TradeRecord is the audit row for one confirmed exit.
type TradeRecord struct {
	ID         uint            `gorm:"primaryKey"`
	Container  string          `gorm:"index"`
	Symbol     string          `gorm:"index"`
	Side       string
	Quantity   decimal.Decimal `gorm:"type:numeric"`
	EntryPrice decimal.Decimal `gorm:"type:numeric"`
	ExitPrice  decimal.Decimal `gorm:"type:numeric"`
	PnlUsd     decimal.Decimal `gorm:"type:numeric"`
	Fraction   decimal.Decimal `gorm:"type:numeric"`
	Reason     string
	ClosedAt   time.Time
}

// ReconcileRecord is the audit row for one reconciliation pass.
type ReconcileRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Container     string `gorm:"index"`
	Status        string
	Discrepancies int
	RanAt         time.Time
}

// Store persists trade and reconciliation audit rows. A nil *Store is
// valid and drops writes, so the engine runs without a database.
type Store struct {
	db *gorm.DB
}

// Open connects and migrates the audit tables.
func Open(cfg conn.Config) (*Store, error) {
	db, err := conn.Connect(cfg, &TradeRecord{}, &ReconcileRecord{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return conn.Close(s.db)
}

// JournalExit implements executor.TradeJournal.
func (s *Store) JournalExit(ctx context.Context, trade executor.ClosedTrade) error {
	if s == nil {
		return nil
	}
	row := TradeRecord{
		Container:  trade.Container,
		Symbol:     trade.Symbol,
		Side:       trade.Side.String(),
		Quantity:   trade.Quantity,
		EntryPrice: trade.EntryPrice,
		ExitPrice:  trade.ExitPrice,
		PnlUsd:     trade.PnlUsd,
		Fraction:   trade.Fraction,
		Reason:     trade.Reason,
		ClosedAt:   time.Unix(0, trade.ClosedAt).UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// JournalReconcile records one reconciliation pass.
func (s *Store) JournalReconcile(ctx context.Context, container string, report reconcile.Report) error {
	if s == nil {
		return nil
	}
	row := ReconcileRecord{
		Container:     container,
		Status:        report.Status,
		Discrepancies: len(report.Discrepancies),
		RanAt:         time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// RecentTrades returns the latest audit rows for a container.
func (s *Store) RecentTrades(ctx context.Context, container string, limit int) ([]TradeRecord, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []TradeRecord
	err := s.db.WithContext(ctx).
		Where("container = ?", container).
		Order("closed_at desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
