package exception

import "errors"

var (
	ErrLedgerPositionExists   = errors.New("ledger: position already exists")
	ErrLedgerPositionNotFound = errors.New("ledger: position not found")
	ErrLedgerLockNotHeld      = errors.New("ledger: close lock not held")
	ErrLedgerInvalidFraction  = errors.New("ledger: exit fraction out of range")
	ErrLedgerOrderExists      = errors.New("ledger: pending order already tracked")
)
