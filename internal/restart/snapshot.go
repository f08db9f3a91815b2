package restart

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/adapter/enum"
	"main/internal/ledger"
	"main/pkg/exception"
)

// Snapshot is the persisted point-in-time trading state. Written after
// every state-changing operation, read once at process start.
type Snapshot struct {
	Timestamp     int64                      `json:"timestamp"`
	TradingState  enum.TradingState          `json:"trading_state"`
	Positions     []ledger.Position          `json:"positions"`
	Balances      map[string]decimal.Decimal `json:"balances"`
	PendingOrders []ledger.PendingOrder      `json:"pending_orders"`
	LastTradeID   string                     `json:"last_trade_id"`
	LastSignalID  string                     `json:"last_signal_id"`
}

// BuildSnapshot assembles a snapshot from live state. Positions are
// sorted for a stable file layout.
func BuildSnapshot(state enum.TradingState, positions []ledger.Position, balances map[string]decimal.Decimal, pending []ledger.PendingOrder, lastTradeID, lastSignalID string) Snapshot {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Container != positions[j].Container {
			return positions[i].Container < positions[j].Container
		}
		return positions[i].Symbol < positions[j].Symbol
	})
	if balances == nil {
		balances = map[string]decimal.Decimal{}
	}
	return Snapshot{
		Timestamp:     time.Now().UTC().UnixNano(),
		TradingState:  state,
		Positions:     positions,
		Balances:      balances,
		PendingOrders: pending,
		LastTradeID:   lastTradeID,
		LastSignalID:  lastSignalID,
	}
}

// writeSnapshot persists atomically: marshal to a temp file in the
// same directory, fsync, then rename over the target. A torn write can
// never leave a corrupt snapshot behind.
func writeSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create snapshot dir")
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp snapshot")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "rename snapshot")
	}
	return nil
}

func readSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(exception.ErrRestartSnapshotCorrupt, "unmarshal snapshot: %+v", err)
	}
	return snap, nil
}
