package resolve

import (
	"sync"

	"github.com/yanun0323/logs"
)

// AssetState is the per-symbol resolution state machine:
// OK → UNKNOWN → DELISTED → PERMANENT_DUST.
type AssetState uint8

const (
	_asset_state_beg AssetState = iota
	AssetStateOK
	AssetStateUnknown
	AssetStateDelisted
	AssetStatePermanentDust
	_asset_state_end
)

func (s AssetState) IsAvailable() bool {
	return s > _asset_state_beg && s < _asset_state_end
}

func (s AssetState) String() string {
	switch s {
	case AssetStateOK:
		return "OK"
	case AssetStateUnknown:
		return "UNKNOWN"
	case AssetStateDelisted:
		return "DELISTED"
	case AssetStatePermanentDust:
		return "PERMANENT_DUST"
	default:
		return "unknown"
	}
}

// Excluded reports whether the symbol leaves exposure and
// position-count accounting.
func (s AssetState) Excluded() bool {
	return s == AssetStateDelisted || s == AssetStatePermanentDust
}

type assetEntry struct {
	state    AssetState
	failures int
}

// Tracker holds resolution states for all symbols.
type Tracker struct {
	mu          sync.Mutex
	entries     map[string]*assetEntry
	maxFailures int
}

func NewTracker(maxFailures int) *Tracker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &Tracker{
		entries:     make(map[string]*assetEntry),
		maxFailures: maxFailures,
	}
}

// State returns the current state, defaulting to OK.
func (t *Tracker) State(symbol string) AssetState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entry(symbol).state
}

// Excluded reports whether the symbol is out of accounting.
func (t *Tracker) Excluded(symbol string) bool {
	return t.State(symbol).Excluded()
}

// MarkPriceSuccess resets failure counting unless the symbol already
// reached a terminal dust state.
func (t *Tracker) MarkPriceSuccess(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(symbol)
	if e.state == AssetStatePermanentDust {
		return
	}
	e.failures = 0
	e.state = AssetStateOK
}

// MarkPriceFailure counts one consecutive failure and transitions to
// DELISTED once the threshold is crossed. Returns the new state.
func (t *Tracker) MarkPriceFailure(symbol string) AssetState {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(symbol)
	if e.state == AssetStateDelisted || e.state == AssetStatePermanentDust {
		return e.state
	}
	e.failures++
	if e.failures >= t.maxFailures {
		e.state = AssetStateDelisted
		logs.Warnf("symbol delisted after %d consecutive price failures: %s", e.failures, symbol)
	} else {
		e.state = AssetStateUnknown
	}
	return e.state
}

// MarkLiquidationFailed transitions a delisted symbol to permanent
// dust after a confirmed failed liquidation attempt.
func (t *Tracker) MarkLiquidationFailed(symbol string) AssetState {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(symbol)
	if e.state == AssetStateDelisted {
		e.state = AssetStatePermanentDust
		logs.Warnf("symbol marked permanent dust: %s", symbol)
	}
	return e.state
}

func (t *Tracker) entry(symbol string) *assetEntry {
	e, ok := t.entries[symbol]
	if !ok {
		e = &assetEntry{state: AssetStateOK}
		t.entries[symbol] = e
	}
	return e
}
