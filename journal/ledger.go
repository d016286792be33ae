package journal

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfSequence is returned by Validate when a ledger does not alternate
// BUY, SELL, BUY, SELL...
var ErrOutOfSequence = errors.New("trades out of sequence")

// Ledger is the append-only record of executed trades for one engine.
type Ledger struct {
	mu     sync.RWMutex
	trades []Trade
}

// NewLedger creates an empty ledger, optionally seeded with trades loaded
// from a store.
func NewLedger(seed ...Trade) *Ledger {
	l := &Ledger{trades: make([]Trade, 0, len(seed)+16)}
	l.trades = append(l.trades, seed...)
	return l
}

// Record appends t.
func (l *Ledger) Record(t Trade) {
	l.mu.Lock()
	l.trades = append(l.trades, t)
	l.mu.Unlock()
}

// Snapshot returns a copy of every recorded trade.
func (l *Ledger) Snapshot() []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Open returns the trailing unmatched BUY, if any.
func (l *Ledger) Open() (Trade, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n := len(l.trades); n > 0 && l.trades[n-1].Type == Buy {
		return l.trades[n-1], true
	}
	return Trade{}, false
}

// RoundTrips counts completed BUY/SELL pairs.
func (l *Ledger) RoundTrips() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, t := range l.trades {
		if t.IsSell() {
			n++
		}
	}
	return n
}

// Validate checks that trades alternate BUY, SELL starting with a BUY, that
// every SELL carries a reason and that no SELL precedes its BUY.
func Validate(trades []Trade) error {
	var entry *Trade
	for i := range trades {
		t := trades[i]
		switch t.Type {
		case Buy:
			if entry != nil {
				return fmt.Errorf("row %d: BUY while a position is open: %w", i, ErrOutOfSequence)
			}
			entry = &trades[i]
		case Sell:
			if entry == nil {
				return fmt.Errorf("row %d: SELL without a matching BUY: %w", i, ErrOutOfSequence)
			}
			if t.Time.Before(entry.Time) {
				return fmt.Errorf("row %d: SELL at %s before BUY at %s: %w", i, t.Time, entry.Time, ErrOutOfSequence)
			}
			if t.Reason == NoReason {
				return fmt.Errorf("row %d: SELL without an exit reason", i)
			}
			entry = nil
		default:
			return fmt.Errorf("row %d: unknown trade type %q", i, t.Type)
		}
	}
	return nil
}
