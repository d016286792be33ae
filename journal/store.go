package journal

import (
	"context"
	"fmt"
)

// Store persists a full ledger snapshot. Save is called with every trade
// recorded so far, never a diff, so repeating a Save after a crash or a failed
// write converges on the same contents.
type Store interface {
	Save(ctx context.Context, trades []Trade) error
	Close() error
}

// PersistenceError wraps a failed ledger write. The in-memory ledger stays
// authoritative and the write is retried on the next save.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist ledger to %s: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Discard is a Store that keeps nothing.
type Discard struct{}

func (Discard) Save(context.Context, []Trade) error { return nil }
func (Discard) Close() error                         { return nil }
