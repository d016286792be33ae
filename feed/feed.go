// Package feed supplies bars to the engine. Live sources answer FetchLatest;
// historical sources answer FetchRange. Every provider error reaches the
// caller as a *FetchError so the engine can treat it as transient.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/intraday/market"
)

// ErrNoData marks an empty provider response.
var ErrNoData = errors.New("no bars returned")

// Source is a live bar source. FetchLatest returns recent bars, oldest
// first; the engine only consumes the ones it has not processed yet.
type Source interface {
	FetchLatest(ctx context.Context, symbol string, interval time.Duration) ([]market.Bar, error)
}

// History is a bar source over a closed time range [from, to).
type History interface {
	FetchRange(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]market.Bar, error)
}

// FetchError wraps a failed or empty fetch.
type FetchError struct {
	Provider string
	Symbol   string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch %s: %v", e.Provider, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchErr(provider, symbol string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Provider: provider, Symbol: symbol, Err: err}
}

// inRange reports whether t falls in [from, to). Zero bounds are open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func filterRange(bars []market.Bar, from, to time.Time) []market.Bar {
	out := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		if inRange(b.Time, from, to) {
			out = append(out, b)
		}
	}
	return out
}
