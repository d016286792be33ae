package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rustyeddy/intraday/market"
)

// Replay walks a finite bar sequence. As a Source it reveals one more bar on
// every FetchLatest call, which lets the live engine run against recorded
// data. As an iterator it serves the backtest runner through Next, and
// Reset restarts it from the first bar.
type Replay struct {
	mu     sync.Mutex
	symbol string
	bars   []market.Bar
	pos    int
}

func NewReplay(symbol string, bars []market.Bar) *Replay {
	cp := make([]market.Bar, len(bars))
	copy(cp, bars)
	return &Replay{symbol: symbol, bars: cp}
}

// Next returns the following bar, or false once the sequence is exhausted.
func (r *Replay) Next() (market.Bar, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.bars) {
		return market.Bar{}, false, nil
	}
	b := r.bars[r.pos]
	r.pos++
	return b, true, nil
}

func (r *Replay) Reset() error {
	r.mu.Lock()
	r.pos = 0
	r.mu.Unlock()
	return nil
}

func (r *Replay) Len() int { return len(r.bars) }

// Done reports whether every bar has been handed out.
func (r *Replay) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos >= len(r.bars)
}

// FetchLatest advances by one bar and returns everything revealed so far.
// Once exhausted it keeps returning the full sequence, which the engine
// skips as already processed.
func (r *Replay) FetchLatest(ctx context.Context, symbol string, _ time.Duration) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchErr("replay", symbol, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos < len(r.bars) {
		r.pos++
	}
	if r.pos == 0 {
		return nil, fetchErr("replay", symbol, ErrNoData)
	}
	out := make([]market.Bar, r.pos)
	copy(out, r.bars[:r.pos])
	return out, nil
}

// FetchRange returns the recorded bars inside [from, to).
func (r *Replay) FetchRange(ctx context.Context, symbol string, _ time.Duration, from, to time.Time) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchErr("replay", symbol, err)
	}
	out := filterRange(r.bars, from, to)
	if len(out) == 0 {
		return nil, fetchErr("replay", symbol, ErrNoData)
	}
	return out, nil
}
