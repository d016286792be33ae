package engine

import (
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/signals"
	"github.com/rustyeddy/intraday/strategy"
)

// Snapshot is what a chart or UI needs to draw an engine. The engine never
// renders; every field is a copy the caller may keep.
type Snapshot struct {
	Symbol   string
	Bars     []market.Bar
	Buys     []signals.Marker
	Sells    []signals.Marker
	Position strategy.Position
	Trades   []journal.Trade
	Logs     []string
	Stopped  bool
}

// Snapshot returns the bar window, the last n buy and sell markers (all
// when n <= 0), the position, the ledger and the buffered log lines.
func (e *Engine) Snapshot(n int) Snapshot {
	rec := e.machine.Signals()
	s := Snapshot{
		Symbol:   e.cfg.Symbol,
		Bars:     e.window.Bars(),
		Buys:     rec.LastBuys(n),
		Sells:    rec.LastSells(n),
		Position: e.Position(),
		Trades:   e.Ledger().Snapshot(),
		Logs:     e.logs.Lines(),
	}
	select {
	case <-e.done:
		s.Stopped = true
	default:
	}
	return s
}
