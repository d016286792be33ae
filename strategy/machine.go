package strategy

import (
	"fmt"
	"time"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/signals"
)

// Side of the machine's single position.
type Side int

const (
	Flat Side = iota
	Long
)

func (s Side) String() string {
	if s == Long {
		return "LONG"
	}
	return "FLAT"
}

// Position is the open position, or the zero value with Side Flat.
// EntryPrice is fixed for the life of the position; TrailingStop only rises.
type Position struct {
	Side         Side
	EntryPrice   float64
	EntryTime    time.Time
	TrailingStop float64
}

// Machine is the FLAT/LONG state machine for one symbol. It is always in the
// market once flat: the only entry filter is holding no position. It is not
// safe for concurrent use; the engine drives it from one goroutine.
type Machine struct {
	cfg     Config
	pos     Position
	ledger  *journal.Ledger
	signals *signals.Recorder
}

// New validates cfg and builds a machine writing to ledger and rec. Nil
// collaborators are replaced with empty ones. A ledger ending in an unmatched
// BUY resumes that position with the trailing stop at entry×(1−f); see Rearm.
func New(cfg Config, ledger *journal.Ledger, rec *signals.Recorder) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = journal.NewLedger()
	}
	if rec == nil {
		rec = signals.NewRecorder()
	}
	if err := journal.Validate(ledger.Snapshot()); err != nil {
		return nil, fmt.Errorf("resume ledger: %w", err)
	}

	m := &Machine{cfg: cfg, ledger: ledger, signals: rec}
	if t, ok := ledger.Open(); ok {
		m.open(t.Price, t.Time)
	}
	return m, nil
}

func (m *Machine) Config() Config             { return m.cfg }
func (m *Machine) State() Position            { return m.pos }
func (m *Machine) Ledger() *journal.Ledger    { return m.ledger }
func (m *Machine) Signals() *signals.Recorder { return m.signals }

// Decide evaluates bar b. While LONG it first raises the trailing stop, then
// tests the exits in priority order: stop loss, take profit, trailing stop,
// time exit. The first match wins.
func (m *Machine) Decide(b market.Bar) Decision {
	if m.pos.Side == Flat {
		return buy
	}

	price := b.Close
	if m.cfg.Trailing() && price > m.pos.EntryPrice {
		if ts := m.cfg.trailFrom(price); ts > m.pos.TrailingStop {
			m.pos.TrailingStop = ts
		}
	}

	switch {
	case price <= m.cfg.StopPrice(m.pos.EntryPrice):
		return sell(journal.StopLoss)
	case price >= m.cfg.TargetPrice(m.pos.EntryPrice):
		return sell(journal.TakeProfit)
	case m.cfg.Trailing() && price <= m.pos.TrailingStop:
		return sell(journal.TrailingStop)
	case b.Time.Sub(m.pos.EntryTime) >= m.cfg.MaxHold:
		return sell(journal.TimeExit)
	}
	return hold
}

// Apply executes d at bar b. It returns the recorded trade, or false when d
// does not fit the current state (BUY while LONG, SELL while FLAT, HOLD).
func (m *Machine) Apply(d Decision, b market.Bar) (journal.Trade, bool) {
	switch {
	case d.Action == Buy && m.pos.Side == Flat:
		m.open(b.Close, b.Time)
		t := journal.Trade{Type: journal.Buy, Price: b.Close, Time: b.Time}
		m.ledger.Record(t)
		m.signals.RecordBuy(b.Time, b.Close)
		return t, true

	case d.Action == Sell && m.pos.Side == Long:
		reason := d.Reason
		if reason == journal.NoReason {
			reason = journal.ManualStop
		}
		return m.close(b.Close, b.Time, reason), true
	}
	return journal.Trade{}, false
}

// OnBar is Decide followed by Apply.
func (m *Machine) OnBar(b market.Bar) (Decision, journal.Trade, bool) {
	d := m.Decide(b)
	t, ok := m.Apply(d, b)
	return d, t, ok
}

// Rearm raises the trailing stop of an open position from bars seen since
// entry, without evaluating any exit. A position resumed from the ledger
// starts from entry×(1−f); replaying the bars the source still holds brings
// the level back to where the ratchet had taken it. Bars at or before entry,
// malformed bars and bars at or below entry are ignored.
func (m *Machine) Rearm(bars []market.Bar) {
	if m.pos.Side != Long || !m.cfg.Trailing() {
		return
	}
	for _, b := range bars {
		if b.Validate() != nil || !b.Time.After(m.pos.EntryTime) || b.Close <= m.pos.EntryPrice {
			continue
		}
		if ts := m.cfg.trailFrom(b.Close); ts > m.pos.TrailingStop {
			m.pos.TrailingStop = ts
		}
	}
}

// ForceClose liquidates an open position at b.Close with MANUAL_STOP,
// bypassing the exit rules. It is a no-op while FLAT.
func (m *Machine) ForceClose(b market.Bar) (journal.Trade, bool) {
	if m.pos.Side != Long {
		return journal.Trade{}, false
	}
	ts := b.Time
	if ts.Before(m.pos.EntryTime) {
		ts = m.pos.EntryTime
	}
	return m.close(b.Close, ts, journal.ManualStop), true
}

func (m *Machine) open(price float64, at time.Time) {
	m.pos = Position{Side: Long, EntryPrice: price, EntryTime: at}
	if m.cfg.Trailing() {
		m.pos.TrailingStop = m.cfg.trailFrom(price)
	}
}

func (m *Machine) close(price float64, at time.Time, reason journal.ExitReason) journal.Trade {
	t := journal.Trade{
		Type:   journal.Sell,
		Price:  price,
		Time:   at,
		Profit: journal.Profit(m.pos.EntryPrice, price),
		Reason: reason,
	}
	m.pos = Position{}
	m.ledger.Record(t)
	m.signals.RecordSell(at, price)
	return t
}
