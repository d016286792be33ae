package strategy

import (
	"fmt"

	"github.com/rustyeddy/intraday/journal"
)

// Action is what the machine wants done on a bar.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Decision carries the action together with the exit reason that produced
// it, so a SELL is never re-classified after the fact.
type Decision struct {
	Action Action
	Reason journal.ExitReason
}

func (d Decision) String() string {
	if d.Action == Sell {
		return fmt.Sprintf("SELL (%s)", d.Reason.Label())
	}
	return d.Action.String()
}

var (
	hold = Decision{Action: Hold}
	buy  = Decision{Action: Buy}
)

func sell(r journal.ExitReason) Decision { return Decision{Action: Sell, Reason: r} }
