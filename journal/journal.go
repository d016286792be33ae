package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the action a trade record represents.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ExitReason explains why a position was closed. Exactly one reason attaches
// to every SELL; BUY records carry NoReason.
type ExitReason string

const (
	NoReason     ExitReason = ""
	StopLoss     ExitReason = "STOP_LOSS"
	TakeProfit   ExitReason = "TAKE_PROFIT"
	TrailingStop ExitReason = "TRAILING_STOP"
	TimeExit     ExitReason = "TIME_EXIT"
	ManualStop   ExitReason = "MANUAL_STOP"
)

// Reasons lists every exit reason in evaluation priority order, with the
// manual stop last.
var Reasons = []ExitReason{StopLoss, TakeProfit, TrailingStop, TimeExit, ManualStop}

// Label is the human readable form used in log lines.
func (r ExitReason) Label() string {
	switch r {
	case StopLoss:
		return "Stop Loss"
	case TakeProfit:
		return "Take Profit"
	case TrailingStop:
		return "Trailing Stop"
	case TimeExit:
		return "Time Exit"
	case ManualStop:
		return "Manual Stop"
	default:
		return ""
	}
}

// ParseSide accepts "BUY" or "SELL" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown trade type %q", s)
	}
}

// ParseExitReason accepts either the stored form (STOP_LOSS) or the label
// (Stop Loss). An empty string yields NoReason.
func ParseExitReason(s string) (ExitReason, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoReason, nil
	}
	norm := strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
	for _, r := range Reasons {
		if string(r) == norm {
			return r, nil
		}
	}
	return NoReason, fmt.Errorf("unknown exit reason %q", s)
}

// Trade is one executed action. Profit and Reason are only meaningful on a
// SELL. Trades are values; the ledger never mutates one after append.
type Trade struct {
	Type   Side
	Price  float64
	Time   time.Time
	Profit float64
	Reason ExitReason
}

func (t Trade) IsSell() bool { return t.Type == Sell }

func (t Trade) String() string {
	if t.IsSell() {
		return fmt.Sprintf("SELL %.4f @ %s profit=%.4f reason=%s",
			t.Price, t.Time.Format(time.RFC3339), t.Profit, t.Reason)
	}
	return fmt.Sprintf("BUY %.4f @ %s", t.Price, t.Time.Format(time.RFC3339))
}

// Profit returns exit - entry computed in decimal so a 99.8 exit against a
// 100 entry realizes exactly -0.2.
func Profit(entry, exit float64) float64 {
	return decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry)).InexactFloat64()
}
