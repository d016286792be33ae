package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/signals"
	"github.com/rustyeddy/intraday/strategy"
)

// Result is the outcome of one backtest run.
type Result struct {
	Symbol string
	Config strategy.Config

	Bars    int
	Skipped int

	Start time.Time
	End   time.Time

	Trades  []journal.Trade
	Buys    []signals.Marker
	Sells   []signals.Marker
	Summary journal.Summary
}

func PrintResult(w io.Writer, r Result) {
	c := r.Config
	s := r.Summary

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Symbol:        %s\n", r.Symbol)
	fmt.Fprintf(w, "Interval:      %s\n", market.FormatInterval(c.Interval))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Bars:          %d\n", r.Bars)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "Skipped:       %d\n", r.Skipped)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit Rules")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Stop Loss:     %.3f%%\n", c.StopLoss*100)
	fmt.Fprintf(w, "Take Profit:   %.3f%%\n", c.TakeProfit*100)
	if c.Trailing() {
		fmt.Fprintf(w, "Trailing Stop: %.3f%%\n", c.TrailingStop*100)
	} else {
		fmt.Fprintln(w, "Trailing Stop: off")
	}
	fmt.Fprintf(w, "Max Hold:      %s\n", c.MaxHold)

	fmt.Fprintln(w)
	PrintSummary(w, s)
	fmt.Fprintln(w)
}

// PrintSummary renders the trade statistics block, shared with the journal
// commands.
func PrintSummary(w io.Writer, s journal.Summary) {
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Round Trips:   %d\n", s.RoundTrips)
	fmt.Fprintf(w, "Wins:          %d\n", s.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", s.Losses)
	if s.Breakeven > 0 {
		fmt.Fprintf(w, "Breakeven:     %d\n", s.Breakeven)
	}
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate)
	if s.AvgHold > 0 {
		fmt.Fprintf(w, "Avg Hold:      %s\n", s.AvgHold.Round(time.Second))
	}
	if s.Open {
		fmt.Fprintln(w, "Open Position: yes")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Performance (per unit)")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Net P/L:       %.4f\n", s.NetProfit)
	fmt.Fprintf(w, "Gross Profit:  %.4f\n", s.GrossProfit)
	fmt.Fprintf(w, "Gross Loss:    %.4f\n", s.GrossLoss)
	fmt.Fprintf(w, "Return:        %.3f%%\n", s.ReturnPct)
	if s.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", s.ProfitFactor)
	}
	if s.MaxDrawdown > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.4f\n", s.MaxDrawdown)
	}

	if s.RoundTrips > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Exits")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, reason := range journal.Reasons {
			if n := s.ByReason[reason]; n > 0 {
				fmt.Fprintf(w, "%-15s%d\n", reason.Label()+":", n)
			}
		}
	}
}
