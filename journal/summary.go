package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the trade analysis of a ledger: the counts and P/L figures an
// operator reads after a session or a backtest.
type Summary struct {
	RoundTrips int
	Wins       int
	Losses     int
	Breakeven  int

	WinRate      float64 // percent
	NetProfit    float64
	GrossProfit  float64
	GrossLoss    float64 // positive number
	ProfitFactor float64 // 0 when there are no losses
	MaxDrawdown  float64 // largest peak-to-trough drop of cumulative profit
	ReturnPct    float64 // net profit relative to the first entry price

	AvgHold  time.Duration
	ByReason map[ExitReason]int

	First time.Time
	Last  time.Time
	Open  bool // ledger ends with an unmatched BUY
}

// Summarize analyses trades in ledger order. Sums are accumulated in decimal.
func Summarize(trades []Trade) Summary {
	s := Summary{ByReason: make(map[ExitReason]int)}
	if len(trades) == 0 {
		return s
	}
	s.First = trades[0].Time
	s.Last = trades[len(trades)-1].Time

	var (
		net, gross, loss decimal.Decimal
		peak             decimal.Decimal
		maxDD            decimal.Decimal
		firstEntry       float64
		entry            *Trade
		held             time.Duration
	)

	for i := range trades {
		t := trades[i]
		if t.Type == Buy {
			entry = &trades[i]
			if firstEntry == 0 {
				firstEntry = t.Price
			}
			continue
		}

		s.RoundTrips++
		s.ByReason[t.Reason]++
		if entry != nil {
			held += t.Time.Sub(entry.Time)
			entry = nil
		}

		p := decimal.NewFromFloat(t.Profit)
		net = net.Add(p)
		switch p.Sign() {
		case 1:
			s.Wins++
			gross = gross.Add(p)
		case -1:
			s.Losses++
			loss = loss.Sub(p)
		default:
			s.Breakeven++
		}

		if net.GreaterThan(peak) {
			peak = net
		}
		if dd := peak.Sub(net); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}

	s.Open = entry != nil
	s.NetProfit = net.InexactFloat64()
	s.GrossProfit = gross.InexactFloat64()
	s.GrossLoss = loss.InexactFloat64()
	s.MaxDrawdown = maxDD.InexactFloat64()

	if s.RoundTrips > 0 {
		s.WinRate = float64(s.Wins) / float64(s.RoundTrips) * 100
		s.AvgHold = held / time.Duration(s.RoundTrips)
	}
	if loss.IsPositive() {
		s.ProfitFactor = gross.Div(loss).InexactFloat64()
	}
	if firstEntry > 0 {
		s.ReturnPct = net.Div(decimal.NewFromFloat(firstEntry)).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return s
}
