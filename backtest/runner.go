package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/logging"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/signals"
	"github.com/rustyeddy/intraday/strategy"
)

// BarFeed yields bars one at a time, oldest first. Implementations return
// (ok=false, err=nil) at the end of the data.
type BarFeed interface {
	Next() (b market.Bar, ok bool, err error)
}

// Resetter is implemented by feeds that can be replayed from the start.
// Run resets such feeds first, so running a Runner twice gives the same
// result.
type Resetter interface {
	Reset() error
}

// RunnerOptions controls how the backtest runner behaves.
type RunnerOptions struct {
	// If true, close an open position at the last bar with MANUAL_STOP.
	CloseEnd bool
	Logger   *logrus.Logger
}

// Runner drives the state machine bar by bar over a finite feed.
type Runner struct {
	Symbol  string
	Config  strategy.Config
	Feed    BarFeed
	Store   journal.Store
	Options RunnerOptions
}

// Run executes the backtest loop:
//  1. read next bar
//  2. drop it if malformed or not newer than the previous bar
//  3. machine.OnBar(bar)
//
// The ledger snapshot is written to Store, when set, once the feed is done.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	if r.Symbol == "" {
		return Result{}, fmt.Errorf("backtest: Symbol is required")
	}
	machine, err := strategy.New(r.Config, journal.NewLedger(), signals.NewRecorder())
	if err != nil {
		return Result{}, err
	}
	if rs, ok := r.Feed.(Resetter); ok {
		if err := rs.Reset(); err != nil {
			return Result{}, fmt.Errorf("backtest: reset feed: %w", err)
		}
	}
	logger := r.Options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	log := logger.WithField("symbol", r.Symbol)

	began := time.Now()
	res := Result{Symbol: r.Symbol, Config: r.Config}
	var (
		last    market.Bar
		hasLast bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		b, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, fmt.Errorf("backtest: feed: %w", err)
		}
		if !ok {
			break
		}

		if err := b.Validate(); err != nil {
			res.Skipped++
			log.WithError(err).Debug("skipping malformed bar")
			continue
		}
		if hasLast && !b.Time.After(last.Time) {
			res.Skipped++
			log.WithField("bar", b.Time).Debug("skipping out of order bar")
			continue
		}
		last, hasLast = b, true
		res.Bars++
		if res.Start.IsZero() {
			res.Start = b.Time
		}
		res.End = b.Time

		if _, t, ok := machine.OnBar(b); ok {
			log.WithField("bar", b.Time).Debug(t.String())
		}
	}

	if r.Options.CloseEnd && hasLast {
		if t, ok := machine.ForceClose(last); ok {
			log.WithField("bar", last.Time).Debug(t.String())
		}
	}

	res.Trades = machine.Ledger().Snapshot()
	res.Buys = machine.Signals().Buys()
	res.Sells = machine.Signals().Sells()
	res.Summary = journal.Summarize(res.Trades)

	if r.Store != nil && len(res.Trades) > 0 {
		if err := r.Store.Save(ctx, res.Trades); err != nil {
			return res, err
		}
	}

	log.WithFields(logrus.Fields{
		"bars":        res.Bars,
		"skipped":     res.Skipped,
		"round_trips": res.Summary.RoundTrips,
		"net":         res.Summary.NetProfit,
		"took":        time.Since(began).Round(time.Millisecond).String(),
	}).Info("backtest complete")
	return res, nil
}
