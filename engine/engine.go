// Package engine runs one symbol's state machine against a live bar source:
// fetch, decide, apply, persist, sleep, until stopped. Nothing that goes
// wrong inside an iteration ends the loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/intraday/feed"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/logging"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/metrics"
	"github.com/rustyeddy/intraday/signals"
	"github.com/rustyeddy/intraday/strategy"
)

var ErrAlreadyRunning = errors.New("engine already running")

// Config is the engine's control surface: the symbol plus the exit rules.
type Config struct {
	Symbol   string
	Strategy strategy.Config
}

// Options wires the engine's collaborators. Only Source is required.
type Options struct {
	Source  feed.Source
	Store   journal.Store
	Logger  *logrus.Logger
	Metrics *metrics.Metrics

	// Ledger resumes from previously persisted trades.
	Ledger *journal.Ledger

	// PollInterval overrides the sleep between iterations, which is
	// otherwise one bar interval.
	PollInterval time.Duration

	WindowSize int // bars kept for rendering, default 200
	LogLines   int // lines kept in the engine's log buffer, default 200
}

type Engine struct {
	cfg     Config
	src     feed.Source
	store   journal.Store
	log     *logrus.Entry
	logs    *logging.Buffer
	detach  func()
	metrics *metrics.Metrics
	machine *strategy.Machine
	window  *market.Window
	poll    time.Duration

	// iterMu serializes an iteration with the stop protocol.
	iterMu  sync.Mutex
	last    market.Bar
	hasLast bool
	dirty   bool

	// stateMu guards the copies Snapshot reads while an iteration runs.
	stateMu sync.RWMutex
	pos     strategy.Position

	running  atomic.Bool
	stopping atomic.Bool
	halt     context.Context
	haltFn   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
	stopErr  error
}

// New validates cfg and builds an engine. A bad configuration is returned
// as a *strategy.ConfigError and nothing is started.
func New(cfg Config, opts Options) (*Engine, error) {
	if cfg.Symbol == "" {
		return nil, &strategy.ConfigError{Field: "symbol", Reason: "is required"}
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return nil, err
	}
	if opts.Source == nil {
		return nil, errors.New("engine: Source is required")
	}
	if opts.Store == nil {
		opts.Store = journal.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = cfg.Strategy.Interval
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = 200
	}

	machine, err := strategy.New(cfg.Strategy, opts.Ledger, signals.NewRecorder())
	if err != nil {
		return nil, err
	}

	logs := logging.NewBuffer(opts.LogLines, logrus.Fields{"symbol": cfg.Symbol})
	detach := logging.Attach(opts.Logger, logs)

	halt, haltFn := context.WithCancel(context.Background())
	e := &Engine{
		cfg:     cfg,
		src:     opts.Source,
		store:   opts.Store,
		log:     opts.Logger.WithField("symbol", cfg.Symbol),
		logs:    logs,
		detach:  detach,
		metrics: opts.Metrics,
		machine: machine,
		window:  market.NewWindow(opts.WindowSize),
		poll:    opts.PollInterval,
		halt:    halt,
		haltFn:  haltFn,
		done:    make(chan struct{}),
	}
	e.syncState()
	return e, nil
}

func (e *Engine) Symbol() string             { return e.cfg.Symbol }
func (e *Engine) Config() Config             { return e.cfg }
func (e *Engine) Ledger() *journal.Ledger    { return e.machine.Ledger() }
func (e *Engine) Logs() *logging.Buffer      { return e.logs }
func (e *Engine) Done() <-chan struct{}      { return e.done }
func (e *Engine) Signals() *signals.Recorder { return e.machine.Signals() }

// Position returns a copy of the current position.
func (e *Engine) Position() strategy.Position {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.pos
}

// Run iterates until ctx is cancelled or Stop is called, then completes the
// stop protocol and returns its error. An engine runs once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	sc := e.cfg.Strategy
	e.log.WithFields(logrus.Fields{
		"interval":      market.FormatInterval(sc.Interval),
		"stop_loss":     sc.StopLoss,
		"take_profit":   sc.TakeProfit,
		"trailing_stop": sc.TrailingStop,
		"max_hold":      sc.MaxHold.String(),
		"poll":          e.poll.String(),
	}).Info("engine started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return e.Stop()
		case <-e.halt.Done():
			<-e.done
			return e.stopErr
		case <-timer.C:
		}
		_ = e.iterate(ctx)
		timer.Reset(e.poll)
	}
}

// Stop sets the shutdown flag, waits for the in-flight iteration, closes any
// open position at the last bar's close with MANUAL_STOP and persists the
// ledger. Repeated calls return the first call's result.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		e.stopping.Store(true)
		e.haltFn()

		e.iterMu.Lock()
		defer e.iterMu.Unlock()
		e.stopErr = e.shutdown()
		e.detach()
		close(e.done)
	})
	<-e.done
	return e.stopErr
}

func (e *Engine) shutdown() error {
	if e.hasLast {
		if t, ok := e.machine.ForceClose(e.last); ok {
			e.record(t, e.log.WithField("stopped_at", time.Now()))
		}
	} else if e.machine.State().Side == strategy.Long {
		e.log.Warn("stopping with an open position and no bar to price it; left open in the ledger")
	}
	e.syncState()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.persist(ctx)
	e.log.WithField("trades", e.Ledger().Len()).Info("engine stopped")
	return err
}

// iterate runs one fetch-decide-apply-persist cycle. Its error is
// informational: the loop always continues.
func (e *Engine) iterate(ctx context.Context) (err error) {
	e.iterMu.Lock()
	defer e.iterMu.Unlock()
	if e.stopping.Load() {
		return nil
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panic: %v", r)
			e.log.WithField("stack", string(debug.Stack())).Error(err)
		}
		e.metrics.IterationSeconds.WithLabelValues(e.cfg.Symbol).Observe(time.Since(start).Seconds())
	}()

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(e.halt, cancel)()

	bars, err := e.src.FetchLatest(fctx, e.cfg.Symbol, e.cfg.Strategy.Interval)
	if err == nil && len(bars) == 0 {
		err = &feed.FetchError{Provider: "source", Symbol: e.cfg.Symbol, Err: feed.ErrNoData}
	}
	if err != nil {
		if e.stopping.Load() {
			return nil
		}
		e.metrics.FetchErrors.WithLabelValues(e.cfg.Symbol).Inc()
		e.log.WithError(err).Warn("fetch failed; retrying next interval")
		return err
	}

	if !e.hasLast {
		e.machine.Rearm(bars[:len(bars)-1])
	}
	fresh := e.fresh(bars)
	if len(fresh) == 0 {
		e.log.WithField("returned", len(bars)).Debug("no new bars")
	}
	for _, b := range fresh {
		e.process(b)
	}
	return e.persist(ctx)
}

// fresh picks the bars to process: only the latest on the first iteration,
// afterwards every bar newer than the last one processed, in order.
func (e *Engine) fresh(bars []market.Bar) []market.Bar {
	if !e.hasLast {
		return bars[len(bars)-1:]
	}
	var out []market.Bar
	cursor := e.last.Time
	for _, b := range bars {
		if !b.Time.After(cursor) {
			continue
		}
		out = append(out, b)
		cursor = b.Time
	}
	return out
}

func (e *Engine) process(b market.Bar) {
	if err := b.Validate(); err != nil {
		e.metrics.BarsSkipped.WithLabelValues(e.cfg.Symbol, "malformed").Inc()
		e.log.WithError(err).Warn("discarding malformed bar")
		return
	}
	e.window.Push(b)
	e.last, e.hasLast = b, true
	e.metrics.BarsTotal.WithLabelValues(e.cfg.Symbol).Inc()

	d, t, ok := e.machine.OnBar(b)
	entry := e.log.WithFields(logrus.Fields{"bar": b.Time, "close": b.Close})
	if ok {
		e.record(t, entry)
	} else {
		pos := e.machine.State()
		entry.WithFields(logrus.Fields{
			"entry":    pos.EntryPrice,
			"trailing": pos.TrailingStop,
		}).Info(d.String())
	}
	e.syncState()
}

func (e *Engine) record(t journal.Trade, entry *logrus.Entry) {
	e.dirty = true
	sym := e.cfg.Symbol
	e.metrics.TradesTotal.WithLabelValues(sym, string(t.Type)).Inc()

	if t.Type == journal.Buy {
		sc := e.cfg.Strategy
		entry.WithFields(logrus.Fields{
			"price":    t.Price,
			"stop":     sc.StopPrice(t.Price),
			"target":   sc.TargetPrice(t.Price),
			"trailing": e.machine.State().TrailingStop,
		}).Info("BUY")
		return
	}
	e.metrics.ExitsTotal.WithLabelValues(sym, string(t.Reason)).Inc()
	e.metrics.RealizedProfit.WithLabelValues(sym).Add(t.Profit)
	entry.WithFields(logrus.Fields{
		"price":  t.Price,
		"profit": t.Profit,
		"reason": t.Reason.Label(),
	}).Info("SELL")
}

// persist writes the full ledger when it changed. A failure leaves the
// ledger dirty so the next iteration writes it again.
func (e *Engine) persist(ctx context.Context) error {
	if !e.dirty {
		return nil
	}
	if err := e.store.Save(ctx, e.Ledger().Snapshot()); err != nil {
		e.metrics.PersistErrors.WithLabelValues(e.cfg.Symbol).Inc()
		e.log.WithError(err).Error("ledger write failed; will retry")
		return err
	}
	e.dirty = false
	return nil
}

func (e *Engine) syncState() {
	pos := e.machine.State()
	e.stateMu.Lock()
	e.pos = pos
	e.stateMu.Unlock()

	open := 0.0
	if pos.Side == strategy.Long {
		open = 1
	}
	e.metrics.PositionOpen.WithLabelValues(e.cfg.Symbol).Set(open)
}
