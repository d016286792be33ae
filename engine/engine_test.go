package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/intraday/feed"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/logging"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/metrics"
	"github.com/rustyeddy/intraday/strategy"
)

var t0 = time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)

func bar(i int, close float64) market.Bar {
	return market.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: close, High: close, Low: close, Close: close, Volume: 10}
}

func testConfig() Config {
	return Config{
		Symbol: "SPY",
		Strategy: strategy.Config{
			StopLoss:   0.001,
			TakeProfit: 0.002,
			MaxHold:    5 * time.Minute,
			Interval:   time.Minute,
		},
	}
}

// scripted returns one canned response per call and repeats the last.
type scripted struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	bars  []market.Bar
	err   error
	panic bool
}

func (s *scripted) FetchLatest(_ context.Context, _ string, _ time.Duration) ([]market.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	if st.panic {
		panic("provider blew up")
	}
	return st.bars, st.err
}

// memStore records every snapshot and can be told to fail.
type memStore struct {
	mu    sync.Mutex
	fail  int
	saves [][]journal.Trade
}

func (m *memStore) Save(_ context.Context, trades []journal.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return &journal.PersistenceError{Store: "mem", Err: errors.New("disk full")}
	}
	m.saves = append(m.saves, trades)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) last() []journal.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

func newEngine(t *testing.T, src feed.Source, store journal.Store) (*Engine, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(nil)
	e, err := New(testConfig(), Options{Source: src, Store: store, Metrics: m})
	require.NoError(t, err)
	return e, m
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	src := &scripted{steps: []step{{bars: []market.Bar{bar(0, 100)}}}}

	cfg := testConfig()
	cfg.Strategy.StopLoss = -1
	_, err := New(cfg, Options{Source: src})
	var ce *strategy.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "stop_loss", ce.Field)

	cfg = testConfig()
	cfg.Symbol = ""
	_, err = New(cfg, Options{Source: src})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "symbol", ce.Field)

	_, err = New(testConfig(), Options{})
	assert.ErrorContains(t, err, "Source is required")
}

func TestFirstIterationTakesLatestBarOnly(t *testing.T) {
	t.Parallel()

	src := &scripted{steps: []step{{bars: []market.Bar{bar(0, 98), bar(1, 99), bar(2, 100)}}}}
	store := &memStore{}
	e, m := newEngine(t, src, store)

	require.NoError(t, e.iterate(context.Background()))

	trades := e.Ledger().Snapshot()
	require.Len(t, trades, 1)
	assert.Equal(t, journal.Buy, trades[0].Type)
	assert.Equal(t, 100.0, trades[0].Price)
	assert.Equal(t, bar(2, 100).Time, trades[0].Time)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarsTotal.WithLabelValues("SPY")))
	assert.Equal(t, trades, store.last())
	assert.Equal(t, strategy.Long, e.Position().Side)
}

func TestStopLossScenario(t *testing.T) {
	t.Parallel()

	src := feed.NewReplay("SPY", []market.Bar{bar(0, 100), bar(1, 99.8), bar(2, 100.3)})
	store := &memStore{}
	e, _ := newEngine(t, src, store)

	for range 3 {
		require.NoError(t, e.iterate(context.Background()))
	}

	trades := e.Ledger().Snapshot()
	require.Len(t, trades, 3)
	assert.Equal(t, journal.StopLoss, trades[1].Reason)
	assert.Equal(t, 99.8, trades[1].Price)
	assert.Equal(t, -0.2, trades[1].Profit)
	assert.Equal(t, journal.Buy, trades[2].Type, "flat engine re-enters on the next bar")
	assert.Equal(t, trades, store.last())
}

func TestSkipsStaleAndDuplicateBars(t *testing.T) {
	t.Parallel()

	// The provider re-returns the forming bar, then sends two new bars
	// alongside an old one, then goes back in time.
	src := &scripted{steps: []step{
		{bars: []market.Bar{bar(0, 100)}},
		{bars: []market.Bar{bar(0, 100.5)}},
		{bars: []market.Bar{bar(0, 100), bar(1, 100.05), bar(2, 100.1)}},
		{bars: []market.Bar{bar(1, 50)}},
	}}
	e, m := newEngine(t, src, nil)

	for range 4 {
		require.NoError(t, e.iterate(context.Background()))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.BarsTotal.WithLabelValues("SPY")))
	assert.Equal(t, 1, e.Ledger().Len(), "stale bars never reach the machine")
	bars := e.Snapshot(0).Bars
	require.Len(t, bars, 3)
	assert.Equal(t, 100.1, bars[2].Close)
}

func TestFetchErrorsLeaveStateUnchanged(t *testing.T) {
	t.Parallel()

	src := &scripted{steps: []step{
		{bars: []market.Bar{bar(0, 100)}},
		{err: &feed.FetchError{Provider: "test", Symbol: "SPY", Err: errors.New("timeout")}},
		{bars: nil},
		{bars: []market.Bar{bar(1, 99.8)}},
	}}
	e, m := newEngine(t, src, nil)
	ctx := context.Background()

	require.NoError(t, e.iterate(ctx))
	before := e.Position()

	var fe *feed.FetchError
	require.ErrorAs(t, e.iterate(ctx), &fe)
	err := e.iterate(ctx)
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, feed.ErrNoData)
	assert.Equal(t, before, e.Position())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchErrors.WithLabelValues("SPY")))

	require.NoError(t, e.iterate(ctx))
	assert.Equal(t, strategy.Flat, e.Position().Side)
}

func TestMalformedBarDiscarded(t *testing.T) {
	t.Parallel()

	bad := bar(1, 100)
	bad.Close = 0
	src := &scripted{steps: []step{
		{bars: []market.Bar{bar(0, 100)}},
		{bars: []market.Bar{bar(0, 100), bad, bar(2, 99.8)}},
	}}
	e, m := newEngine(t, src, nil)

	require.NoError(t, e.iterate(context.Background()))
	require.NoError(t, e.iterate(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarsSkipped.WithLabelValues("SPY", "malformed")))
	trades := e.Ledger().Snapshot()
	require.Len(t, trades, 2)
	assert.Equal(t, journal.StopLoss, trades[1].Reason)
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()

	src := &scripted{steps: []step{{panic: true}, {bars: []market.Bar{bar(0, 100)}}}}
	e, _ := newEngine(t, src, nil)

	err := e.iterate(context.Background())
	assert.ErrorContains(t, err, "iteration panic")

	require.NoError(t, e.iterate(context.Background()))
	assert.Equal(t, 1, e.Ledger().Len())
}

func TestPersistenceFailureIsRetried(t *testing.T) {
	t.Parallel()

	src := &scripted{steps: []step{
		{bars: []market.Bar{bar(0, 100)}},
		{bars: []market.Bar{bar(0, 100), bar(1, 100.05)}},
	}}
	store := &memStore{fail: 1}
	e, m := newEngine(t, src, store)

	var pe *journal.PersistenceError
	require.ErrorAs(t, e.iterate(context.Background()), &pe)
	assert.Empty(t, store.saves)
	assert.Equal(t, 1, e.Ledger().Len(), "in-memory ledger stays authoritative")

	require.NoError(t, e.iterate(context.Background()))
	require.Len(t, store.saves, 1)
	assert.Len(t, store.last(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistErrors.WithLabelValues("SPY")))
}

func TestStopForceClosesOpenPosition(t *testing.T) {
	t.Parallel()

	src := &scripted{steps: []step{
		{bars: []market.Bar{bar(0, 100)}},
		{bars: []market.Bar{bar(1, 100.05)}},
	}}
	store := &memStore{}
	e, m := newEngine(t, src, store)
	ctx := context.Background()
	require.NoError(t, e.iterate(ctx))
	require.NoError(t, e.iterate(ctx))

	require.NoError(t, e.Stop())

	trades := e.Ledger().Snapshot()
	require.Len(t, trades, 2)
	sell := trades[1]
	assert.Equal(t, journal.ManualStop, sell.Reason)
	assert.Equal(t, 100.05, sell.Price)
	assert.Equal(t, bar(1, 0).Time, sell.Time)
	assert.InDelta(t, 0.05, sell.Profit, 1e-9)
	assert.Equal(t, trades, store.last())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PositionOpen.WithLabelValues("SPY")))

	// Idempotent, and no further iterations run.
	require.NoError(t, e.Stop())
	require.NoError(t, e.iterate(ctx))
	assert.Equal(t, 2, e.Ledger().Len())
	assert.True(t, e.Snapshot(0).Stopped)
}

func TestStopWhileFlatIsNoop(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	e, _ := newEngine(t, &scripted{steps: []step{{bars: []market.Bar{bar(0, 100)}}}}, store)
	require.NoError(t, e.Stop())
	assert.Zero(t, e.Ledger().Len())
	assert.Empty(t, store.saves)
}

func TestStopReportsFinalPersistError(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	e, _ := newEngine(t, &scripted{steps: []step{{bars: []market.Bar{bar(0, 100)}}}}, store)
	require.NoError(t, e.iterate(context.Background()))

	store.mu.Lock()
	store.fail = 1
	store.mu.Unlock()

	var pe *journal.PersistenceError
	require.ErrorAs(t, e.Stop(), &pe)
	assert.ErrorAs(t, e.Stop(), &pe, "same result on repeat")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	var bars []market.Bar
	for i := range 50 {
		bars = append(bars, bar(i, 100+float64(i%7)*0.03))
	}
	src := feed.NewReplay("SPY", bars)
	store := &memStore{}
	m := metrics.New(nil)
	e, err := New(testConfig(), Options{Source: src, Store: store, Metrics: m, PollInterval: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.Ledger().Len() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	trades := e.Ledger().Snapshot()
	require.NoError(t, journal.Validate(trades))
	_, open := e.Ledger().Open()
	assert.False(t, open, "stop closes the position")
	assert.Equal(t, trades, store.last())
	assert.ErrorIs(t, e.Run(context.Background()), ErrAlreadyRunning)
}

func TestRunReturnsAfterStop(t *testing.T) {
	t.Parallel()

	src := &scripted{steps: []step{{bars: []market.Bar{bar(0, 100)}}}}
	e, err := New(testConfig(), Options{Source: src, PollInterval: time.Hour})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- e.Run(context.Background()) }()
	require.Eventually(t, func() bool { return e.Ledger().Len() == 1 }, 5*time.Second, time.Millisecond)

	require.NoError(t, e.Stop())
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, 2, e.Ledger().Len())
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	src := feed.NewReplay("SPY", []market.Bar{bar(0, 100), bar(1, 99.8), bar(2, 100.3), bar(3, 99.9)})
	e, _ := newEngine(t, src, nil)
	for range 4 {
		require.NoError(t, e.iterate(context.Background()))
	}

	s := e.Snapshot(1)
	assert.Equal(t, "SPY", s.Symbol)
	assert.Len(t, s.Bars, 4)
	require.Len(t, s.Buys, 1)
	assert.Equal(t, 100.3, s.Buys[0].Price, "last buy only")
	require.Len(t, s.Sells, 1)
	assert.Len(t, s.Trades, 4)
	assert.Equal(t, strategy.Flat, s.Position.Side)
	assert.False(t, s.Stopped)
	assert.NotEmpty(t, s.Logs)

	all := e.Snapshot(0)
	assert.Len(t, all.Buys, 2)
}

func TestResumeFromLedger(t *testing.T) {
	t.Parallel()

	ledger := journal.NewLedger(journal.Trade{Type: journal.Buy, Price: 100, Time: t0})
	src := &scripted{steps: []step{{bars: []market.Bar{bar(1, 100.25)}}}}
	e, err := New(testConfig(), Options{Source: src, Ledger: ledger})
	require.NoError(t, err)
	assert.Equal(t, strategy.Long, e.Position().Side)

	require.NoError(t, e.iterate(context.Background()))
	trades := e.Ledger().Snapshot()
	require.Len(t, trades, 2)
	assert.Equal(t, journal.TakeProfit, trades[1].Reason)
}

func TestResumeRearmsTrailingStop(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Strategy.TrailingStop = 0.001
	ledger := journal.NewLedger(journal.Trade{Type: journal.Buy, Price: 100, Time: t0})

	// The source still holds the bars the previous session saw after entry.
	src := &scripted{steps: []step{{bars: []market.Bar{bar(1, 100.1), bar(2, 100.15), bar(3, 100.04)}}}}
	e, err := New(cfg, Options{Source: src, Ledger: ledger})
	require.NoError(t, err)

	require.NoError(t, e.iterate(context.Background()))
	trades := e.Ledger().Snapshot()
	require.Len(t, trades, 2)
	assert.Equal(t, journal.TrailingStop, trades[1].Reason)
	assert.Equal(t, 100.04, trades[1].Price)
}

func TestEnginesShareOneLogHookAndDetachOnStop(t *testing.T) {
	t.Parallel()

	logger := logging.Discard()
	src := &scripted{steps: []step{{bars: []market.Bar{bar(0, 100)}}}}

	var engines []*Engine
	for range 10 {
		e, err := New(testConfig(), Options{Source: src, Logger: logger})
		require.NoError(t, err)
		engines = append(engines, e)
	}
	assert.Len(t, logger.Hooks[logrus.InfoLevel], 1)

	first := engines[0]
	require.NoError(t, first.iterate(context.Background()))
	require.NoError(t, first.Stop())
	stopped := first.Logs().Len()
	require.NotZero(t, stopped)

	// The stopped engine's buffer no longer receives the symbol's lines.
	require.NoError(t, engines[1].iterate(context.Background()))
	assert.Equal(t, stopped, first.Logs().Len())
	assert.NotZero(t, engines[1].Logs().Len())
	assert.Contains(t, first.Snapshot(0).Logs[stopped-1], "engine stopped")
}
