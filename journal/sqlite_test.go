package journal

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('runs','trades')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["runs"])
	assert.True(t, found["trades"])
}

func TestSQLiteRunSaveAndLoad(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	run, err := j.NewRun(ctx, RunInfo{Symbol: "RELIANCE.NS", Interval: "1m", Mode: "backtest"})
	require.NoError(t, err)
	assert.Len(t, run.Info().ID, 26)

	trades := sampleTrades()
	require.NoError(t, run.Save(ctx, trades[:2]))
	require.NoError(t, run.Save(ctx, trades))

	got, err := j.LoadTrades(ctx, run.Info().ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, Buy, got[0].Type)
	assert.Equal(t, NoReason, got[0].Reason)
	assert.Equal(t, Sell, got[1].Type)
	assert.Equal(t, StopLoss, got[1].Reason)
	assert.InDelta(t, -0.2, got[1].Profit, 1e-9)
	assert.InDelta(t, 99.8, got[1].Price, 1e-9)
	assert.True(t, got[1].Time.Equal(trades[1].Time))
}

func TestSQLiteRunsAreIsolated(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	a, err := j.NewRun(ctx, RunInfo{Symbol: "AAA", Interval: "1m"})
	require.NoError(t, err)
	b, err := j.NewRun(ctx, RunInfo{Symbol: "BBB", Interval: "15m"})
	require.NoError(t, err)

	require.NoError(t, a.Save(ctx, sampleTrades()))
	require.NoError(t, b.Save(ctx, sampleTrades()[:1]))

	runs, err := j.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "AAA", runs[0].Symbol)
	assert.Equal(t, "live", runs[0].Mode)
	assert.Equal(t, "15m", runs[1].Interval)

	ta, err := j.LoadTrades(ctx, a.Info().ID)
	require.NoError(t, err)
	tb, err := j.LoadTrades(ctx, b.Info().ID)
	require.NoError(t, err)
	assert.Len(t, ta, 3)
	assert.Len(t, tb, 1)
}

func TestSQLiteGetRun(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 19, 3, 45, 0, 0, time.UTC)
	run, err := j.NewRun(ctx, RunInfo{ID: "RUN-1", Symbol: "X", Interval: "1m", Created: created, Config: "stop_loss: 0.001"})
	require.NoError(t, err)
	assert.Equal(t, "RUN-1", run.Info().ID)

	got, err := j.GetRun(ctx, "RUN-1")
	require.NoError(t, err)
	assert.Equal(t, "X", got.Symbol)
	assert.Equal(t, "stop_loss: 0.001", got.Config)
	assert.True(t, got.Created.Equal(created))

	_, err = j.GetRun(ctx, "missing")
	assert.Error(t, err)

	_, err = j.NewRun(ctx, RunInfo{ID: "RUN-1", Symbol: "X", Interval: "1m"})
	assert.Error(t, err, "duplicate run id")
}

func TestSQLiteSaveCancelledContext(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	run, err := j.NewRun(context.Background(), RunInfo{Symbol: "X", Interval: "1m"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = run.Save(ctx, sampleTrades())
	var pe *PersistenceError
	assert.True(t, errors.As(err, &pe))
}

func TestSQLiteLatestRun(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	_, ok, err := j.LatestRun(ctx, "SPY", "1m", "live")
	require.NoError(t, err)
	assert.False(t, ok)

	var want string
	for _, info := range []RunInfo{
		{Symbol: "SPY", Interval: "1m", Mode: "live"},
		{Symbol: "SPY", Interval: "1m", Mode: "live"},
		{Symbol: "SPY", Interval: "1m", Mode: "backtest"},
		{Symbol: "SPY", Interval: "5m", Mode: "live"},
		{Symbol: "QQQ", Interval: "1m", Mode: "live"},
	} {
		run, err := j.NewRun(ctx, info)
		require.NoError(t, err)
		if info.Symbol == "SPY" && info.Interval == "1m" && info.Mode == "live" {
			want = run.Info().ID
		}
	}

	got, ok, err := j.LatestRun(ctx, "SPY", "1m", "live")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got.ID)
}
