package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/intraday/config"
	"github.com/rustyeddy/intraday/feed"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/logging"
	"github.com/rustyeddy/intraday/market"
)

// loadConfig reads path, or returns the defaults when path is empty or is
// the untouched default name and does not exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(lc config.LogConfig) (*logrus.Logger, io.Closer, error) {
	loc, err := lc.Location()
	if err != nil {
		return nil, nil, err
	}
	return logging.New(logging.Options{
		Level:    lc.Level,
		Format:   lc.Format,
		File:     lc.File,
		Location: loc,
	})
}

func alpacaOptions(fc config.FeedConfig) feed.AlpacaOptions {
	return feed.AlpacaOptions{
		APIKey:    os.Getenv("APCA_API_KEY_ID"),
		APISecret: os.Getenv("APCA_API_SECRET_KEY"),
		BaseURL:   fc.BaseURL,
		Feed:      fc.AlpacaFeed,
	}
}

// newSource builds the live bar source. A CSV file is replayed one bar per
// poll, which turns `run` into a paced simulation.
func newSource(fc config.FeedConfig, symbol string) (feed.Source, error) {
	switch fc.Provider {
	case "yahoo":
		return feed.NewYahoo(fc.BaseURL), nil
	case "alpaca":
		return feed.NewAlpaca(alpacaOptions(fc)), nil
	case "oanda":
		return feed.NewOanda(fc.BaseURL, os.Getenv("OANDA_API_TOKEN")), nil
	case "csv":
		bars, err := feed.LoadCSV(fc.CSVFile)
		if err != nil {
			return nil, fmt.Errorf("load bars: %w", err)
		}
		return feed.NewReplay(symbol, bars), nil
	case "dukascopy":
		return nil, fmt.Errorf("dukascopy archives have no live feed; use backtest")
	}
	return nil, fmt.Errorf("unknown feed provider %q", fc.Provider)
}

func newHistory(fc config.FeedConfig) (feed.History, error) {
	switch fc.Provider {
	case "yahoo":
		return feed.NewYahoo(fc.BaseURL), nil
	case "alpaca":
		return feed.NewAlpaca(alpacaOptions(fc)), nil
	case "oanda":
		return feed.NewOanda(fc.BaseURL, os.Getenv("OANDA_API_TOKEN")), nil
	case "csv":
		return feed.CSVFile{Path: fc.CSVFile}, nil
	case "dukascopy":
		return feed.NewDukascopy(fc.BaseURL, fc.CacheDir), nil
	}
	return nil, fmt.Errorf("unknown feed provider %q", fc.Provider)
}

// stores hands out one ledger store per engine. CSV ledgers get one file
// per symbol and session. SQLite engines share a database and get a run each.
type stores struct {
	cfg     *config.Config
	mode    string
	started time.Time
	sqlite  *journal.SQLite
}

func openStores(cfg *config.Config, mode string) (*stores, error) {
	s := &stores{cfg: cfg, mode: mode, started: time.Now().UTC()}
	if cfg.Journal.Type == "sqlite" {
		db, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.sqlite = db
	}
	return s, nil
}

// open returns the store for symbol and, when resume is set, the trades of
// the symbol's latest ledger. A resumed CSV ledger keeps being written in
// place; a resumed SQLite run is copied into a new run.
func (s *stores) open(ctx context.Context, symbol string, interval time.Duration, resume bool) (journal.Store, []journal.Trade, string, error) {
	switch s.cfg.Journal.Type {
	case "csv":
		return s.openCSV(symbol, interval, resume)
	case "sqlite":
		return s.openRun(ctx, symbol, interval, resume)
	}
	return journal.Discard{}, nil, "", nil
}

func (s *stores) openCSV(symbol string, interval time.Duration, resume bool) (journal.Store, []journal.Trade, string, error) {
	jc := s.cfg.Journal
	if resume {
		path, ok, err := jc.LatestCSV(symbol, interval)
		if err != nil {
			return nil, nil, "", err
		}
		if ok {
			trades, err := journal.ReadCSV(path)
			if err != nil {
				return nil, nil, "", fmt.Errorf("resume %s: %w", path, err)
			}
			store, err := journal.NewCSV(path)
			if err != nil {
				return nil, nil, "", err
			}
			return store, trades, path, nil
		}
	}

	path := jc.CSVPath(symbol, interval, s.started)
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		return nil, nil, "", fmt.Errorf("ledger %s already exists; refusing to overwrite it", path)
	}
	store, err := journal.NewCSV(path)
	if err != nil {
		return nil, nil, "", err
	}
	return store, nil, path, nil
}

func (s *stores) openRun(ctx context.Context, symbol string, interval time.Duration, resume bool) (journal.Store, []journal.Trade, string, error) {
	var (
		seed []journal.Trade
		from string
	)
	if resume {
		prev, ok, err := s.sqlite.LatestRun(ctx, symbol, market.FormatInterval(interval), s.mode)
		if err != nil {
			return nil, nil, "", fmt.Errorf("resume: %w", err)
		}
		if ok {
			if seed, err = s.sqlite.LoadTrades(ctx, prev.ID); err != nil {
				return nil, nil, "", fmt.Errorf("resume run %s: %w", prev.ID, err)
			}
			from = prev.ID
		}
	}

	raw, _ := json.Marshal(s.cfg.Engine)
	run, err := s.sqlite.NewRun(ctx, journal.RunInfo{
		Symbol:   symbol,
		Interval: market.FormatInterval(interval),
		Mode:     s.mode,
		Created:  s.started,
		Config:   string(raw),
	})
	if err != nil {
		return nil, nil, "", err
	}
	// The new run starts with the resumed ledger so the next resume finds
	// it even if this session never trades.
	if len(seed) > 0 {
		if err := run.Save(ctx, seed); err != nil {
			return nil, nil, "", err
		}
	}

	where := s.cfg.Journal.DBPath + "#" + run.Info().ID
	if from != "" {
		where += " (resumed from " + from + ")"
	}
	return run, seed, where, nil
}

func (s *stores) Close() error {
	if s.sqlite != nil {
		return s.sqlite.Close()
	}
	return nil
}

func symbolsOr(override []string, cfg *config.Config) []string {
	if len(override) > 0 {
		return override
	}
	return cfg.Engine.Symbols
}

// parseWhen accepts RFC3339, "2006-01-02T15" or "2006-01-02", in UTC.
func parseWhen(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02T15", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q: want RFC3339 or YYYY-MM-DD[THH]", s)
}

// historyRange resolves --from/--to. CSV files default to everything; remote
// providers default to the last five days.
func historyRange(provider, from, to string) (time.Time, time.Time, error) {
	f, err := parseWhen(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	t, err := parseWhen(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if provider == "csv" {
		return f, t, nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	if f.IsZero() {
		f = t.Add(-5 * 24 * time.Hour)
	}
	if !t.After(f) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return f, t, nil
}
