package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/strategy"
)

// Config represents the complete intraday configuration
type Config struct {
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Feed    FeedConfig    `json:"feed" yaml:"feed"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// EngineConfig holds the symbols to trade and the exit rules. Fractions are
// relative to the entry price (0.001 = 0.1%); durations use Go or provider
// notation ("5m", "1h", "1d").
type EngineConfig struct {
	Symbols      []string `json:"symbols" yaml:"symbols"`
	Interval     string   `json:"interval" yaml:"interval"`
	StopLoss     float64  `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit   float64  `json:"take_profit" yaml:"take_profit"`
	TrailingStop float64  `json:"trailing_stop,omitempty" yaml:"trailing_stop,omitempty"`
	MaxHold      string   `json:"max_hold" yaml:"max_hold"`
	Poll         string   `json:"poll,omitempty" yaml:"poll,omitempty"` // defaults to interval
}

// FeedConfig selects the bar source
type FeedConfig struct {
	Provider string `json:"provider" yaml:"provider"` // yahoo, alpaca, oanda, csv or dukascopy
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	CSVFile  string `json:"csv_file,omitempty" yaml:"csv_file,omitempty"`
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
	// AlpacaFeed is "iex" or "sip". Alpaca and OANDA credentials come
	// from the environment.
	AlpacaFeed string `json:"alpaca_feed,omitempty" yaml:"alpaca_feed,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level     string `json:"level" yaml:"level"`
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	File      string `json:"file,omitempty" yaml:"file,omitempty"`
	DisplayTZ string `json:"display_tz,omitempty" yaml:"display_tz,omitempty"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // empty disables /metrics
}

var (
	providers    = []string{"yahoo", "alpaca", "oanda", "csv", "dukascopy"}
	journalTypes = []string{"csv", "sqlite", "none"}
)

// LoadFromFile loads configuration from a file (JSON or YAML)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Exit rule problems come
// back as a *strategy.ConfigError.
func (c *Config) Validate() error {
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("engine.symbols is required")
	}
	seen := make(map[string]bool, len(c.Engine.Symbols))
	for _, s := range c.Engine.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("engine.symbols contains an empty symbol")
		}
		if seen[s] {
			return fmt.Errorf("engine.symbols lists %s twice", s)
		}
		seen[s] = true
	}
	if _, err := c.Engine.Strategy(); err != nil {
		return err
	}
	if _, err := c.Engine.PollInterval(); err != nil {
		return err
	}

	if !slices.Contains(providers, c.Feed.Provider) {
		return fmt.Errorf("feed.provider must be one of %s", strings.Join(providers, ", "))
	}
	if c.Feed.Provider == "csv" && c.Feed.CSVFile == "" {
		return fmt.Errorf("feed.csv_file required for csv provider")
	}

	if !slices.Contains(journalTypes, c.Journal.Type) {
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	if c.Journal.Type == "csv" && c.Journal.Dir == "" {
		return fmt.Errorf("journal dir required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path required for SQLite type")
	}

	if _, err := c.Log.Location(); err != nil {
		return err
	}
	return nil
}

// Strategy converts the engine section into exit rules and validates them.
func (e EngineConfig) Strategy() (strategy.Config, error) {
	interval, err := market.ParseInterval(e.Interval)
	if err != nil {
		return strategy.Config{}, &strategy.ConfigError{Field: "interval", Reason: err.Error()}
	}
	maxHold, err := market.ParseInterval(e.MaxHold)
	if err != nil {
		return strategy.Config{}, &strategy.ConfigError{Field: "max_hold", Reason: err.Error()}
	}
	sc := strategy.Config{
		StopLoss:     e.StopLoss,
		TakeProfit:   e.TakeProfit,
		TrailingStop: e.TrailingStop,
		MaxHold:      maxHold,
		Interval:     interval,
	}
	if err := sc.Validate(); err != nil {
		return strategy.Config{}, err
	}
	return sc, nil
}

// PollInterval is the sleep between engine iterations; zero means one bar
// interval.
func (e EngineConfig) PollInterval() (time.Duration, error) {
	if e.Poll == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.Poll)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("engine.poll must be a positive duration, got %q", e.Poll)
	}
	return d, nil
}

// sessionLayout stamps ledger file names. It sorts lexically in time order.
const sessionLayout = "2006-01-02_15-04-05"

// CSVPath is the ledger file for one symbol and session:
// <dir>/<symbol>_<session start, UTC>_<interval>_trades.csv. Every session
// gets its own file so earlier ledgers are never rewritten.
func (j JournalConfig) CSVPath(symbol string, interval time.Duration, started time.Time) string {
	name := fmt.Sprintf("%s_%s_%s_trades.csv",
		sanitize(symbol), started.UTC().Format(sessionLayout), market.FormatInterval(interval))
	return filepath.Join(j.Dir, name)
}

// LatestCSV finds the newest session ledger for symbol and interval. It
// reports false when there is none.
func (j JournalConfig) LatestCSV(symbol string, interval time.Duration) (string, bool, error) {
	pattern := fmt.Sprintf("%s_*_%s_trades.csv", sanitize(symbol), market.FormatInterval(interval))
	matches, err := filepath.Glob(filepath.Join(j.Dir, pattern))
	if err != nil {
		return "", false, err
	}

	prefix := sanitize(symbol) + "_"
	suffix := "_" + market.FormatInterval(interval) + "_trades.csv"
	var latest string
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), suffix)
		if _, err := time.Parse(sessionLayout, stamp); err != nil {
			continue
		}
		if m > latest {
			latest = m
		}
	}
	return latest, latest != "", nil
}

// Location resolves the display timezone. Empty means UTC.
func (l LogConfig) Location() (*time.Location, error) {
	if l.DisplayTZ == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(l.DisplayTZ)
	if err != nil {
		return nil, fmt.Errorf("log.display_tz: %w", err)
	}
	return loc, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Symbols:    []string{"SPY"},
			Interval:   "1m",
			StopLoss:   0.001,
			TakeProfit: 0.002,
			MaxHold:    "5m",
		},
		Feed: FeedConfig{
			Provider: "yahoo",
		},
		Journal: JournalConfig{
			Type: "csv",
			Dir:  "./trades",
		},
		Log: LogConfig{
			Level: "info",
			File:  "./logs/intraday.log",
		},
	}
}

// sanitize keeps symbols like "^NSEI" or "EUR/USD" usable as file names.
func sanitize(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '^', '*', '?', '[', ']', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, symbol)
}
