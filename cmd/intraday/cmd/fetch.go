package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/feed"
	"github.com/rustyeddy/intraday/market"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <symbol>",
	Short: "Download history to a bar CSV file",
	Long: `Fetch bars for one symbol from the configured provider and write them
as CSV (timestamp,open,high,low,close,volume). The file can be fed back
with 'backtest --csv' or replayed live with provider csv.

Examples:
  intraday fetch EURUSD --provider dukascopy --from 2026-01-05 --to 2026-01-06 -o eurusd_1m.csv
  intraday fetch SPY --interval 5m -o spy_5m.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var (
	fetchProvider string
	fetchInterval string
	fetchFrom     string
	fetchTo       string
	fetchOutput   string
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "yahoo, alpaca, oanda or dukascopy (overrides feed.provider)")
	fetchCmd.Flags().StringVar(&fetchInterval, "interval", "", "bar interval (overrides engine.interval)")
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "start (UTC)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "end (UTC, exclusive)")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "output CSV file (default stdout)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if fetchProvider != "" {
		cfg.Feed.Provider = fetchProvider
	}
	if cfg.Feed.Provider == "csv" {
		return fmt.Errorf("fetch needs a remote provider")
	}
	if fetchInterval != "" {
		cfg.Engine.Interval = fetchInterval
	}
	interval, err := market.ParseInterval(cfg.Engine.Interval)
	if err != nil {
		return err
	}
	from, to, err := historyRange(cfg.Feed.Provider, fetchFrom, fetchTo)
	if err != nil {
		return err
	}
	history, err := newHistory(cfg.Feed)
	if err != nil {
		return err
	}

	bars, err := history.FetchRange(cmd.Context(), args[0], interval, from, to)
	if err != nil {
		return err
	}

	out := os.Stdout
	if fetchOutput != "" {
		f, err := os.Create(fetchOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := feed.WriteCSV(out, bars); err != nil {
		return fmt.Errorf("write bars: %w", err)
	}
	if fetchOutput != "" {
		fmt.Printf("✓ Wrote %d bars to %s\n", len(bars), fetchOutput)
	}
	return nil
}
