package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/backtest"
	"github.com/rustyeddy/intraday/feed"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through the engine rules",
	Long: `Run the exit rules bar by bar over history from the configured provider.

The same state machine as the live engine is used. Bars are fetched once,
then replayed in order; malformed and out of order bars are skipped. The
resulting ledger goes to the configured journal.

Examples:
  intraday backtest -f intraday.yaml --from 2025-03-03 --to 2025-03-08
  intraday backtest --csv data/SPY_1m.csv --symbols SPY`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var (
	btSymbols  []string
	btFrom     string
	btTo       string
	btCSV      string
	btCloseEnd bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringSliceVar(&btSymbols, "symbols", nil, "symbols to test (overrides engine.symbols)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "start (UTC) like 2025-03-03 or 2025-03-03T14")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "end (UTC, exclusive)")
	backtestCmd.Flags().StringVar(&btCSV, "csv", "", "bar CSV file (switches the provider to csv)")
	backtestCmd.Flags().BoolVar(&btCloseEnd, "close-end", true, "close an open position at the last bar")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	cfg.Engine.Symbols = symbolsOr(btSymbols, cfg)
	if btCSV != "" {
		cfg.Feed.Provider = "csv"
		cfg.Feed.CSVFile = btCSV
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closer.Close()

	sc, err := cfg.Engine.Strategy()
	if err != nil {
		return err
	}
	from, to, err := historyRange(cfg.Feed.Provider, btFrom, btTo)
	if err != nil {
		return err
	}
	history, err := newHistory(cfg.Feed)
	if err != nil {
		return err
	}
	st, err := openStores(cfg, "backtest")
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	for _, sym := range cfg.Engine.Symbols {
		bars, err := history.FetchRange(ctx, sym, sc.Interval, from, to)
		if err != nil {
			return err
		}
		store, _, where, err := st.open(ctx, sym, sc.Interval, false)
		if err != nil {
			return fmt.Errorf("%s journal: %w", sym, err)
		}

		r := &backtest.Runner{
			Symbol:  sym,
			Config:  sc,
			Feed:    feed.NewReplay(sym, bars),
			Store:   store,
			Options: backtest.RunnerOptions{CloseEnd: btCloseEnd, Logger: logger},
		}
		res, err := r.Run(ctx)
		if err != nil {
			return fmt.Errorf("%s backtest: %w", sym, err)
		}
		backtest.PrintResult(os.Stdout, res)
		if where != "" {
			fmt.Printf("Ledger:        %s\n\n", where)
		}
	}
	return nil
}
