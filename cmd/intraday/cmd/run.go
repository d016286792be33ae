package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/intraday/backtest"
	"github.com/rustyeddy/intraday/engine"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run live engines until interrupted",
	Long: `Run one engine per configured symbol against the live bar source.

Each engine polls once per bar interval, logs every decision and rewrites
its ledger after every trade. Ctrl-C stops all engines: open positions are
closed at the last bar's price with reason MANUAL_STOP and the ledgers are
written one final time.

Examples:
  intraday run -f intraday.yaml
  intraday run --symbols AAPL,MSFT --resume`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runSymbols []string
	runResume  bool
	runPoll    time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "symbols to trade (overrides engine.symbols)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "continue each symbol's latest ledger (newest CSV file or SQLite run)")
	runCmd.Flags().DurationVar(&runPoll, "poll", 0, "time between iterations (overrides engine.poll)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	cfg.Engine.Symbols = symbolsOr(runSymbols, cfg)
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
	poll, err := cfg.Engine.PollInterval()
	if err != nil {
		return err
	}
	if runPoll > 0 {
		poll = runPoll
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr, reg)
		if err != nil {
			return err
		}
		defer metrics.Shutdown(srv)
		logger.Infof("metrics listening on http://%s/metrics", srv.Addr)
	}

	st, err := openStores(cfg, "live")
	if err != nil {
		return err
	}
	defer st.Close()

	// Build every engine first so a bad symbol stops the run before any
	// engine trades.
	engines := make([]*engine.Engine, 0, len(cfg.Engine.Symbols))
	for _, sym := range cfg.Engine.Symbols {
		src, err := newSource(cfg.Feed, sym)
		if err != nil {
			return err
		}
		store, seed, where, err := st.open(ctx, sym, sc.Interval, runResume)
		if err != nil {
			return fmt.Errorf("%s journal: %w", sym, err)
		}
		e, err := engine.New(engine.Config{Symbol: sym, Strategy: sc}, engine.Options{
			Source:       src,
			Store:        store,
			Logger:       logger,
			Metrics:      m,
			Ledger:       journal.NewLedger(seed...),
			PollInterval: poll,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", sym, err)
		}
		if where != "" {
			logger.WithField("symbol", sym).Infof("ledger: %s", where)
		}
		engines = append(engines, e)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range engines {
		g.Go(func() error { return e.Run(gctx) })
	}
	runErr := g.Wait()

	fmt.Println()
	for _, e := range engines {
		fmt.Printf("%s\n", e.Symbol())
		fmt.Println("==================================================")
		backtest.PrintSummary(os.Stdout, journal.Summarize(e.Ledger().Snapshot()))
		fmt.Println()
	}
	return runErr
}
