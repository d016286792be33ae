package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/backtest"
	"github.com/rustyeddy/intraday/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect trade ledgers",
	Long: `Display trade ledgers written by run and backtest.

Subcommands:
  show - Print a CSV ledger and its statistics
  runs - List runs stored in a SQLite journal
  run  - Print the ledger of one SQLite run

Examples:
  intraday journal show trades/SPY_2025-03-03_14-30-05_1m_trades.csv
  intraday journal runs --db intraday.sqlite
  intraday journal run 01JAB3XQ4M0Y8Z2D8S7K3C1V5N --db intraday.sqlite`,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <ledger.csv>",
	Short: "Print a CSV ledger and its statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs in a SQLite journal",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Print the ledger of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalRunCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./intraday.sqlite", "path to SQLite journal DB")
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	trades, err := journal.ReadCSV(args[0])
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	return showLedger(os.Stdout, trades)
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSYMBOL\tINTERVAL\tMODE\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Symbol, r.Interval, r.Mode, r.Created.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	info, err := j.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	trades, err := j.LoadTrades(cmd.Context(), info.ID)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}

	fmt.Printf("Run %s: %s %s (%s) created %s\n\n",
		info.ID, info.Symbol, info.Interval, info.Mode, info.Created.UTC().Format(time.RFC3339))
	return showLedger(os.Stdout, trades)
}

// showLedger prints the trades, a warning if they break the BUY/SELL
// alternation, and the summary.
func showLedger(w io.Writer, trades []journal.Trade) error {
	if err := journal.Validate(trades); err != nil {
		fmt.Fprintf(w, "WARNING: %v\n\n", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tTIME\tPRICE\tPROFIT\tREASON")
	for i, t := range trades {
		profit := ""
		if t.IsSell() {
			profit = fmt.Sprintf("%+.4f", t.Profit)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%s\t%s\n",
			i+1, t.Type, t.Time.UTC().Format(time.RFC3339), t.Price, profit, t.Reason.Label())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	backtest.PrintSummary(w, journal.Summarize(trades))
	return nil
}
