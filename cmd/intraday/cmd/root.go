package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "intraday",
	Short: "A single-position intraday trading decision engine",
	Long: `Intraday runs a single-position decision engine over price bars.

Each engine watches one symbol, always enters when flat and exits on
stop loss, take profit, trailing stop or maximum holding time. Every
decision is logged and every trade lands in an auditable ledger.

It provides tools for:
  - Running live engines against Yahoo, Alpaca or OANDA bars
  - Backtesting the same rules over CSV or provider history
  - Downloading history to CSV
  - Inspecting CSV and SQLite trade journals

Provider credentials are read from the environment or a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(envFile)
	},
}

var (
	cfgFile string
	envFile string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "intraday.yaml", "config file (YAML or JSON); empty uses defaults")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with provider credentials")
}

// loadEnv reads a dotenv file if one exists. Variables already set in the
// environment win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
