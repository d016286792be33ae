package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/intraday/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage intraday configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate the file named by --config

Examples:
  intraday config init -o intraday.yaml
  intraday config validate -f intraday.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings.

Example:
  intraday config init -o intraday.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check that the file named by --config loads and passes validation.

Example:
  intraday config validate -f intraday.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "intraday.yaml", "output config file path")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  intraday run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	sc, err := cfg.Engine.Strategy()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	trailing := "off"
	if sc.TrailingStop > 0 {
		trailing = fmt.Sprintf("%.3f%%", sc.TrailingStop*100)
	}
	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	fmt.Printf("  Symbols:  %s (%s bars)\n", strings.Join(cfg.Engine.Symbols, ", "), cfg.Engine.Interval)
	fmt.Printf("  Exits:    SL %.3f%%  TP %.3f%%  trailing %s  max hold %s\n",
		sc.StopLoss*100, sc.TakeProfit*100, trailing, sc.MaxHold)
	fmt.Printf("  Feed:     %s\n", cfg.Feed.Provider)
	fmt.Printf("  Journal:  %s\n", cfg.Journal.Type)
	return nil
}
