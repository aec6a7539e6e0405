package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/app"
	"github.com/ynkmn/reactoruq/internal/config"
)

var (
	// Global flags
	configPath string
	logLevel   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "reactoruq",
	Short: "reactoruq - Bayesian calibration of reactor models",
	Long: `reactoruq calibrates the parameters of an external reactor model
against measured data with Markov chain Monte Carlo.

Commands:
  run        - Sample the posterior of a model description
  simulate   - Generate a synthetic dataset for a built-in reactor model
  forward    - Evaluate a built-in reactor model through files
  summarize  - Print diagnostics for an exported trace
  predict    - Posterior predictive band from an exported trace

Example:
  reactoruq simulate --kind linear --points 50 --out data.csv
  reactoruq run model.yaml --draws 2000 --chains 4
  reactoruq summarize trace.csv
  reactoruq predict model.yaml trace.csv --samples 100`,
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (or set REACTORUQ_* variables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print chain progress")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(forwardCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(predictCmd)
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return app.NewLogger(cfg.Log)
}

// logVerbose logs a message if verbose mode is enabled
func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[reactoruq] "+format+"\n", args...)
	}
}
