package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ynkmn/reactoruq/internal/app"
	"github.com/ynkmn/reactoruq/internal/diagnostics"
	"github.com/ynkmn/reactoruq/internal/export"
	"github.com/ynkmn/reactoruq/internal/model"
)

var (
	predictSamples int
	predictSeed    uint64
	predictJSON    bool
)

var predictCmd = &cobra.Command{
	Use:   "predict [flags] model.yaml trace.csv",
	Short: "Posterior predictive band from an exported trace",
	Long: `Re-run the forward model at randomly chosen draws of a trace and print,
per observation, the predictive mean, standard deviation and the
mean -/+ 2 sd band next to the observed value.

Examples:
  reactoruq predict model.yaml trace.csv --samples 100 --seed 7
  reactoruq predict model.yaml trace.csv --json > predictive.json`,
	Args: cobra.ExactArgs(2),
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().IntVar(&predictSamples, "samples", diagnostics.DefaultPredictiveSamples, "Draws to re-evaluate")
	predictCmd.Flags().Uint64Var(&predictSeed, "seed", 0, "Seed of the draw selection")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "Print the predictive summary as JSON")
}

func runPredict(cmd *cobra.Command, args []string) error {
	if predictSamples <= 0 {
		return fmt.Errorf("--samples must be positive, got %d", predictSamples)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := app.ModelOptions(cfg, log, nil)
	if err != nil {
		return err
	}
	m, err := model.Load(args[0], opts)
	if err != nil {
		return err
	}

	f, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	traces, err := export.ReadTraceCSV(f)
	f.Close()
	if err != nil {
		return err
	}
	logVerbose("re-evaluating %d draws of %s", predictSamples, m.Name())

	summary, err := diagnostics.Predictive(ctx, m, traces, diagnostics.PredictiveConfig{
		Samples:     predictSamples,
		Seed:        predictSeed,
		Parallelism: cfg.Sampler.ChainParallelism(),
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if predictJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	return diagnostics.RenderPredictive(w, summary)
}
