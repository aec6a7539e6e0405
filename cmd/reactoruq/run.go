package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/app"
	"github.com/ynkmn/reactoruq/internal/config"
	"github.com/ynkmn/reactoruq/internal/diagnostics"
	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/export"
	"github.com/ynkmn/reactoruq/internal/pkg/database"
	"github.com/ynkmn/reactoruq/internal/sampler"
	"github.com/ynkmn/reactoruq/internal/service"
)

var (
	runName      string
	algorithm    string
	warmup       int
	draws        int
	chains       int
	parallelism  int
	seed         uint64
	targetAccept float64
	maxFailures  int
	traceOut     string
	summaryOut   string
	exportRun    bool
	useCache     bool
)

var runCmd = &cobra.Command{
	Use:   "run [flags] model.yaml",
	Short: "Sample the posterior of a model description",
	Long: `Run MCMC over the parameters of a model description and print the
posterior summary with convergence diagnostics.

Sampler settings come from the configuration file and can be overridden
with flags. Chains that hit the consecutive failure limit are aborted and
reported; the others run to completion.

Examples:
  # Defaults from the configuration
  reactoruq run model.yaml

  # Four chains with a fixed seed, writing the draws
  reactoruq run model.yaml --chains 4 --seed 7 --trace-out trace.csv

  # Gradient-based sampling for models with an analytic Jacobian
  reactoruq run model.yaml --algorithm hmc --target-accept 0.9`,
	Args: cobra.ExactArgs(1),
	RunE: runInference,
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Run name (defaults to the model name)")
	runCmd.Flags().StringVar(&algorithm, "algorithm", "", "Sampling algorithm (metropolis, hmc)")
	runCmd.Flags().IntVar(&warmup, "warmup", -1, "Warmup iterations per chain")
	runCmd.Flags().IntVar(&draws, "draws", 0, "Retained draws per chain")
	runCmd.Flags().IntVar(&chains, "chains", 0, "Number of chains")
	runCmd.Flags().IntVar(&parallelism, "parallelism", -1, "Concurrently running chains (0 runs all)")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed")
	runCmd.Flags().Float64Var(&targetAccept, "target-accept", 0, "Target acceptance rate")
	runCmd.Flags().IntVar(&maxFailures, "max-failures", 0, "Consecutive failed evaluations before a chain aborts")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write draws to this CSV file")
	runCmd.Flags().StringVar(&summaryOut, "summary-out", "", "Write the summary to this JSON file")
	runCmd.Flags().BoolVar(&exportRun, "export", false, "Export trace and summary to the configured store")
	runCmd.Flags().BoolVar(&useCache, "cache", false, "Cache evaluations in the configured Redis")
}

// samplerConfig applies the sampler flags the user set explicitly.
func samplerConfig(cmd *cobra.Command, defaults sampler.Config) sampler.Config {
	o := &domain.SamplerOverrides{}
	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		o.Algorithm = algorithm
	}
	if flags.Changed("warmup") {
		o.Warmup = &warmup
	}
	if flags.Changed("draws") {
		o.Draws = &draws
	}
	if flags.Changed("chains") {
		o.Chains = &chains
	}
	if flags.Changed("seed") {
		o.Seed = &seed
	}
	if flags.Changed("target-accept") {
		o.TargetAccept = &targetAccept
	}
	cfg := service.ApplyOverrides(defaults, o)
	if flags.Changed("parallelism") {
		cfg.Parallelism = parallelism
	}
	if flags.Changed("max-failures") {
		cfg.MaxConsecutiveFailures = maxFailures
	}
	return cfg
}

func runInference(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Cancel sampling on interrupt; chains stop at their next iteration
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *database.RedisDB
	if useCache {
		cfg.Cache.Enabled = true
		rdb, err = database.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn("evaluation cache unavailable, continuing without it", zap.Error(err))
		} else {
			defer rdb.Close()
		}
	}

	modelOpts, err := app.ModelOptions(cfg, log, rdb)
	if err != nil {
		return err
	}
	svc := service.NewInferenceService(service.SamplerConfig(cfg.Sampler), modelOpts,
		service.WithExporter(app.NewExporter(cfg, log, minioClient(ctx, cfg, log))),
		service.WithLogger(log),
	)

	req := service.RunRequest{
		Name:      runName,
		ModelPath: args[0],
		Sampler:   samplerConfig(cmd, svc.Defaults()),
		Export:    exportRun,
	}
	if verbose {
		req.Observer = progressObserver()
	}

	out, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}
	if err := writeOutputs(out); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s: %s (%s, %d/%d chains completed in %s)\n",
		out.Run.ID, out.Run.Status, out.Run.Algorithm,
		out.Result.Completed(), len(out.Result.Chains), out.Result.Duration.Round(time.Millisecond))
	if err := diagnostics.Render(w, out.Run.Summary); err != nil {
		return err
	}
	for _, warning := range diagnostics.Warnings(out.Run.Summary) {
		fmt.Fprintln(w, "warning:", warning)
	}
	if out.Export != nil {
		fmt.Fprintln(w, "exported:", out.Export.TraceURI)
	}

	if out.Run.Status == domain.RunStatusFailed {
		return fmt.Errorf("every chain aborted: %s", out.Run.Error)
	}
	return nil
}

// minioClient returns a client only when MinIO export is configured and
// reachable; export then falls back to the local directory.
func minioClient(ctx context.Context, cfg *config.Config, log *zap.Logger) *minio.Client {
	if !exportRun || !cfg.Export.UseMinIO {
		return nil
	}
	client, err := export.NewMinIOClient(ctx, cfg.MinIO, log)
	if err != nil {
		log.Warn("MinIO unavailable, exporting locally", zap.Error(err))
		return nil
	}
	return client
}

func writeOutputs(out *service.Outcome) error {
	if traceOut != "" {
		f, err := os.Create(traceOut)
		if err != nil {
			return fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := export.WriteTraceCSV(f, out.Result.Traces()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logVerbose("wrote draws to %s", traceOut)
	}
	if summaryOut != "" {
		data, err := json.MarshalIndent(out.Run.Summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		if err := os.WriteFile(summaryOut, data, 0o644); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		logVerbose("wrote summary to %s", summaryOut)
	}
	return nil
}

func progressObserver() sampler.Observer {
	return sampler.ObserverFuncs{
		StateChange: func(chain int, from, to domain.ChainState) {
			logVerbose("chain %d: %s -> %s", chain, from, to)
		},
	}
}
