package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ynkmn/reactoruq/internal/diagnostics"
	"github.com/ynkmn/reactoruq/internal/export"
)

var (
	hdiProb    float64
	jsonOutput bool
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [flags] trace.csv",
	Short: "Print diagnostics for an exported trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func init() {
	summarizeCmd.Flags().Float64Var(&hdiProb, "hdi-prob", diagnostics.DefaultHDIProb, "Mass of the highest density interval")
	summarizeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the summary as JSON")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	traces, err := export.ReadTraceCSV(f)
	if err != nil {
		return err
	}
	summary := diagnostics.SummarizeTraces(traces, hdiProb)

	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	if err := diagnostics.Render(w, summary); err != nil {
		return err
	}
	for _, warning := range diagnostics.Warnings(summary) {
		fmt.Fprintln(w, "warning:", warning)
	}
	return nil
}
