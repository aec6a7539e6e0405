package main

import (
	"github.com/spf13/cobra"

	"github.com/ynkmn/reactoruq/internal/reactor"
)

var (
	fwdKind    string
	fwdFuel    string
	fwdCoolant string
)

var forwardCmd = &cobra.Command{
	Use:   "forward [flags] params.txt inputs.csv output.txt",
	Short: "Evaluate a built-in reactor model through files",
	Long: `Evaluate a built-in reactor model the way an external simulation code
would: coefficients are read one per line from the parameter file,
temperatures from the input table, and one prediction per line is written
to the output file. Model descriptions use this command as their external
executable.

Example:
  reactoruq forward --kind recalc params.txt inputs.csv reactivity.txt`,
	Args: cobra.ExactArgs(3),
	RunE: runForward,
}

func init() {
	forwardCmd.Flags().StringVar(&fwdKind, "kind", reactor.KindLinear, "Model kind")
	forwardCmd.Flags().StringVar(&fwdFuel, "fuel-column", reactor.DefaultBinding.Fuel, "Fuel temperature column")
	forwardCmd.Flags().StringVar(&fwdCoolant, "coolant-column", reactor.DefaultBinding.Coolant, "Coolant temperature column")
}

func runForward(_ *cobra.Command, args []string) error {
	m, err := reactor.Lookup(fwdKind)
	if err != nil {
		return err
	}
	return m.RunFile(reactor.FileRequest{
		InputPath:     args[0],
		ExogenousPath: args[1],
		OutputPath:    args[2],
		Binding:       reactor.Binding{Fuel: fwdFuel, Coolant: fwdCoolant},
	})
}
