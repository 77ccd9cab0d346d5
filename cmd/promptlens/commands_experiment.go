package main

import (
	"github.com/spf13/cobra"
)

// buildExperimentCmd creates the "experiment" command group.
func buildExperimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Inspect and simulate configured experiments",
	}
	cmd.AddCommand(buildExperimentListCmd(), buildExperimentSimulateCmd())
	return cmd
}

func buildExperimentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List experiments from the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperimentList(cmd)
		},
	}
}

type simulateOptions struct {
	experimentID string
	calls        int
	userID       string
	seed         uint64
	jsonOutput   bool
}

func buildExperimentSimulateCmd() *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run variant selection without calling a model",
		Long: `Run variant selection for an experiment and print the resulting
distribution. No model is called and no metrics are recorded.`,
		Example: `  promptlens experiment simulate --experiment greeting --calls 100
  promptlens experiment simulate --experiment tone --calls 1000 --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperimentSimulate(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.experimentID, "experiment", "", "Experiment ID (optional when only one is configured)")
	cmd.Flags().IntVarP(&opts.calls, "calls", "n", 10, "Number of selections")
	cmd.Flags().StringVar(&opts.userID, "user", "", "Simulate a single user's rotation")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Seed for random and weighted selection (0 = random)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print JSON")
	return cmd
}
