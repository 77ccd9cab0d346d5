package main

import (
	"time"

	"github.com/spf13/cobra"
)

// buildMetricsCmd creates the "metrics" command group for reading collected
// metrics back from a collector.
func buildMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Query collected experiment metrics",
	}
	cmd.PersistentFlags().String("url", "", "Collector base URL (default: metrics.endpoint from config)")
	cmd.PersistentFlags().String("api-key", "", "API key (default: api_key from config)")
	cmd.AddCommand(buildMetricsQueryCmd(), buildMetricsStatsCmd())
	return cmd
}

type metricsQueryOptions struct {
	experimentID string
	promptHash   string
	prompt       string
	since        time.Duration
	start        string
	end          string
	jsonOutput   bool
}

func buildMetricsQueryCmd() *cobra.Command {
	var opts metricsQueryOptions
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List metric records, newest first",
		Example: `  promptlens metrics query --experiment greeting
  promptlens metrics query --prompt "Say hello to {{name}}"
  promptlens metrics query --since 24h --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			apiKey, _ := cmd.Flags().GetString("api-key")
			return runMetricsQuery(cmd, url, apiKey, opts)
		},
	}
	cmd.Flags().StringVar(&opts.experimentID, "experiment", "", "Experiment ID")
	cmd.Flags().StringVar(&opts.promptHash, "prompt-hash", "", "SHA-256 prompt hash")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Prompt text to hash and look up")
	cmd.Flags().DurationVar(&opts.since, "since", 0, "Records from this long ago until now")
	cmd.Flags().StringVar(&opts.start, "start", "", "Range start (RFC 3339)")
	cmd.Flags().StringVar(&opts.end, "end", "", "Range end (RFC 3339, default now)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print JSON")
	return cmd
}

func buildMetricsStatsCmd() *cobra.Command {
	var experimentID string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregated metrics for an experiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			apiKey, _ := cmd.Flags().GetString("api-key")
			return runMetricsStats(cmd, url, apiKey, experimentID, jsonOutput)
		},
	}
	cmd.Flags().StringVar(&experimentID, "experiment", "", "Experiment ID")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("experiment")
	return cmd
}
