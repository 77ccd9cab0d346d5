// Package main provides the CLI entry point for PromptLens.
//
// PromptLens runs prompt experiments in front of LLM calls: each call is
// served one prompt variant, and a metric record of the call is batched to a
// collector service.
//
// # Basic Usage
//
// Run the metrics collector:
//
//	promptlens serve --config promptlens.yaml
//
// Send a chat call through an experiment:
//
//	promptlens chat --provider openai --experiment greeting "Say hi"
//
// Inspect collected metrics:
//
//	promptlens metrics query --experiment greeting
//	promptlens metrics stats --experiment greeting
//
// # Environment Variables
//
//   - PROMPTLENS_CONFIG: Path to configuration file (default: promptlens.yaml)
//   - PROMPTLENS_API_KEY: PromptLens API key, overrides api_key
//   - OPENAI_API_KEY: OpenAI API key for `chat --provider openai`
//   - ANTHROPIC_API_KEY: Anthropic API key for `chat --provider anthropic`
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/promptlens/internal/version"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	commit = "none"
	date   = "unknown"

	configPath string
	debug      bool
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "promptlens",
		Short: "PromptLens - prompt experiments and metrics for LLM calls",
		Long: `PromptLens serves prompt variants to LLM calls by round-robin, random,
or weighted selection, and records latency and model metrics per call.

Run "promptlens serve" to host a metrics collector, "promptlens chat" to send
a provider call through an experiment, and "promptlens metrics" to read
results back.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML or JSON5 configuration file (or set "+configEnv+")")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMetricsCmd(),
		buildExperimentCmd(),
		buildPromptCmd(),
		buildChatCmd(),
		buildConfigCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}
