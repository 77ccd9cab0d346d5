package main

import (
	"github.com/spf13/cobra"
)

const (
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"
)

type chatOptions struct {
	provider     string
	experimentID string
	model        string
	userID       string
	maxTokens    int64
	jsonOutput   bool
}

// buildChatCmd creates the "chat" command.
func buildChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a chat call through an experiment",
		Long: `Send a chat call to a model provider with the user message replaced by a
prompt variant from the named experiment.

With no message arguments, chat reads one message per line from stdin and
reloads experiments when the config file changes.`,
		Example: `  # One call
  promptlens chat --provider openai --experiment greeting "Say hi"

  # Interactive, one call per line
  promptlens chat --provider anthropic --experiment greeting --user alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", providerOpenAI, "Model provider (openai, anthropic)")
	cmd.Flags().StringVarP(&opts.experimentID, "experiment", "e", "", "Experiment id (required)")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model name (default: provider default_model)")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "User id for per-user rotation")
	cmd.Flags().Int64Var(&opts.maxTokens, "max-tokens", 0, "Maximum response tokens (default: provider max_tokens)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the experiment result as JSON")
	_ = cmd.MarkFlagRequired("experiment")
	return cmd
}
