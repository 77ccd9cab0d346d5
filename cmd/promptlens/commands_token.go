package main

import (
	"time"

	"github.com/spf13/cobra"
)

// buildTokenCmd creates the "token" command that signs collector API tokens.
func buildTokenCmd() *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the collector API",
		Long: `Issue an HS256 bearer token signed with collector.jwt_secret.

The collector accepts the token on every API route alongside any static
collector.auth_keys.`,
		Example: `  promptlens token --subject dashboard --expiry 24h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			expirySet := cmd.Flags().Changed("expiry")
			return runToken(cmd, subject, expiry, expirySet)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject, logged as the caller (required)")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "Token lifetime (default: collector.token_expiry; 0 never expires)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
