package main

import (
	"time"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs the metrics collector.
func buildServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the metrics collector service",
		Long: `Run the metrics collector service.

The collector accepts batches on POST /metrics, answers GET /metrics and
GET /metrics/aggregate, reports health on /healthz, and exposes Prometheus
metrics on /prometheus. Records older than the configured retention are
pruned on a cron schedule.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # SQLite store in the working directory
  promptlens serve

  # PostgreSQL or CockroachDB
  promptlens serve --driver postgres --dsn "postgres://localhost/promptlens?sslmode=disable"

  # Require a bearer key and keep 30 days of metrics
  promptlens serve --auth-key "$COLLECTOR_KEY" --retention 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.listenSet = cmd.Flags().Changed("listen")
			opts.retentionSet = cmd.Flags().Changed("retention")
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", ":8080", "Address to listen on")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "Store driver: memory, sqlite, or postgres")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "Store data source name")
	cmd.Flags().DurationVar(&opts.retention, "retention", 0, "Prune metrics older than this (0 keeps everything)")
	cmd.Flags().StringSliceVar(&opts.authKeys, "auth-key", nil, "Bearer key accepted by the API (repeatable)")
	return cmd
}

type serveOptions struct {
	listen       string
	listenSet    bool
	driver       string
	dsn          string
	retention    time.Duration
	retentionSet bool
	authKeys     []string
}
