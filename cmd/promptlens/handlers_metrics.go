package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/promptlens/internal/client"
	"github.com/haasonsaas/promptlens/internal/hashing"
)

func runMetricsQuery(cmd *cobra.Command, url, apiKey string, opts metricsQueryOptions) error {
	q, err := buildMetricsQuery(opts, time.Now())
	if err != nil {
		return err
	}
	c, err := newMetricsClient(url, apiKey)
	if err != nil {
		return err
	}
	records, err := c.QueryMetrics(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("query metrics: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return writeJSONOut(out, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No metrics found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEXPERIMENT\tMODEL\tLATENCY\tPROMPT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n",
			r.Time().UTC().Format(time.RFC3339),
			r.ExperimentID,
			r.Model,
			r.LatencyMs,
			shortHash(r.PromptHash),
		)
	}
	return w.Flush()
}

func runMetricsStats(cmd *cobra.Command, url, apiKey, experimentID string, jsonOutput bool) error {
	experimentID = strings.TrimSpace(experimentID)
	if experimentID == "" {
		return fmt.Errorf("--experiment is required")
	}
	c, err := newMetricsClient(url, apiKey)
	if err != nil {
		return err
	}
	agg, err := c.AggregateMetrics(cmd.Context(), experimentID)
	if err != nil {
		return fmt.Errorf("aggregate metrics: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSONOut(out, agg)
	}
	fmt.Fprintf(out, "Experiment:     %s\n", experimentID)
	fmt.Fprintf(out, "Total requests: %d\n", agg.TotalRequests)
	fmt.Fprintf(out, "Avg latency:    %.1fms\n", agg.AvgLatencyMs)
	if agg.TimeRange.Start != nil && agg.TimeRange.End != nil {
		fmt.Fprintf(out, "Time range:     %s .. %s\n",
			agg.TimeRange.Start.UTC().Format(time.RFC3339),
			agg.TimeRange.End.UTC().Format(time.RFC3339))
	}
	if len(agg.ModelStats) > 0 {
		fmt.Fprintln(out, "Models:")
		models := make([]string, 0, len(agg.ModelStats))
		for m := range agg.ModelStats {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			fmt.Fprintf(out, "  %-24s %d\n", m, agg.ModelStats[m])
		}
	}
	return nil
}

func buildMetricsQuery(opts metricsQueryOptions, now time.Time) (client.MetricsQuery, error) {
	q := client.MetricsQuery{
		ExperimentID: strings.TrimSpace(opts.experimentID),
		PromptHash:   strings.TrimSpace(opts.promptHash),
	}
	if q.PromptHash == "" && opts.prompt != "" {
		q.PromptHash = hashing.HashPrompt(opts.prompt)
	}
	if q.ExperimentID != "" || q.PromptHash != "" {
		return q, nil
	}
	switch {
	case opts.since > 0:
		q.Start, q.End = now.Add(-opts.since), now
	case opts.start != "":
		start, err := time.Parse(time.RFC3339, opts.start)
		if err != nil {
			return q, fmt.Errorf("invalid --start: %w", err)
		}
		end := now
		if opts.end != "" {
			if end, err = time.Parse(time.RFC3339, opts.end); err != nil {
				return q, fmt.Errorf("invalid --end: %w", err)
			}
		}
		q.Start, q.End = start, end
	default:
		return q, fmt.Errorf("one of --experiment, --prompt-hash, --prompt, --since or --start is required")
	}
	return q, nil
}

// newMetricsClient targets the collector rather than the API base URL.
func newMetricsClient(url, apiKey string) (*client.Client, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	if strings.TrimSpace(url) == "" {
		url = cfg.Metrics.Endpoint
	}
	return newClient(cfg, logger, url, apiKey)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
