package main

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/promptlens/internal/config"
	"github.com/haasonsaas/promptlens/internal/experiments"
	"github.com/haasonsaas/promptlens/pkg/models"
)

func runExperimentList(cmd *cobra.Command) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(cfg.Experiments) == 0 {
		fmt.Fprintln(out, "No experiments configured.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDISTRIBUTION\tVARIANTS\tTRACK METRICS")
	for _, exp := range cfg.Experiments {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\n", exp.ID, exp.Distribution.Normalize(), len(exp.PromptVariants), exp.TrackMetrics)
	}
	return w.Flush()
}

type variantCount struct {
	Index   int     `json:"index"`
	Variant string  `json:"variant"`
	Count   int     `json:"count"`
	Share   float64 `json:"share"`
}

type simulation struct {
	ExperimentID string         `json:"experiment_id"`
	Distribution string         `json:"distribution"`
	Calls        int            `json:"calls"`
	Sequence     []int          `json:"sequence"`
	Variants     []variantCount `json:"variants"`
}

func runExperimentSimulate(cmd *cobra.Command, opts simulateOptions) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	exp, err := pickExperiment(cfg, opts.experimentID)
	if err != nil {
		return err
	}
	sim, err := simulate(exp, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		return writeJSONOut(out, sim)
	}
	fmt.Fprintf(out, "Experiment %s (%s), %d calls\n", sim.ExperimentID, sim.Distribution, sim.Calls)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tCOUNT\tSHARE\tVARIANT")
	for _, v := range sim.Variants {
		fmt.Fprintf(w, "%d\t%d\t%.1f%%\t%s\n", v.Index, v.Count, v.Share*100, truncate(v.Variant, 60))
	}
	return w.Flush()
}

func simulate(exp models.ExperimentConfig, opts simulateOptions) (simulation, error) {
	if opts.calls <= 0 {
		return simulation{}, fmt.Errorf("--calls must be positive")
	}
	var selOpts []experiments.Option
	if opts.seed != 0 {
		selOpts = append(selOpts, experiments.WithRand(rand.New(rand.NewPCG(opts.seed, opts.seed))))
	}
	selector := experiments.NewSelector(experiments.NewRegistry(), selOpts...)

	sim := simulation{
		ExperimentID: exp.ID,
		Distribution: string(exp.Distribution.Normalize()),
		Calls:        opts.calls,
		Sequence:     make([]int, 0, opts.calls),
		Variants:     make([]variantCount, len(exp.PromptVariants)),
	}
	for i, v := range exp.PromptVariants {
		sim.Variants[i] = variantCount{Index: i, Variant: v}
	}
	for range opts.calls {
		sel, err := selector.SelectFor(exp, opts.userID)
		if err != nil {
			return simulation{}, err
		}
		sim.Sequence = append(sim.Sequence, sel.Index)
		sim.Variants[sel.Index].Count++
	}
	for i := range sim.Variants {
		sim.Variants[i].Share = float64(sim.Variants[i].Count) / float64(opts.calls)
	}
	return sim, nil
}

// pickExperiment finds id, or the only configured experiment when id is empty.
func pickExperiment(cfg *config.Config, id string) (models.ExperimentConfig, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		if len(cfg.Experiments) == 1 {
			return cfg.Experiments[0], nil
		}
		return models.ExperimentConfig{}, fmt.Errorf("--experiment is required (%d experiments configured)", len(cfg.Experiments))
	}
	exp, ok := cfg.ExperimentsConfig().Find(id)
	if !ok {
		return models.ExperimentConfig{}, fmt.Errorf("experiment %q not found in config", id)
	}
	return exp, nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
