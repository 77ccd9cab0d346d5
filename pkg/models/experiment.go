package models

import (
	"fmt"
	"strings"
)

// Distribution selects how variants are handed out across calls.
type Distribution string

const (
	DistributionRoundRobin Distribution = "round-robin"
	DistributionRandom     Distribution = "random"
	DistributionWeighted   Distribution = "weighted"
)

// Normalize returns the distribution with the empty value mapped to round-robin.
func (d Distribution) Normalize() Distribution {
	trimmed := Distribution(strings.ToLower(strings.TrimSpace(string(d))))
	if trimmed == "" {
		return DistributionRoundRobin
	}
	return trimmed
}

// Valid reports whether d is one of the known distributions.
func (d Distribution) Valid() bool {
	switch d.Normalize() {
	case DistributionRoundRobin, DistributionRandom, DistributionWeighted:
		return true
	default:
		return false
	}
}

// ExperimentConfig defines a named set of prompt variants and the policy used
// to choose between them.
type ExperimentConfig struct {
	ID             string       `json:"id,omitempty" yaml:"id"`
	Description    string       `json:"description,omitempty" yaml:"description"`
	PromptVariants []string     `json:"prompt_variants" yaml:"prompt_variants"`
	Distribution   Distribution `json:"distribution,omitempty" yaml:"distribution"`
	Weights        []float64    `json:"weights,omitempty" yaml:"weights"`
	TrackMetrics   bool         `json:"track_metrics,omitempty" yaml:"track_metrics"`

	// Model labels metrics when the call arguments don't name one.
	Model string `json:"model,omitempty" yaml:"model"`
}

// Validate checks the variant/weight invariants of the experiment.
func (c ExperimentConfig) Validate() error {
	if len(c.PromptVariants) == 0 {
		return fmt.Errorf("experiment %q: at least one prompt variant is required", c.ID)
	}
	if !c.Distribution.Valid() {
		return fmt.Errorf("experiment %q: unknown distribution %q", c.ID, c.Distribution)
	}
	weighted := c.Distribution.Normalize() == DistributionWeighted
	if weighted && len(c.Weights) == 0 {
		return fmt.Errorf("experiment %q: weights are required for weighted distribution", c.ID)
	}
	if !weighted && len(c.Weights) > 0 {
		return fmt.Errorf("experiment %q: weights are only valid for weighted distribution", c.ID)
	}
	if weighted {
		if len(c.Weights) != len(c.PromptVariants) {
			return fmt.Errorf("experiment %q: %d weights for %d variants", c.ID, len(c.Weights), len(c.PromptVariants))
		}
		for i, w := range c.Weights {
			if w <= 0 {
				return fmt.Errorf("experiment %q: weight %d must be positive", c.ID, i)
			}
		}
	}
	return nil
}
