package models

import "testing"

func TestDistributionNormalize(t *testing.T) {
	tests := []struct {
		in   Distribution
		want Distribution
	}{
		{"", DistributionRoundRobin},
		{"  Weighted ", DistributionWeighted},
		{"random", DistributionRandom},
		{"sticky", "sticky"},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if Distribution("sticky").Valid() {
		t.Error("expected unknown distribution to be invalid")
	}
}

func TestExperimentConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ExperimentConfig
		wantErr bool
	}{
		{
			name: "round robin",
			cfg:  ExperimentConfig{ID: "e1", PromptVariants: []string{"A", "B"}},
		},
		{
			name: "weighted",
			cfg: ExperimentConfig{
				ID:             "e2",
				PromptVariants: []string{"A", "B"},
				Distribution:   DistributionWeighted,
				Weights:        []float64{1, 3},
			},
		},
		{
			name:    "no variants",
			cfg:     ExperimentConfig{ID: "e3"},
			wantErr: true,
		},
		{
			name: "weighted without weights",
			cfg: ExperimentConfig{
				ID:             "e4",
				PromptVariants: []string{"A"},
				Distribution:   DistributionWeighted,
			},
			wantErr: true,
		},
		{
			name: "weight length mismatch",
			cfg: ExperimentConfig{
				ID:             "e5",
				PromptVariants: []string{"A", "B"},
				Distribution:   DistributionWeighted,
				Weights:        []float64{1},
			},
			wantErr: true,
		},
		{
			name: "non-positive weight",
			cfg: ExperimentConfig{
				ID:             "e6",
				PromptVariants: []string{"A", "B"},
				Distribution:   DistributionWeighted,
				Weights:        []float64{1, 0},
			},
			wantErr: true,
		},
		{
			name: "weights on random",
			cfg: ExperimentConfig{
				ID:             "e7",
				PromptVariants: []string{"A", "B"},
				Distribution:   DistributionRandom,
				Weights:        []float64{1, 1},
			},
			wantErr: true,
		},
		{
			name: "unknown distribution",
			cfg: ExperimentConfig{
				ID:             "e8",
				PromptVariants: []string{"A"},
				Distribution:   "sticky",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
