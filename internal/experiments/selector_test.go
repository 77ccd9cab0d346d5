package experiments

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/haasonsaas/promptlens/pkg/models"
)

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(7, 11)))
}

func TestSelectRoundRobinCycles(t *testing.T) {
	s := NewSelector(NewRegistry())
	variants := []string{"A", "B", "C", "D"}

	if got := s.CurrentIndex("exp"); got != -1 {
		t.Fatalf("CurrentIndex() before selection = %d, want -1", got)
	}
	for round := 0; round < 3; round++ {
		for i, want := range variants {
			got, err := s.SelectRoundRobin("exp", variants)
			if err != nil {
				t.Fatalf("SelectRoundRobin() error = %v", err)
			}
			if got != want {
				t.Fatalf("round %d pick %d = %q, want %q", round, i, got, want)
			}
			if idx := s.CurrentIndex("exp"); idx != i {
				t.Fatalf("CurrentIndex() = %d, want %d", idx, i)
			}
		}
	}
}

func TestSelectRoundRobinEmpty(t *testing.T) {
	s := NewSelector(nil)
	if _, err := s.SelectRoundRobin("exp", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.SelectRoundRobinForUser("exp", "u", []string{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if got := s.CurrentIndex("exp"); got != -1 {
		t.Fatalf("failed selection advanced index to %d", got)
	}
}

func TestRoundRobinIndependentPerExperiment(t *testing.T) {
	s := NewSelector(NewRegistry())
	variants := []string{"A", "B"}

	_, _ = s.SelectRoundRobin("one", variants)
	_, _ = s.SelectRoundRobin("one", variants)
	got, _ := s.SelectRoundRobin("two", variants)
	if got != "A" {
		t.Fatalf("second experiment started at %q, want A", got)
	}
	if s.CurrentIndex("one") != 1 || s.CurrentIndex("two") != 0 {
		t.Fatalf("unexpected indices one=%d two=%d", s.CurrentIndex("one"), s.CurrentIndex("two"))
	}
}

func TestRoundRobinIndependentPerUser(t *testing.T) {
	s := NewSelector(NewRegistry())
	variants := []string{"A", "B", "C"}

	for i := 0; i < 2; i++ {
		if _, err := s.SelectRoundRobinForUser("exp", "a", variants); err != nil {
			t.Fatalf("SelectRoundRobinForUser() error = %v", err)
		}
	}
	got, err := s.SelectRoundRobinForUser("exp", "b", variants)
	if err != nil {
		t.Fatalf("SelectRoundRobinForUser() error = %v", err)
	}
	if got != "A" {
		t.Fatalf("user b first pick = %q, want A", got)
	}
	if s.CurrentIndexForUser("exp", "a") != 1 {
		t.Fatalf("user a index = %d, want 1", s.CurrentIndexForUser("exp", "a"))
	}
	if s.CurrentIndex("exp") != -1 {
		t.Fatalf("user rotation advanced the global index to %d", s.CurrentIndex("exp"))
	}
}

func TestSharedRegistryAcrossSelectors(t *testing.T) {
	reg := NewRegistry()
	first := NewSelector(reg)
	second := NewSelector(reg)
	variants := []string{"A", "B"}

	_, _ = first.SelectRoundRobin("exp", variants)
	got, _ := second.SelectRoundRobin("exp", variants)
	if got != "B" {
		t.Fatalf("second selector got %q, want B", got)
	}
	if ids := reg.Experiments(); len(ids) != 1 || ids[0] != "exp" {
		t.Fatalf("Experiments() = %v", ids)
	}
}

func TestRoundRobinConcurrentAdvancesExactlyOnce(t *testing.T) {
	s := NewSelector(NewRegistry())
	variants := []string{"A", "B", "C", "D", "E"}
	const workers = 8
	const perWorker = 125

	counts := make([]int, len(variants))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sel, err := s.Select("exp", variants, models.DistributionRoundRobin, nil, "")
				if err != nil {
					t.Errorf("Select() error = %v", err)
					return
				}
				mu.Lock()
				counts[sel.Index]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	want := workers * perWorker / len(variants)
	for i, c := range counts {
		if c != want {
			t.Fatalf("variant %d picked %d times, want %d", i, c, want)
		}
	}
}

func TestSelectRandom(t *testing.T) {
	s := NewSelector(nil, seeded())
	variants := []string{"A", "B", "C"}
	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		got, err := s.SelectRandom(variants)
		if err != nil {
			t.Fatalf("SelectRandom() error = %v", err)
		}
		seen[got]++
	}
	for _, v := range variants {
		if seen[v] == 0 {
			t.Fatalf("variant %q never selected: %v", v, seen)
		}
	}
	if _, err := s.SelectRandom(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSelectWeightedZeroWeightsNeverChosen(t *testing.T) {
	s := NewSelector(nil, seeded())
	for i := 0; i < 500; i++ {
		got, err := s.SelectWeighted([]string{"x", "y", "z"}, []float64{1, 0, 0})
		if err != nil {
			t.Fatalf("SelectWeighted() error = %v", err)
		}
		if got != "x" {
			t.Fatalf("SelectWeighted() = %q, want x", got)
		}
	}
}

func TestSelectWeightedDistribution(t *testing.T) {
	s := NewSelector(nil, seeded())
	const trials = 20000
	ys := 0
	for i := 0; i < trials; i++ {
		got, err := s.SelectWeighted([]string{"x", "y"}, []float64{1, 3})
		if err != nil {
			t.Fatalf("SelectWeighted() error = %v", err)
		}
		if got == "y" {
			ys++
		}
	}
	ratio := float64(ys) / trials
	if ratio < 0.72 || ratio > 0.78 {
		t.Fatalf("y selected %.3f of the time, want ~0.75", ratio)
	}
}

func TestSelectWeightedInvalid(t *testing.T) {
	s := NewSelector(nil)
	tests := []struct {
		name     string
		variants []string
		weights  []float64
	}{
		{"no variants", nil, []float64{1}},
		{"nil weights", []string{"a"}, nil},
		{"length mismatch", []string{"a", "b"}, []float64{1}},
		{"negative", []string{"a", "b"}, []float64{1, -1}},
		{"zero total", []string{"a", "b"}, []float64{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.SelectWeighted(tt.variants, tt.weights); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSelectDispatch(t *testing.T) {
	s := NewSelector(NewRegistry(), seeded())
	variants := []string{"A", "B"}

	sel, err := s.Select("exp", variants, "", nil, "")
	if err != nil || sel.Index != 0 || sel.Variant != "A" {
		t.Fatalf("default mode = %+v, %v; want round-robin index 0", sel, err)
	}

	sel, err = s.Select("exp", variants, models.DistributionRoundRobin, nil, "user-1")
	if err != nil || sel.Index != 0 {
		t.Fatalf("user round-robin = %+v, %v; want index 0", sel, err)
	}
	if s.CurrentIndex("exp") != 0 {
		t.Fatalf("user selection moved global index to %d", s.CurrentIndex("exp"))
	}

	if _, err := s.Select("exp", variants, models.DistributionWeighted, nil, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("weighted without weights: expected ErrInvalidInput, got %v", err)
	}

	sel, err = s.Select("exp", variants, models.DistributionWeighted, []float64{0, 1}, "")
	if err != nil || sel.Variant != "B" || sel.Index != 1 {
		t.Fatalf("weighted = %+v, %v; want B", sel, err)
	}

	sel, err = s.Select("exp", variants, models.DistributionRandom, nil, "")
	if err != nil || sel.Variant != variants[sel.Index] {
		t.Fatalf("random = %+v, %v", sel, err)
	}

	if _, err := s.Select("exp", variants, "sticky", nil, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown mode: expected ErrInvalidInput, got %v", err)
	}
}

func TestSelectForScenario(t *testing.T) {
	s := NewSelector(NewRegistry())
	cfg := models.ExperimentConfig{
		ID:             "e1",
		PromptVariants: []string{"A", "B"},
		Distribution:   models.DistributionRoundRobin,
	}
	want := []Selection{{0, "A"}, {1, "B"}, {0, "A"}}
	for i, w := range want {
		got, err := s.SelectFor(cfg, "")
		if err != nil {
			t.Fatalf("SelectFor() error = %v", err)
		}
		if got != w {
			t.Fatalf("call %d = %+v, want %+v", i+1, got, w)
		}
	}
}
