package experiments

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/haasonsaas/promptlens/pkg/models"
)

// Selector picks prompt variants. Round-robin state is kept in the Registry it
// was built with; random and weighted picks are stateless.
type Selector struct {
	registry *Registry

	randMu sync.Mutex
	rng    *rand.Rand // nil uses the package-level source
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand makes random and weighted selection draw from r.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.rng = r
	}
}

// NewSelector creates a selector backed by registry. A nil registry gets a
// fresh private one.
func NewSelector(registry *Registry, opts ...Option) *Selector {
	if registry == nil {
		registry = NewRegistry()
	}
	s := &Selector{registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the rotation registry backing the selector.
func (s *Selector) Registry() *Registry {
	return s.registry
}

// SelectRoundRobin returns the next variant in the experiment's global rotation.
func (s *Selector) SelectRoundRobin(experimentID string, variants []string) (string, error) {
	sel, err := s.roundRobin(experimentID, variants)
	return sel.Variant, err
}

// SelectRoundRobinForUser returns the next variant in the user's own rotation.
func (s *Selector) SelectRoundRobinForUser(experimentID, userID string, variants []string) (string, error) {
	sel, err := s.roundRobinForUser(experimentID, userID, variants)
	return sel.Variant, err
}

// SelectRandom returns a uniformly chosen variant.
func (s *Selector) SelectRandom(variants []string) (string, error) {
	sel, err := s.random(variants)
	return sel.Variant, err
}

// SelectWeighted returns a variant chosen in proportion to weights.
func (s *Selector) SelectWeighted(variants []string, weights []float64) (string, error) {
	sel, err := s.weighted(variants, weights)
	return sel.Variant, err
}

// Select dispatches on mode. An empty mode means round-robin, which uses the
// per-user rotation when userID is set.
func (s *Selector) Select(experimentID string, variants []string, mode models.Distribution, weights []float64, userID string) (Selection, error) {
	switch mode.Normalize() {
	case models.DistributionRandom:
		return s.random(variants)
	case models.DistributionWeighted:
		if weights == nil {
			return Selection{}, fmt.Errorf("%w: weights must be provided for weighted distribution", ErrInvalidInput)
		}
		return s.weighted(variants, weights)
	case models.DistributionRoundRobin:
		if userID != "" {
			return s.roundRobinForUser(experimentID, userID, variants)
		}
		return s.roundRobin(experimentID, variants)
	default:
		return Selection{}, fmt.Errorf("%w: unknown distribution %q", ErrInvalidInput, mode)
	}
}

// SelectFor selects a variant for a configured experiment.
func (s *Selector) SelectFor(cfg models.ExperimentConfig, userID string) (Selection, error) {
	return s.Select(cfg.ID, cfg.PromptVariants, cfg.Distribution, cfg.Weights, userID)
}

// CurrentIndex returns the last global round-robin index for the experiment,
// or -1 if it has never been selected from.
func (s *Selector) CurrentIndex(experimentID string) int {
	return s.registry.Current(experimentID)
}

// CurrentIndexForUser returns the last round-robin index for the user, or -1.
func (s *Selector) CurrentIndexForUser(experimentID, userID string) int {
	return s.registry.CurrentForUser(experimentID, userID)
}

func (s *Selector) roundRobin(experimentID string, variants []string) (Selection, error) {
	if len(variants) == 0 {
		return Selection{}, fmt.Errorf("%w: no prompt variants provided for rotation", ErrInvalidInput)
	}
	idx := s.registry.advance(experimentID, len(variants))
	return Selection{Index: idx, Variant: variants[idx]}, nil
}

func (s *Selector) roundRobinForUser(experimentID, userID string, variants []string) (Selection, error) {
	if len(variants) == 0 {
		return Selection{}, fmt.Errorf("%w: no prompt variants provided for rotation", ErrInvalidInput)
	}
	idx := s.registry.advanceForUser(experimentID, userID, len(variants))
	return Selection{Index: idx, Variant: variants[idx]}, nil
}

func (s *Selector) random(variants []string) (Selection, error) {
	if len(variants) == 0 {
		return Selection{}, fmt.Errorf("%w: no prompt variants provided for random selection", ErrInvalidInput)
	}
	idx := s.intN(len(variants))
	return Selection{Index: idx, Variant: variants[idx]}, nil
}

func (s *Selector) weighted(variants []string, weights []float64) (Selection, error) {
	if len(variants) == 0 {
		return Selection{}, fmt.Errorf("%w: no prompt variants provided for weighted selection", ErrInvalidInput)
	}
	if weights == nil || len(weights) != len(variants) {
		return Selection{}, fmt.Errorf("%w: weights must match the number of prompt variants", ErrInvalidInput)
	}

	total := 0.0
	for i, w := range weights {
		if w < 0 {
			return Selection{}, fmt.Errorf("%w: weight %d is negative", ErrInvalidInput, i)
		}
		total += w
	}
	if total <= 0 {
		return Selection{}, fmt.Errorf("%w: weights sum to zero", ErrInvalidInput)
	}

	draw := s.uniform() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if draw < cumulative {
			return Selection{Index: i, Variant: variants[i]}, nil
		}
	}

	// Rounding can leave the draw just past the final cumulative sum.
	last := len(variants) - 1
	return Selection{Index: last, Variant: variants[last]}, nil
}

func (s *Selector) uniform() float64 {
	if s.rng == nil {
		return rand.Float64()
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rng.Float64()
}

func (s *Selector) intN(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rng.IntN(n)
}
