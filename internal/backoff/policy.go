// Package backoff computes jittered exponential delays and retries operations
// that fail transiently, such as metric deliveries and API calls.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration `yaml:"initial" json:"initial"`
	// Max caps every delay, jitter included.
	Max time.Duration `yaml:"max" json:"max"`
	// Factor multiplies the delay after each attempt.
	Factor float64 `yaml:"factor" json:"factor"`
	// Jitter adds up to this fraction of the base delay (0.0 to 1.0).
	Jitter float64 `yaml:"jitter" json:"jitter"`
	// MaxAttempts bounds Retry. Zero means a single attempt.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
}

// DefaultPolicy is used for metric delivery during shutdown and for API retries.
// 200ms initial, 5s max, factor 2, 10% jitter, 3 attempts.
func DefaultPolicy() Policy {
	return Policy{
		Initial:     200 * time.Millisecond,
		Max:         5 * time.Second,
		Factor:      2,
		Jitter:      0.1,
		MaxAttempts: 3,
	}
}

// Compute returns the delay to wait after the given attempt (1-indexed).
func (p Policy) Compute(attempt int) time.Duration {
	return p.computeWith(attempt, rand.Float64())
}

// computeWith is Compute with the random draw supplied, in [0, 1).
func (p Policy) computeWith(attempt int, random float64) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(factor, exp)
	total := base + base*clamp01(p.Jitter)*random
	if p.Max > 0 {
		total = math.Min(total, float64(p.Max))
	}
	return time.Duration(math.Round(total))
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
