// Package ratelimit provides per-caller token bucket rate limiting.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures rate limiting. A zero RequestsPerSecond disables it.
type Config struct {
	// RequestsPerSecond is the sustained rate allowed per key.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	// BurstSize is the most requests a key may make at once. Defaults to
	// twice the rate, and at least one.
	BurstSize int `yaml:"burst_size" json:"burst_size"`
}

// Enabled reports whether the config limits anything.
func (c Config) Enabled() bool {
	return c.RequestsPerSecond > 0
}

func (c Config) burst() float64 {
	if c.BurstSize > 0 {
		return float64(c.BurstSize)
	}
	return max(1, c.RequestsPerSecond*2)
}

// bucket is a token bucket; callers hold Limiter.mu.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

func (b *bucket) refill(now time.Time, rate, capacity float64) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(capacity, b.tokens+elapsed*rate)
		b.lastRefill = now
	}
}

// Limiter rate limits independent keys such as API callers.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     float64
	capacity float64
	maxKeys  int
	now      func() time.Time
}

// NewLimiter creates a limiter, or nil when cfg is disabled. A nil Limiter
// allows everything.
func NewLimiter(cfg Config) *Limiter {
	if !cfg.Enabled() {
		return nil
	}
	return &Limiter{
		buckets:  make(map[string]*bucket),
		rate:     cfg.RequestsPerSecond,
		capacity: cfg.burst(),
		maxKeys:  10000,
		now:      time.Now,
	}
}

// Allow consumes n tokens for key. When the request is refused it returns
// how long until n tokens will be available.
func (l *Limiter) Allow(key string, n int) (bool, time.Duration) {
	if l == nil || n <= 0 {
		return true, 0
	}
	need := float64(n)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.bucketLocked(key, now)
	b.refill(now, l.rate, l.capacity)
	if b.tokens >= need {
		b.tokens -= need
		return true, 0
	}
	if need > l.capacity {
		// Never satisfiable; report the time to a full bucket.
		need = l.capacity
	}
	wait := time.Duration((need - b.tokens) / l.rate * float64(time.Second))
	return false, max(wait, time.Millisecond)
}

// Reset forgets key's usage.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *Limiter) bucketLocked(key string, now time.Time) *bucket {
	if b, ok := l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.pruneLocked(now)
	}
	b := &bucket{tokens: l.capacity, lastRefill: now}
	l.buckets[key] = b
	return b
}

// pruneLocked drops buckets that have refilled, i.e. idle keys.
func (l *Limiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		b.refill(now, l.rate, l.capacity)
		if b.tokens >= l.capacity {
			delete(l.buckets, key)
		}
	}
}
