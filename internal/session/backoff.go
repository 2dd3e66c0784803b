package session

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffConfig configures a decorrelated-jitter delay generator.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig matches the defaults: initial 1s, max 30s, ×2.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    1 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
	}
}

// Backoff generates reconnect delays using decorrelated jitter:
//
//	prevCapped = min(max, initial * multiplier^attempt)
//	delay      = min(max, rand[initial, 3*prevCapped])
//
// The attempt counter increments on every Next() and is reset to zero by
// Reset(). There is no maxAttempts here, and no caller in this module caps
// the number of reconnect attempts.
type Backoff struct {
	cfg BackoffConfig

	mu      sync.Mutex
	attempt int
	rng     *rand.Rand
}

// NewBackoff creates a Backoff with the given configuration. Zero-value
// fields fall back to DefaultBackoffConfig's corresponding value.
func NewBackoff(cfg BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Initial <= 0 {
		cfg.Initial = def.Initial
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	return &Backoff{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay and advances the attempt counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	prevCapped := time.Duration(math.Min(
		float64(b.cfg.Max),
		float64(b.cfg.Initial)*math.Pow(b.cfg.Multiplier, float64(b.attempt)),
	))
	b.attempt++

	lo := float64(b.cfg.Initial)
	hi := float64(3 * prevCapped)
	if hi < lo {
		hi = lo
	}
	delay := lo + b.rng.Float64()*(hi-lo)
	if delay > float64(b.cfg.Max) {
		delay = float64(b.cfg.Max)
	}
	return time.Duration(delay)
}

// Reset zeroes the attempt counter, used whenever a connection opens
// successfully.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}

// Attempt returns the current attempt count, for observability.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
