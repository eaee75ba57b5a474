package transport

import (
	"math/rand"
	"sync"
	"time"
)

// BackoffConfig configures exponential backoff.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter is the maximum extra delay as a fraction of the base delay.
	Jitter float64
}

// DefaultBackoffConfig backs off from 250ms to 10s.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    250 * time.Millisecond,
		Max:        10 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// Backoff yields growing, jittered delays between reconnect attempts.
type Backoff struct {
	mu       sync.Mutex
	config   BackoffConfig
	current  time.Duration
	attempts int
	rng      *rand.Rand
}

func NewBackoff(config BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if config.Initial <= 0 {
		config.Initial = def.Initial
	}
	if config.Max < config.Initial {
		config.Max = max(def.Max, config.Initial)
	}
	if config.Multiplier <= 1 {
		config.Multiplier = def.Multiplier
	}
	if config.Jitter < 0 {
		config.Jitter = 0
	}
	return &Backoff{
		config:  config,
		current: config.Initial,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay for the next attempt and advances.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.current
	if b.config.Jitter > 0 {
		d += time.Duration(float64(d) * b.config.Jitter * b.rng.Float64())
	}
	b.attempts++
	b.current = min(time.Duration(float64(b.current)*b.config.Multiplier), b.config.Max)
	return d
}

// Reset returns to the initial delay after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.config.Initial
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the next base delay without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
