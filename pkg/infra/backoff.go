package infra

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff yields exponentially growing, jittered delays between minDelay and maxDelay
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

func NewBackoff(min, max time.Duration, mult float64) *Backoff {
	return &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		jitter:     0.2,
		current:    min,
	}
}

// WithJitter sets the relative jitter: 0.2 spreads each delay over ±20%
func (b *Backoff) WithJitter(j float64) *Backoff {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jitter = j
	return b
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	wait := b.current
	if b.jitter > 0 {
		jitterFactor := rand.Float64()*2*b.jitter - b.jitter
		wait += time.Duration(jitterFactor * float64(b.current))
	}
	wait = min(max(wait, b.minDelay), b.maxDelay)

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
