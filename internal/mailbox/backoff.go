package mailbox

import (
	"math/rand"
	"time"
)

// Backoff spaces out reconnect attempts after failed dials.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff waits 5s after the first failure and at most 5m.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    5 * time.Second,
		Max:    5 * time.Minute,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the delay after the given number of consecutive failures (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = time.Second
	}
	max := b.Max
	if max < min {
		max = min
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
