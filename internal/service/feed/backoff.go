package feed

import (
	"math/rand"
	"time"
)

// Backoff computes exponential reconnect delays with jitter.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // fraction of the delay, 0..1
}

func DefaultBackoff() Backoff {
	return Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: 0.2}
}

// Next returns the delay before attempt (1-based). The result never exceeds
// Max, jitter included.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	lo, hi := b.Min, b.Max
	if lo <= 0 {
		lo = 100 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2
	}

	wait := lo
	for i := 1; i < attempt && wait < hi; i++ {
		wait = time.Duration(float64(wait) * factor)
	}
	if wait > hi {
		wait = hi
	}

	if b.Jitter > 0 {
		j := b.Jitter
		if j > 1 {
			j = 1
		}
		delta := float64(wait) * j
		wait = wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
		if wait > hi {
			wait = hi
		}
		if wait < 0 {
			wait = 0
		}
	}
	return wait
}
