package transport

import (
	"math/rand"
	"time"
)

const (
	// DefaultBaseDelay is the backoff delay before the first reconnect
	// attempt.
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultMaxDelay caps the backoff delay.
	DefaultMaxDelay = 30 * time.Second
)

// backoffDelay returns the full-jitter exponential delay for the given
// 1-based attempt: a random duration in [0, min(base*2^(attempt-1), max)).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}

	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return time.Duration(rand.Int63n(int64(d)))
}
