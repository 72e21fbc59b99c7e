package transport

import (
	"testing"
	"time"
)

func TestBackoffDelay_WithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffDelay(base, max, attempt)
			if d < 0 {
				t.Fatalf("attempt %d: negative delay %v", attempt, d)
			}
			if d >= max {
				t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, max)
			}
		}
	}
}

func TestBackoffDelay_CeilingGrowsWithAttempts(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Hour

	// Full jitter: the observable guarantee is the upper bound, which
	// doubles per attempt until the cap.
	ceiling := func(attempt int) time.Duration {
		var seen time.Duration
		for i := 0; i < 200; i++ {
			if d := backoffDelay(base, max, attempt); d > seen {
				seen = d
			}
		}
		return seen
	}

	if c1, c4 := ceiling(1), ceiling(4); c4 <= c1 {
		t.Errorf("ceiling should grow: attempt 1 max %v, attempt 4 max %v", c1, c4)
	}
}

func TestBackoffDelay_Defaults(t *testing.T) {
	d := backoffDelay(0, 0, 3)
	if d < 0 || d >= DefaultMaxDelay {
		t.Fatalf("delay %v outside default bounds", d)
	}
}
