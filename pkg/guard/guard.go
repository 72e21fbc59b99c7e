// Package guard gates outbound sends against accidental repeats: an
// identical-content cooldown window (double-click, retry storms) and a
// short in-flight window that rejects any send while the previous one is
// still being dispatched.
package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultCooldown is the window within which identical content is
	// treated as a duplicate rather than a legitimate repeat question.
	DefaultCooldown = 30 * time.Second

	// DefaultSendWindow is the minimum spacing between any two sends,
	// regardless of content.
	DefaultSendWindow = time.Second
)

var (
	// ErrDuplicate is returned when identical content is resent inside
	// the cooldown window.
	ErrDuplicate = errors.New("duplicate message: identical content sent moments ago")

	// ErrTooFast is returned when a send arrives while the previous one
	// is still in flight.
	ErrTooFast = errors.New("sending too fast: previous message still in flight")
)

// Stats reports guard activity counters.
type Stats struct {
	Allowed    int `json:"allowed"`
	Duplicates int `json:"duplicates"`
	Throttled  int `json:"throttled"`
}

// Guard is safe for concurrent use.
type Guard struct {
	mu       sync.Mutex
	cooldown time.Duration
	window   time.Duration
	limiter  *rate.Limiter
	lastHash string
	lastSent time.Time
	stats    Stats
	now      func() time.Time
}

// New creates a guard with the given windows. Non-positive values fall
// back to the defaults.
func New(cooldown, sendWindow time.Duration) *Guard {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if sendWindow <= 0 {
		sendWindow = DefaultSendWindow
	}
	return &Guard{
		cooldown: cooldown,
		window:   sendWindow,
		limiter:  rate.NewLimiter(rate.Every(sendWindow), 1),
		now:      time.Now,
	}
}

// Check validates a send attempt and, when allowed, records it for
// subsequent duplicate detection. Content is compared first, so a
// repeat inside the cooldown reports ErrDuplicate even when the
// in-flight window would also reject it.
func (g *Guard) Check(content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	hash := contentHash(content)
	t := g.now()

	if hash == g.lastHash && !g.lastSent.IsZero() && t.Sub(g.lastSent) <= g.cooldown {
		g.stats.Duplicates++
		return ErrDuplicate
	}

	if !g.limiter.Allow() {
		g.stats.Throttled++
		return ErrTooFast
	}

	g.lastHash = hash
	g.lastSent = t
	g.stats.Allowed++
	return nil
}

// ClearSending reopens the in-flight window immediately. The engine
// calls this when the backend reports a server-side duplicate, so the
// user can send again without waiting out the window.
func (g *Guard) ClearSending() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiter = rate.NewLimiter(rate.Every(g.window), 1)
}

// Stats returns a copy of the activity counters.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// contentHash normalizes content (trim, case-fold) and hashes it, the
// same scheme the backend uses for its own duplicate detection.
func contentHash(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
