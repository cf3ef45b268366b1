package auth

import (
	"sync"
	"time"
)

const (
	// DefaultLoginBurst is how many failed logins a username may accumulate.
	DefaultLoginBurst = 5
	// DefaultLoginRefill is the time until one more attempt is granted.
	DefaultLoginRefill = 30 * time.Second
)

// Throttle is a token bucket keyed by username that limits login attempts.
type Throttle struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int           // max tokens per bucket
	refillRate time.Duration // time between token refills
	lastPrune  time.Time
	now        func() time.Time
}

// bucket represents a single token bucket for a key.
type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewThrottle creates a login throttle.
func NewThrottle(capacity int, refillRate time.Duration) *Throttle {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &Throttle{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

// Allow consumes one attempt for key and reports whether it was available.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastPrune) >= t.refillRate {
		t.prune(now)
	}

	b, exists := t.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     t.capacity,
			lastRefill: now,
		}
		t.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	tokensToAdd := int(now.Sub(b.lastRefill) / t.refillRate)
	if tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, t.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(tokensToAdd) * t.refillRate)
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Reset forgets the attempts recorded for key, typically after a success.
func (t *Throttle) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buckets, key)
}

// prune drops buckets that have refilled to capacity; a new bucket starts
// full, so forgetting them changes nothing.
func (t *Throttle) prune(now time.Time) {
	for key, b := range t.buckets {
		if b.tokens+int(now.Sub(b.lastRefill)/t.refillRate) >= t.capacity {
			delete(t.buckets, key)
		}
	}
	t.lastPrune = now
}

// Len returns the number of tracked usernames.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
