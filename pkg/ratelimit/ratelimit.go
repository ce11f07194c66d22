// Package ratelimit implements an in-memory token bucket keyed by client.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed bool
	// Remaining is the whole tokens left after this request.
	Remaining int
	// RetryAfter is how long until the next token, zero when Allowed.
	RetryAfter time.Duration
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// Limiter gives every key `limit` tokens per window, refilled continuously.
// A new key starts with a full bucket.
type Limiter struct {
	limit  int
	window time.Duration
	rate   float64 // tokens per second
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a limiter and starts its idle-key sweeper. Call Stop to
// release it.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		rate:    float64(limit) / window.Seconds(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.sweep(max(window, time.Minute))
	return l
}

// Limit is the bucket capacity.
func (l *Limiter) Limit() int { return l.limit }

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	return l.Take(key).Allowed
}

// Take consumes one token for key if available and reports the bucket state.
func (l *Limiter) Take(key string) Decision {
	if l.limit <= 0 {
		return Decision{RetryAfter: l.window}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.limit), seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(float64(l.limit), b.tokens+now.Sub(b.seen).Seconds()*l.rate)
	b.seen = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
		return Decision{RetryAfter: wait}
	}
	b.tokens--
	return Decision{Allowed: true, Remaining: int(b.tokens)}
}

// Reset forgets key, giving it a full bucket on its next request.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len reports how many keys are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the sweeper and waits for it to exit. Safe to call twice.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Limiter) sweep(every time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle drops keys whose buckets have been full for a window; they are
// indistinguishable from new keys.
func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
