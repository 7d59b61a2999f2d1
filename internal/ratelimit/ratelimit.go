// Package ratelimit guards the HTTP surface, primarily the backfill
// endpoint, against abusive polling.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter allows up to max hits per key within a sliding window.
type Limiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
}

// New creates a Limiter allowing max hits per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
	}
}

// Allow records a hit for key and reports whether it is within the
// limit.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

// Middleware applies the limiter per client IP, answering 429 when the
// limit is exceeded.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !l.Allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
