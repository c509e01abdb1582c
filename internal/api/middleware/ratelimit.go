package middleware

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-IP rate limiting.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewRateLimiter creates a rate limiter with the given requests per second
// and burst size. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     limit,
		burst:    burst,
		now:      time.Now,
	}
}

// getLimiter returns the rate limiter for the given key, creating one if needed.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		if entry, exists = rl.limiters[key]; !exists {
			entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
			rl.limiters[key] = entry
		}
		rl.mu.Unlock()
	}

	entry.lastSeen.Store(rl.now().UnixNano())
	return entry.limiter
}

// Allow checks if a request from the given key should be allowed.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Cleanup removes limiters not used within maxAge and returns how many
// were dropped.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) int {
	cutoff := rl.now().Add(-maxAge).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Load() < cutoff {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// StartCleanup drops idle limiters every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(interval)
			}
		}
	}()
}

// Middleware limits requests per IP address.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Use X-Real-IP if set (from chi's RealIP middleware), otherwise RemoteAddr
			ip := r.Header.Get("X-Real-IP")
			if ip == "" {
				ip = r.RemoteAddr
			}

			if !rl.Allow(ip) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
