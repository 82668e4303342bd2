package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aviaryhq/aviary-go/internal/logger"
)

// bucket is a refillable token bucket for a single caller.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// RateLimiter enforces a per-caller request budget. Each caller gets its own
// token bucket of rps tokens refilling at rps per second, so one noisy API
// key cannot starve every other client of the shared budget.
type RateLimiter struct {
	rps       float64
	buckets   map[string]*bucket
	mu        sync.Mutex
	idleAfter time.Duration
	lastSweep time.Time
}

// NewRateLimiter creates a rate limiter allowing rps requests per second
// per caller.
func NewRateLimiter(rps int) *RateLimiter {
	if rps <= 0 {
		rps = 1000 // default
	}
	return &RateLimiter{
		rps:       float64(rps),
		buckets:   make(map[string]*bucket),
		idleAfter: 5 * time.Minute,
		lastSweep: time.Now(),
	}
}

// Allow reports whether the caller identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.rps, lastRefill: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastRefill).Seconds() * rl.rps
	if b.tokens > rl.rps {
		b.tokens = rl.rps
	}
	b.lastRefill = now
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// sweep drops buckets that have been idle long enough to have fully
// refilled anyway. Caller must hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.idleAfter {
		return
	}
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.idleAfter {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// callerKey identifies the caller for rate-limiting purposes: the bearer
// token when the request carries one, otherwise X-Forwarded-For, otherwise
// the remote address.
func callerKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token := strings.TrimPrefix(auth, "Bearer "); token != auth && token != "" {
		return token
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// RateLimit returns a middleware that enforces per-caller rate limiting.
func RateLimit(rps int) func(next http.Handler) http.Handler {
	limiter := NewRateLimiter(rps)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := callerKey(r)
			if !limiter.Allow(key) {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("rate limit exceeded")

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"Too Many Requests","message":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
