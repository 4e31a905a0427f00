package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"event-ticketing-engine/internal/clock"
)

// BuyerHeader carries the caller's user ID. Authentication happens upstream.
const BuyerHeader = "X-Buyer-ID"

// RateLimiter bounds cart mutations per buyer over a sliding window
type RateLimiter struct {
	attempts    map[string][]time.Time
	mutex       sync.Mutex
	maxAttempts int
	window      time.Duration
	clock       clock.Clock
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxAttempts int, window time.Duration, clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		attempts:    make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		clock:       clk,
	}
}

// Allow records an attempt for key and reports whether it is within the limit.
// When it is not, the returned duration is how long until the next slot frees.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.clock.Now()
	valid := prune(rl.attempts[key], now.Add(-rl.window))

	if len(valid) >= rl.maxAttempts {
		rl.attempts[key] = valid
		return false, valid[0].Add(rl.window).Sub(now)
	}

	rl.attempts[key] = append(valid, now)
	return true, 0
}

// Cleanup drops expired entries every interval until ctx is done
func (rl *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := rl.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := rl.clock.Now().Add(-rl.window)
	for key, attempts := range rl.attempts {
		if valid := prune(attempts, cutoff); len(valid) == 0 {
			delete(rl.attempts, key)
		} else {
			rl.attempts[key] = valid
		}
	}
}

func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, attempt := range attempts {
		if attempt.After(cutoff) {
			valid = append(valid, attempt)
		}
	}
	return valid
}

// RateLimit limits mutating requests per buyer, falling back to client IP
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(BuyerHeader)
			if key == "" {
				key = getClientIP(r)
			}

			if ok, wait := limiter.Allow(key); !ok {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())+1))
				writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
