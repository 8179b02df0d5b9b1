// Package worker provides the switchboard worker service.
package worker

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a token bucket: capacity burst, refilled at rate tokens
// per second. Tokens accrue lazily on each Allow call.
type RateLimiter struct {
	lastUpdate time.Time
	rate       float64
	burst      int
	tokens     float64
	requests   int64
	rejected   int64
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests per second with
// bursts up to burst. The bucket starts full.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow reports whether one more request fits the budget, consuming a
// token when it does.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.requests++

	now := time.Now()
	elapsed := now.Sub(rl.lastUpdate).Seconds()
	rl.tokens += elapsed * rl.rate
	if rl.tokens > float64(rl.burst) {
		rl.tokens = float64(rl.burst)
	}
	rl.lastUpdate = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	rl.rejected++
	return false
}

// Stats returns the limiter's counters.
func (rl *RateLimiter) Stats() map[string]any {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]any{
		"rate":           rl.rate,
		"burst":          rl.burst,
		"current_tokens": rl.tokens,
		"total_requests": rl.requests,
		"rejected":       rl.rejected,
		"rejection_rate": float64(rl.rejected) / max(float64(rl.requests), 1),
	}
}

// RateLimitMiddleware applies one shared limiter to all requests.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PerClientRateLimiter keeps one token bucket per client, dropping
// buckets idle past maxIdleTime.
type PerClientRateLimiter struct {
	lastCleanup     time.Time
	clients         map[string]*RateLimiter
	rate            float64
	burst           int
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	mu              sync.Mutex
}

// NewPerClientRateLimiter creates a per-client limiter with the given
// budget per client.
func NewPerClientRateLimiter(rate float64, burst int) *PerClientRateLimiter {
	return &PerClientRateLimiter{
		rate:            rate,
		burst:           burst,
		clients:         make(map[string]*RateLimiter),
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// getLimiter returns the bucket for key, creating it on first sight.
func (pcrl *PerClientRateLimiter) getLimiter(key string) *RateLimiter {
	pcrl.mu.Lock()
	defer pcrl.mu.Unlock()

	if time.Since(pcrl.lastCleanup) > pcrl.cleanupInterval {
		pcrl.cleanupLocked()
	}

	limiter, exists := pcrl.clients[key]
	if !exists {
		limiter = NewRateLimiter(pcrl.rate, pcrl.burst)
		pcrl.clients[key] = limiter
	}

	return limiter
}

// cleanupLocked removes idle buckets. Caller holds pcrl.mu; limiter.mu is
// always acquired while holding pcrl.mu, never the other way around.
func (pcrl *PerClientRateLimiter) cleanupLocked() {
	now := time.Now()
	var stale []string

	for key, limiter := range pcrl.clients {
		limiter.mu.Lock()
		lastUpdate := limiter.lastUpdate
		limiter.mu.Unlock()

		if now.Sub(lastUpdate) > pcrl.maxIdleTime {
			stale = append(stale, key)
		}
	}

	for _, key := range stale {
		delete(pcrl.clients, key)
	}
	pcrl.lastCleanup = now
}

// Allow reports whether a request from clientKey fits that client's
// budget.
func (pcrl *PerClientRateLimiter) Allow(clientKey string) bool {
	return pcrl.getLimiter(clientKey).Allow()
}

// Stats aggregates counters across clients. Limiters are collected under
// pcrl.mu first, then read individually, so the two locks never nest in
// the wrong order.
func (pcrl *PerClientRateLimiter) Stats() map[string]any {
	pcrl.mu.Lock()
	rate := pcrl.rate
	burst := pcrl.burst
	activeClients := len(pcrl.clients)
	limiters := make([]*RateLimiter, 0, activeClients)
	for _, limiter := range pcrl.clients {
		limiters = append(limiters, limiter)
	}
	pcrl.mu.Unlock()

	var totalRequests, totalRejected int64
	for _, limiter := range limiters {
		limiter.mu.Lock()
		totalRequests += limiter.requests
		totalRejected += limiter.rejected
		limiter.mu.Unlock()
	}

	return map[string]any{
		"rate":           rate,
		"burst":          burst,
		"active_clients": activeClients,
		"total_requests": totalRequests,
		"total_rejected": totalRejected,
	}
}

// PerClientRateLimitMiddleware applies per-client rate limiting keyed by
// the client address RealIP resolved.
func PerClientRateLimitMiddleware(limiter *PerClientRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.RemoteAddr) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
