// Package worker provides the switchboard worker service.
package worker

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "request %d should fit the burst", i+1)
	}
	assert.False(t, rl.Allow())
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(100, 1)

	require.True(t, rl.Allow())
	require.False(t, rl.Allow())

	// 100 tokens/s puts at least one token back within 30ms.
	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestRateLimiterStats(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	rl.Allow()
	rl.Allow()
	rl.Allow()

	stats := rl.Stats()
	assert.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, int64(1), stats["rejected"])
}

func TestPerClientRateLimiterIsolatesClients(t *testing.T) {
	pcrl := NewPerClientRateLimiter(0.001, 1)

	assert.True(t, pcrl.Allow("10.0.0.1"))
	assert.False(t, pcrl.Allow("10.0.0.1"))

	// A different client has its own bucket.
	assert.True(t, pcrl.Allow("10.0.0.2"))
}

func TestPerClientRateLimiterCleansIdleClients(t *testing.T) {
	pcrl := NewPerClientRateLimiter(1, 1)
	pcrl.cleanupInterval = 0
	pcrl.maxIdleTime = 10 * time.Millisecond

	pcrl.Allow("10.0.0.1")
	time.Sleep(20 * time.Millisecond)
	pcrl.Allow("10.0.0.2")

	pcrl.mu.Lock()
	defer pcrl.mu.Unlock()
	assert.NotContains(t, pcrl.clients, "10.0.0.1")
	assert.Contains(t, pcrl.clients, "10.0.0.2")
}

func TestPerClientRateLimiterStats(t *testing.T) {
	pcrl := NewPerClientRateLimiter(0.001, 1)

	pcrl.Allow("10.0.0.1")
	pcrl.Allow("10.0.0.1")
	pcrl.Allow("10.0.0.2")

	stats := pcrl.Stats()
	assert.Equal(t, 2, stats["active_clients"])
	assert.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, int64(1), stats["total_rejected"])
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(NewRateLimiter(0.001, 1))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPerClientRateLimitMiddlewareKeysByRemoteAddr(t *testing.T) {
	handler := PerClientRateLimitMiddleware(NewPerClientRateLimiter(0.001, 1))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:1111"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.1:1111"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2:2222"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}
