package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/observability"
)

func newTestLimiter(t *testing.T, limit int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRateLimiter(client, RateLimitConfig{RequestsPerWindow: limit, WindowDuration: time.Minute}, "test"), mr
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err := limiter.Remaining(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	t.Run("keys are independent", func(t *testing.T) {
		allowed, err := limiter.Allow(ctx, "ip:5.6.7.8")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("window does not slide", func(t *testing.T) {
		ttl, err := limiter.TTL(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, time.Minute, ttl)
	})

	t.Run("window expiry resets", func(t *testing.T) {
		mr.FastForward(61 * time.Second)
		allowed, err := limiter.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestRateLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, 1)

	_, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, limiter.Reset(ctx, "k"))

	remaining, err := limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	handler := NewRateLimitMiddleware(limiter, nil, metrics).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send("192.168.1.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	send("192.168.1.1")
	rec = send("192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retryAfter)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ThrottledTotal.WithLabelValues("rate")))

	assert.Equal(t, http.StatusOK, send("192.168.1.2").Code, "other clients are unaffected")
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	mr.Close()

	called := 0
	handler := NewRateLimitMiddleware(limiter, nil, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 3, called)
}
