package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type countingLimiter struct {
	limit int
	calls map[string]int
}

func (l *countingLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	if l.calls == nil {
		l.calls = make(map[string]int)
	}
	l.calls[key]++
	return l.calls[key] <= l.limit, time.Now().Add(window)
}

func TestIPRateLimitMiddleware(t *testing.T) {
	limiter := &countingLimiter{limit: 2}
	h := NewIPRateLimitMiddleware(limiter, 2, time.Minute, "auth").Handler(okHandler())

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/otp/request", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if i == 2 {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, 3, limiter.calls["ip:auth:203.0.113.9"])
}

func TestVerifyAttemptLimiter(t *testing.T) {
	t.Run("blocks after max attempts per ip", func(t *testing.T) {
		l := NewVerifyAttemptLimiter(3, time.Minute)
		h := l.Handler(okHandler())

		serve := func(ip string) int {
			req := httptest.NewRequest(http.MethodPost, "/otp/verify", nil)
			req.RemoteAddr = ip
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec.Code
		}

		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, serve("192.0.2.1:1000"))
		}
		assert.Equal(t, http.StatusTooManyRequests, serve("192.0.2.1:1000"))
		assert.Equal(t, http.StatusOK, serve("192.0.2.2:1000"))
	})

	t.Run("window resets", func(t *testing.T) {
		l := NewVerifyAttemptLimiter(1, time.Minute)
		now := time.Now()
		l.now = func() time.Time { return now }

		assert.True(t, l.isAllowed("ip"))
		assert.False(t, l.isAllowed("ip"))

		now = now.Add(2 * time.Minute)
		assert.True(t, l.isAllowed("ip"))
	})
}

func TestBodyLimitMiddleware(t *testing.T) {
	h := NewBodyLimitMiddleware(8).Handler(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(true).Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	NewSecurityHeadersMiddleware(false).Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRequestLogger(t *testing.T) {
	rec := httptest.NewRecorder()
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
