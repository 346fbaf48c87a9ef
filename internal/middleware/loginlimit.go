package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/edupaila/community-server-go/internal/audit"
	apperrors "github.com/edupaila/community-server-go/internal/errors"
)

const (
	DefaultVerifyMaxAttempts = 10
	DefaultVerifyWindow      = time.Minute
	verifyCleanupPeriod      = 5 * time.Minute
)

type verifyAttempt struct {
	count       int
	windowStart time.Time
}

// VerifyAttemptLimiter caps passcode guesses per client IP. State is local to
// the process.
type VerifyAttemptLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*verifyAttempt
	maxAttempts int
	window      time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

func NewVerifyAttemptLimiter(maxAttempts int, window time.Duration) *VerifyAttemptLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultVerifyMaxAttempts
	}
	if window <= 0 {
		window = DefaultVerifyWindow
	}
	return &VerifyAttemptLimiter{
		attempts:    make(map[string]*verifyAttempt),
		maxAttempts: maxAttempts,
		window:      window,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *VerifyAttemptLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < verifyCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for ip, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > l.window {
			delete(l.attempts, ip)
		}
	}
}

func (l *VerifyAttemptLimiter) isAllowed(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	attempt, exists := l.attempts[ip]
	if !exists {
		l.attempts[ip] = &verifyAttempt{count: 1, windowStart: now}
		return true
	}

	if now.Sub(attempt.windowStart) > l.window {
		attempt.count = 1
		attempt.windowStart = now
		return true
	}

	if attempt.count >= l.maxAttempts {
		return false
	}

	attempt.count++
	return true
}

func (l *VerifyAttemptLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.isAllowed(audit.ClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]any{"scope": "verify", "path": r.URL.Path},
			})
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
