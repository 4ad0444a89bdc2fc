package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per caller.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	callers map[string]*rate.Limiter
}

// NewRateLimiter allows perMinute events per caller with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:   max(burst, 1),
		callers: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether caller may proceed now and consumes a token if so.
func (l *RateLimiter) Allow(caller string) bool {
	l.mu.Lock()
	lim, ok := l.callers[caller]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.callers[caller] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware rejects callers over their budget with 429. A nil limiter
// lets everything through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l != nil && !l.Allow(callerID(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.retryAfter().Seconds())))
			httpError(w, http.StatusTooManyRequests, "rate_limit_error", "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) retryAfter() time.Duration {
	d := time.Duration(float64(time.Second) / float64(l.limit))
	return max(d.Round(time.Second), time.Second)
}
