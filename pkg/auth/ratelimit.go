package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/debug"
	"github.com/rhuss/digsite/pkg/observability"
	"github.com/rhuss/digsite/pkg/transport"
)

// Verdict is the outcome of one rate limit check.
type Verdict struct {
	Allowed bool
	// Count is the number of hits in the current window, this one included.
	Count int
	Limit int
	// RetryAfter is the time left in the current window.
	RetryAfter time.Duration
}

// Remaining returns how many more hits the window allows.
func (v Verdict) Remaining() int {
	if v.Count >= v.Limit {
		return 0
	}
	return v.Limit - v.Count
}

// ErrLimiterUnavailable is wrapped by limiters that fail closed when their
// backend cannot be reached. RateLimit answers it with a 429.
var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// RateLimiter counts hits per key in fixed windows. Each call counts as a
// hit; the verdict allows it while the count is within limit.
type RateLimiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Verdict, error)
}

type fixedWindow struct {
	start  time.Time
	window time.Duration
	count  int
}

// InProcessLimiter keeps fixed-window counters in memory. Each process
// enforces its own budget, so it is only correct for a single instance.
type InProcessLimiter struct {
	now func() time.Time

	mu       sync.Mutex
	counters map[string]*fixedWindow
}

// NewInProcessLimiter creates an in-memory limiter.
func NewInProcessLimiter() *InProcessLimiter {
	return &InProcessLimiter{now: time.Now, counters: make(map[string]*fixedWindow)}
}

// Check counts a hit for key. A window resets once now reaches its start
// plus window; the first hit of a fresh window has count 1. A limit of zero
// or less disables limiting.
func (l *InProcessLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (Verdict, error) {
	if limit <= 0 {
		return Verdict{Allowed: true, Limit: limit}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || !now.Before(c.start.Add(c.window)) {
		c = &fixedWindow{start: now, window: window}
		l.counters[key] = c
	}
	c.count++

	return Verdict{
		Allowed:    c.count <= limit,
		Count:      c.count,
		Limit:      limit,
		RetryAfter: c.start.Add(c.window).Sub(now),
	}, nil
}

// Sweep removes counters whose window has ended and returns how many were
// removed.
func (l *InProcessLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, c := range l.counters {
		if !now.Before(c.start.Add(c.window)) {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}

// Rule names a limit applied to one group of endpoints.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// KeyFunc derives the client part of a rate limit key from a request.
type KeyFunc func(r *http.Request) string

// ClientKey keys requests by client address.
func ClientKey(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		return transport.ClientIP(r, trustProxy)
	}
}

// RateLimit returns middleware enforcing rule with limiter. Keys are
// rule.Name + ":" + key(r), so rules never share budgets. Rejections are
// 429 with Retry-After. A limiter failing closed (ErrLimiterUnavailable) is
// also a 429, retryable after the rule window; any other limiter error is a
// 500. Limiters that fail open absorb their own errors.
func RateLimit(limiter RateLimiter, rule Rule, key KeyFunc) transport.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, err := limiter.Check(r.Context(), rule.Name+":"+key(r), rule.Limit, rule.Window)
			if errors.Is(err, ErrLimiterUnavailable) {
				observability.RateLimitRejectedTotal.WithLabelValues(rule.Name).Inc()
				slog.Warn("rate limiter unavailable, rejecting request",
					"request_id", transport.RequestIDFromContext(r.Context()),
					"rule", rule.Name,
					"error", err,
				)
				transport.WriteAPIError(w, api.NewRateLimitedError(rule.Window))
				return
			}
			if err != nil {
				slog.Error("rate limit check failed",
					"request_id", transport.RequestIDFromContext(r.Context()),
					"rule", rule.Name,
					"error", err,
				)
				transport.WriteAPIError(w, api.NewServerError())
				return
			}

			debug.Log(debug.RateLimit, "check",
				"rule", rule.Name,
				"count", v.Count,
				"limit", v.Limit,
				"allowed", v.Allowed,
			)

			if v.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(v.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.Remaining()))
			}

			if !v.Allowed {
				observability.RateLimitRejectedTotal.WithLabelValues(rule.Name).Inc()
				slog.Warn("rate limit exceeded",
					"request_id", transport.RequestIDFromContext(r.Context()),
					"rule", rule.Name,
					"count", v.Count,
					"limit", v.Limit,
				)
				transport.WriteAPIError(w, api.NewRateLimitedError(v.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
