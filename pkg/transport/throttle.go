package transport

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rhuss/digsite/pkg/api"
)

// ThrottleConfig configures the per-IP token bucket.
type ThrottleConfig struct {
	// RPS is the sustained request rate per client address. Zero disables
	// the throttle.
	RPS float64
	// Burst is the bucket size.
	Burst int
	// TrustProxy selects the client address from X-Forwarded-For.
	TrustProxy bool
	// IdleTTL is how long an unused bucket is kept. Defaults to 10 minutes.
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a coarse per-IP flood guard in front of every route. It is
// independent of the per-endpoint rate limit rules.
type Throttle struct {
	cfg ThrottleConfig
	now func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewThrottle creates a Throttle.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Throttle{cfg: cfg, now: time.Now, visitors: make(map[string]*visitor)}
}

// Allow reports whether a request from ip may proceed now. When it may not,
// the returned duration is how long until a token is available.
func (t *Throttle) Allow(ip string) (bool, time.Duration) {
	now := t.now()

	t.mu.Lock()
	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(t.cfg.RPS), t.cfg.Burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now
	t.mu.Unlock()

	res := v.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep drops buckets idle for longer than IdleTTL and returns how many
// were removed.
func (t *Throttle) Sweep() int {
	cutoff := t.now().Add(-t.cfg.IdleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for ip, v := range t.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(t.visitors, ip)
			removed++
		}
	}
	return removed
}

// Middleware returns the throttle as HTTP middleware. A zero RPS yields a
// pass-through.
func (t *Throttle) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if t.cfg.RPS <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := t.Allow(ClientIP(r, t.cfg.TrustProxy))
			if !ok {
				WriteAPIError(w, api.NewRateLimitedError(wait))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
