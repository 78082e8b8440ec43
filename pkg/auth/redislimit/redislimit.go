// Package redislimit implements auth.RateLimiter on Redis so every service
// instance draws from one budget per key.
//
// Each check is a single Lua script: INCR the counter, start the window
// with PEXPIRE on the first hit, and return the count with the remaining
// TTL. Later hits never extend the window.
package redislimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/digsite/pkg/auth"
	"github.com/rhuss/digsite/pkg/observability"
)

// DefaultPrefix namespaces limiter keys.
const DefaultPrefix = "digsite:ratelimit"

// fixedWindow returns {count, pttl_ms}. A key left without a TTL (for
// example by a crash between INCR and PEXPIRE on an older script) gets one.
var fixedWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Options configures a Limiter.
type Options struct {
	// Prefix is prepended to every key. Default: DefaultPrefix.
	Prefix string

	// FailOpen allows requests when Redis cannot be reached. When false
	// Check returns an error wrapping auth.ErrLimiterUnavailable.
	FailOpen bool
}

// Limiter is a Redis-backed fixed-window rate limiter.
type Limiter struct {
	client   redis.UniversalClient
	prefix   string
	failOpen bool
}

var _ auth.RateLimiter = (*Limiter)(nil)

// New creates a Limiter over client.
func New(client redis.UniversalClient, opts Options) *Limiter {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	return &Limiter{client: client, prefix: opts.Prefix, failOpen: opts.FailOpen}
}

// Check counts a hit for key and reports whether it is within limit.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (auth.Verdict, error) {
	if limit <= 0 {
		return auth.Verdict{Allowed: true, Limit: limit}, nil
	}

	windowMS := window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	res, err := fixedWindow.Run(ctx, l.client, []string{l.prefix + ":" + key}, windowMS).Int64Slice()
	if err == nil && len(res) != 2 {
		err = fmt.Errorf("unexpected script result %v", res)
	}
	if err != nil {
		observability.RateLimitErrorsTotal.WithLabelValues("redis").Inc()
		if l.failOpen {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			return auth.Verdict{Allowed: true, Limit: limit}, nil
		}
		return auth.Verdict{Limit: limit}, fmt.Errorf("%w: redis: %w", auth.ErrLimiterUnavailable, err)
	}

	count := int(res[0])
	return auth.Verdict{
		Allowed:    count <= limit,
		Count:      count,
		Limit:      limit,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+":"+key).Err()
}

// Ping checks that Redis is reachable.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
