// Package observability provides Prometheus metrics, HTTP metrics middleware,
// and logger construction for the digsite service.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HashBuckets defines histogram buckets suited for password hashing, which
// is deliberately slow: 5ms to 5s.
var HashBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route pattern.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digsite_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route pattern.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digsite_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthFailuresTotal counts rejected authentication attempts by reason
	// (missing, invalid, expired, credentials).
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digsite_auth_failures_total",
			Help: "Authentication failures",
		},
		[]string{"reason"},
	)

	// AuthzDeniedTotal counts authorization denials by HTTP status.
	AuthzDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digsite_authz_denied_total",
			Help: "Authorization denials",
		},
		[]string{"status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digsite_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"rule"},
	)

	// RateLimitErrorsTotal counts limiter backend failures.
	RateLimitErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digsite_ratelimit_errors_total",
			Help: "Rate limiter backend errors",
		},
		[]string{"backend"},
	)

	// PasswordHashDuration records the time spent in hash and verify calls,
	// including time waiting for a pool slot.
	PasswordHashDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "digsite_password_hash_duration_seconds",
			Help:    "Password hashing duration",
			Buckets: HashBuckets,
		},
		[]string{"op"},
	)

	// PasswordPoolInUse tracks busy hashing workers.
	PasswordPoolInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "digsite_password_pool_in_use",
			Help: "Busy password hashing workers",
		},
	)

	// ResetTokensIssuedTotal counts password reset tokens handed to the notifier.
	ResetTokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "digsite_reset_tokens_issued_total",
			Help: "Password reset tokens issued",
		},
	)

	// ResetTokensPurgedTotal counts expired or consumed reset tokens removed by the janitor.
	ResetTokensPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "digsite_reset_tokens_purged_total",
			Help: "Password reset tokens purged",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthFailuresTotal,
		AuthzDeniedTotal,
		RateLimitRejectedTotal,
		RateLimitErrorsTotal,
		PasswordHashDuration,
		PasswordPoolInUse,
		ResetTokensIssuedTotal,
		ResetTokensPurgedTotal,
	)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
