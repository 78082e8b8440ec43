package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/observability"
	"github.com/rhuss/digsite/pkg/transport"
)

// AuthenticatedHandler serves a request whose caller has been verified.
type AuthenticatedHandler interface {
	ServeAuthenticated(w http.ResponseWriter, r *http.Request, p Principal)
}

// AuthenticatedHandlerFunc adapts a function to AuthenticatedHandler.
type AuthenticatedHandlerFunc func(w http.ResponseWriter, r *http.Request, p Principal)

// ServeAuthenticated calls f(w, r, p).
func (f AuthenticatedHandlerFunc) ServeAuthenticated(w http.ResponseWriter, r *http.Request, p Principal) {
	f(w, r, p)
}

// Authenticate returns the adapter that mounts an AuthenticatedHandler on a
// route. It runs the chain and, on Yes, binds the principal to the request
// context and calls the handler with it. Every failure is the same 401
// regardless of cause; the cause goes to the log and the failure counter.
func Authenticate(chain *AuthChain) func(AuthenticatedHandler) http.Handler {
	return func(next AuthenticatedHandler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Principal == nil {
				reason := failureReason(result.Err)
				observability.AuthFailuresTotal.WithLabelValues(reason).Inc()
				slog.Warn("authentication failed",
					"request_id", transport.RequestIDFromContext(r.Context()),
					"path", transport.LogPath(r),
					"reason", reason,
					"error", result.Err,
				)
				transport.WriteAPIError(w, api.NewUnauthenticatedError())
				return
			}

			p := *result.Principal

			// Validate principal.
			if p.UserID == "" {
				slog.Error("authenticator returned principal with empty user id", "method", p.Method)
				transport.WriteAPIError(w, api.NewServerError())
				return
			}

			slog.Debug("authentication succeeded",
				"user_id", p.UserID,
				"role", p.Role,
				"method", p.Method,
				"path", transport.LogPath(r),
			)

			r = r.WithContext(SetPrincipal(r.Context(), p))
			next.ServeAuthenticated(w, r, p)
		})
	}
}

// Optional binds a principal when the request carries valid credentials
// and otherwise serves the request anonymously. Invalid credentials are
// ignored rather than rejected.
func Optional(chain *AuthChain) transport.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := chain.Authenticate(r.Context(), r)
			if result.Decision == Yes && result.Principal != nil && result.Principal.UserID != "" {
				r = r.WithContext(SetPrincipal(r.Context(), *result.Principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive. The boolean is false when the
// header is missing, empty, or uses another scheme.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
