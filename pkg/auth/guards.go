package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/observability"
	"github.com/rhuss/digsite/pkg/storage"
	"github.com/rhuss/digsite/pkg/transport"
)

// Policy decides whether principal p may proceed with request r. It returns
// nil to admit, or the APIError to respond with.
type Policy func(r *http.Request, p Principal) *api.APIError

// Guard wraps an AuthenticatedHandler with an authorization check.
type Guard func(AuthenticatedHandler) AuthenticatedHandler

// Require builds a guard that admits only when every policy admits. The
// first refusal is written and the handler is not called.
func Require(policies ...Policy) Guard {
	check := AllOf(policies...)
	return func(next AuthenticatedHandler) AuthenticatedHandler {
		return AuthenticatedHandlerFunc(func(w http.ResponseWriter, r *http.Request, p Principal) {
			if apiErr := check(r, p); apiErr != nil {
				status := transport.HTTPStatusFromError(apiErr)
				observability.AuthzDeniedTotal.WithLabelValues(strconv.Itoa(status)).Inc()
				slog.Info("authorization denied",
					"request_id", transport.RequestIDFromContext(r.Context()),
					"user_id", p.UserID,
					"role", p.Role,
					"path", transport.LogPath(r),
					"status", status,
				)
				transport.WriteAPIError(w, apiErr)
				return
			}
			next.ServeAuthenticated(w, r, p)
		})
	}
}

// Protect applies guards to h, the first guard outermost.
func Protect(h AuthenticatedHandler, guards ...Guard) AuthenticatedHandler {
	for i := len(guards) - 1; i >= 0; i-- {
		h = guards[i](h)
	}
	return h
}

// AllOf admits when every policy admits. With no policies it admits.
func AllOf(policies ...Policy) Policy {
	return func(r *http.Request, p Principal) *api.APIError {
		for _, policy := range policies {
			if apiErr := policy(r, p); apiErr != nil {
				return apiErr
			}
		}
		return nil
	}
}

// AnyOf admits when at least one policy admits. When all refuse, the first
// refusal is returned. A server error from any policy is returned as soon
// as every policy has been tried. With no policies it refuses.
func AnyOf(policies ...Policy) Policy {
	return func(r *http.Request, p Principal) *api.APIError {
		var first, internal *api.APIError
		for _, policy := range policies {
			apiErr := policy(r, p)
			if apiErr == nil {
				return nil
			}
			if first == nil {
				first = apiErr
			}
			if internal == nil && apiErr.Type == api.ErrorTypeServerError {
				internal = apiErr
			}
		}
		if internal != nil {
			return internal
		}
		if first == nil {
			return api.NewForbiddenError()
		}
		return first
	}
}

// Roles admits principals whose role is in the allow-list. It is a flat
// list: no role is admitted unless named.
func Roles(roles ...api.Role) Policy {
	allowed := make(map[api.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(_ *http.Request, p Principal) *api.APIError {
		if allowed[p.Role] {
			return nil
		}
		return api.NewForbiddenError()
	}
}

// HasCapability admits principals whose role holds c.
func HasCapability(c Capability) Policy {
	return func(_ *http.Request, p Principal) *api.APIError {
		if Can(p.Role, c) {
			return nil
		}
		return api.NewForbiddenError()
	}
}

// MinRank admits principals whose role ranks at or above min.
func MinRank(min api.Role) Policy {
	return func(_ *http.Request, p Principal) *api.APIError {
		if AtLeast(p.Role, min) {
			return nil
		}
		return api.NewForbiddenError()
	}
}

// Resource is a loaded resource as seen by the ownership check.
type Resource map[string]any

// Loader loads the resource a request targets. It returns an error
// wrapping storage.ErrNotFound when the resource does not exist.
type Loader func(ctx context.Context, r *http.Request) (Resource, error)

// Owner admits principals whose user id equals resource[field]. A missing
// resource is 404, a loader failure 500, and a missing field or mismatch
// 403.
func Owner(field string, load Loader) Policy {
	return func(r *http.Request, p Principal) *api.APIError {
		res, err := load(r.Context(), r)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return api.NewNotFoundError("resource not found")
			}
			slog.Error("ownership check failed to load resource",
				"request_id", transport.RequestIDFromContext(r.Context()),
				"path", transport.LogPath(r),
				"error", err,
			)
			return api.NewServerError()
		}
		owner, ok := res[field]
		if !ok || owner == nil {
			return api.NewForbiddenError()
		}
		if fmt.Sprint(owner) != p.UserID {
			return api.NewForbiddenError()
		}
		return nil
	}
}

// PlanLookup returns the subscription plan of a user.
type PlanLookup func(ctx context.Context, userID string) (api.Plan, error)

// Plan admits principals whose subscription ranks at or above min. Below
// it the response is 402 payment_required.
func Plan(min api.Plan, lookup PlanLookup) Policy {
	return func(r *http.Request, p Principal) *api.APIError {
		plan, err := lookup(r.Context(), p.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return api.NewNotFoundError("user not found")
			}
			slog.Error("subscription lookup failed",
				"request_id", transport.RequestIDFromContext(r.Context()),
				"user_id", p.UserID,
				"error", err,
			)
			return api.NewServerError()
		}
		if plan.Level() < min.Level() {
			return api.NewPaymentRequiredError(min)
		}
		return nil
	}
}

// RequireRole admits only the listed roles.
func RequireRole(roles ...api.Role) Guard { return Require(Roles(roles...)) }

// RequireCapability admits roles holding c.
func RequireCapability(c Capability) Guard { return Require(HasCapability(c)) }

// RequireRank admits roles ranked at or above min.
func RequireRank(min api.Role) Guard { return Require(MinRank(min)) }

// RequireOwner admits the owner of the loaded resource.
func RequireOwner(field string, load Loader) Guard { return Require(Owner(field, load)) }

// RequirePlan admits users on plan min or higher.
func RequirePlan(min api.Plan, lookup PlanLookup) Guard { return Require(Plan(min, lookup)) }
