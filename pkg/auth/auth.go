package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/debug"
	"github.com/rhuss/digsite/pkg/transport"
)

// AuthDecision represents the three possible outcomes of authentication.
type AuthDecision int

const (
	// Yes means credentials are valid. The chain stops and the principal is used.
	Yes AuthDecision = iota

	// No means credentials are present but invalid. The chain stops and the
	// request is rejected.
	No

	// Abstain means this authenticator cannot handle the credentials type.
	// The chain continues to the next authenticator.
	Abstain
)

func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision  AuthDecision
	Principal *Principal // populated only when Decision == Yes
	Err       error      // populated only when Decision == No
}

// Authentication methods recorded on a Principal.
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "apikey"
)

// Principal is the verified caller of a request. It exists only after a
// credential passed signature and expiry checks and is rebuilt on every
// request; nothing about it is persisted.
type Principal struct {
	UserID    string
	Role      api.Role
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Method names the authenticator that produced the principal.
	Method string
}

// Authenticator examines request credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTokenInvalid    = errors.New("token invalid")
	ErrTokenExpired    = errors.New("token expired")
)

// AuthChain evaluates authenticators in order using three-outcome voting.
type AuthChain struct {
	// Authenticators are evaluated left to right.
	Authenticators []Authenticator
}

// NewAuthChain creates a chain over the given authenticators.
func NewAuthChain(authenticators ...Authenticator) *AuthChain {
	return &AuthChain{Authenticators: authenticators}
}

// Authenticate runs the chain. Stops on the first Yes or No.
// If all abstain, the request carried no usable credentials and the
// result is No with ErrUnauthenticated.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for i, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r)
		if result.Decision != Abstain {
			if debug.Enabled(debug.Auth) {
				var userID string
				if result.Principal != nil {
					userID = result.Principal.UserID
				}
				debug.Log(debug.Auth, "authenticator decided",
					"index", i,
					"decision", result.Decision,
					"user_id", userID,
					"error", result.Err,
				)
			}
			return result
		}
	}
	debug.Log(debug.Auth, "all authenticators abstained", "path", transport.LogPath(r))

	return AuthResult{
		Decision: No,
		Err:      ErrUnauthenticated,
	}
}

// failureReason buckets an authentication error for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "missing"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	default:
		return "invalid"
	}
}
