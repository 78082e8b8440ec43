// Package jwt issues and verifies the signed bearer tokens that carry a
// digsite principal, and provides the matching authenticator.
//
// Tokens are HS256 JWTs with sub, role, iat, exp, iss, and jti claims. The
// parser accepts HS256 only, so a token re-signed with another algorithm
// (including "none") is rejected before any claim is read.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/auth"
)

// MinSecretLength is the shortest accepted signing secret in bytes.
const MinSecretLength = 32

// DefaultLifetime is the token lifetime when Config.Lifetime is zero.
const DefaultLifetime = 24 * time.Hour

// Config holds the token service configuration.
type Config struct {
	// Secret is the HMAC signing key. At least MinSecretLength bytes.
	Secret []byte

	// Issuer is written to and required in the iss claim.
	Issuer string

	// Lifetime is the fixed time between iat and exp. Default: 24h.
	Lifetime time.Duration
}

// Claims is the token payload.
type Claims struct {
	Role string `json:"role"`
	jwtlib.RegisteredClaims
}

// Service issues and verifies tokens.
type Service struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a token service.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", MinSecretLength, len(cfg.Secret))
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Lifetime < 0 {
		return nil, fmt.Errorf("jwt lifetime must be positive, got %s", cfg.Lifetime)
	}

	s := &Service{
		secret:   append([]byte(nil), cfg.Secret...),
		issuer:   cfg.Issuer,
		lifetime: cfg.Lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lifetime returns the configured token lifetime.
func (s *Service) Lifetime() time.Duration { return s.lifetime }

// Issue signs a token for userID with role. The returned principal mirrors
// the token's claims at second precision.
func (s *Service) Issue(userID string, role api.Role) (string, auth.Principal, error) {
	if userID == "" {
		return "", auth.Principal{}, errors.New("issuing token: empty user id")
	}
	if !role.Valid() {
		return "", auth.Principal{}, fmt.Errorf("issuing token: invalid role %q", role)
	}

	iat := s.now().Truncate(time.Second)
	exp := iat.Add(s.lifetime)

	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwtlib.NewNumericDate(iat),
			ExpiresAt: jwtlib.NewNumericDate(exp),
			ID:        api.NewULID(),
		},
	}

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", auth.Principal{}, fmt.Errorf("signing token: %w", err)
	}

	return token, auth.Principal{
		UserID:    userID,
		Role:      role,
		IssuedAt:  iat,
		ExpiresAt: exp,
		Method:    auth.MethodJWT,
	}, nil
}

// Verify checks the token's signature, algorithm, issuer, and expiry and
// returns its principal. Failures wrap auth.ErrTokenExpired or
// auth.ErrTokenInvalid.
func (s *Service) Verify(token string) (auth.Principal, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return s.secret, nil
	}, s.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return auth.Principal{}, fmt.Errorf("%w: %w", auth.ErrTokenExpired, err)
		}
		return auth.Principal{}, fmt.Errorf("%w: %w", auth.ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return auth.Principal{}, fmt.Errorf("%w: missing sub claim", auth.ErrTokenInvalid)
	}
	role := api.Role(claims.Role)
	if !role.Valid() {
		return auth.Principal{}, fmt.Errorf("%w: unknown role %q", auth.ErrTokenInvalid, claims.Role)
	}

	p := auth.Principal{
		UserID:    claims.Subject,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
		Method:    auth.MethodJWT,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	return p, nil
}

// parserOptions pins the algorithm and requires exp and iss.
func (s *Service) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(s.issuer))
	}
	return opts
}

// Authenticator adapts a Service to the auth chain.
type Authenticator struct {
	svc *Service
}

// NewAuthenticator creates a bearer token authenticator.
func NewAuthenticator(svc *Service) *Authenticator {
	return &Authenticator{svc: svc}
}

// Authenticate verifies the bearer token of r.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token present but invalid (expired, wrong issuer, bad signature, etc.)
//   - Yes: valid token with populated Principal
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	p, err := a.svc.Verify(token)
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: err}
	}

	return auth.AuthResult{Decision: auth.Yes, Principal: &p}
}
