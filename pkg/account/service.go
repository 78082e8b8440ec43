package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/auth"
	"github.com/rhuss/digsite/pkg/auth/password"
	"github.com/rhuss/digsite/pkg/observability"
	"github.com/rhuss/digsite/pkg/storage"
)

// LogoutMessage is returned by Logout. Tokens are not revoked server-side.
const LogoutMessage = "logged out; the token remains valid until it expires"

// TokenIssuer mints access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID string, role api.Role) (string, auth.Principal, error)
}

// Service implements the account operations.
type Service struct {
	users    UserDirectory
	resets   ResetTokenStore
	hasher   password.Hasher
	tokens   TokenIssuer
	notifier Notifier
	cfg      Config
	now      func() time.Time

	// dummyHash is verified against when a login names an unknown email,
	// so that both paths pay for one hash.
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. Users, resets, hasher, and tokens must not be nil.
// A nil notifier means reset notices are only logged.
func New(users UserDirectory, resets ResetTokenStore, hasher password.Hasher, tokens TokenIssuer, notifier Notifier, cfg Config, opts ...Option) (*Service, error) {
	switch {
	case users == nil:
		return nil, fmt.Errorf("account: user directory must not be nil")
	case resets == nil:
		return nil, fmt.Errorf("account: reset token store must not be nil")
	case hasher == nil:
		return nil, fmt.Errorf("account: hasher must not be nil")
	case tokens == nil:
		return nil, fmt.Errorf("account: token issuer must not be nil")
	}
	if notifier == nil {
		notifier = NewLogNotifier(slog.Default())
	}

	s := &Service{
		users:    users,
		resets:   resets,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	seed, err := api.NewResetToken()
	if err != nil {
		return nil, fmt.Errorf("account: generating dummy password: %w", err)
	}
	s.dummyHash, err = hasher.Hash(context.Background(), seed[:32])
	if err != nil {
		return nil, fmt.Errorf("account: computing dummy hash: %w", err)
	}
	return s, nil
}

// Register creates a self-registered account and logs it in.
func (s *Service) Register(ctx context.Context, req *api.RegisterRequest) (*api.AuthResult, error) {
	role, apiErr := api.ValidateRegister(req, false, s.cfg.validation())
	if apiErr != nil {
		return nil, apiErr
	}
	u, err := s.createUser(ctx, req, role, api.PlanFree)
	if err != nil {
		return nil, err
	}
	slog.Info("user registered", "user_id", u.ID, "role", u.Role)
	return s.issue(u)
}

// Provision creates an account with any role on behalf of an administrator.
// No token is issued.
func (s *Service) Provision(ctx context.Context, actor auth.Principal, req *api.RegisterRequest) (*api.PublicUser, error) {
	role, apiErr := api.ValidateRegister(req, true, s.cfg.validation())
	if apiErr != nil {
		return nil, apiErr
	}
	plan, _ := api.ParsePlan(req.SubscriptionPlan)
	u, err := s.createUser(ctx, req, role, plan)
	if err != nil {
		return nil, err
	}
	slog.Info("user provisioned", "user_id", u.ID, "role", u.Role, "by", actor.UserID)
	pub := u.Public()
	return &pub, nil
}

func (s *Service) createUser(ctx context.Context, req *api.RegisterRequest, role api.Role, plan api.Plan) (*api.User, error) {
	email := api.NormalizeEmail(req.Email)

	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, emailTaken()
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("looking up email: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.now().UTC()
	u := &api.User{
		ID:               api.NewUserID(),
		Email:            email,
		PasswordHash:     hash,
		FullName:         strings.TrimSpace(req.FullName),
		Role:             role,
		SubscriptionPlan: plan,
		Institution:      strings.TrimSpace(req.Institution),
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, emailTaken()
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

func emailTaken() *api.APIError {
	return api.NewValidationError("email", "email is already registered")
}

// Login checks credentials and issues a token. Unknown emails, inactive
// accounts, and wrong passwords all yield the same invalid_credentials error.
func (s *Service) Login(ctx context.Context, req *api.LoginRequest) (*api.AuthResult, error) {
	if apiErr := api.ValidateLogin(req); apiErr != nil {
		return nil, apiErr
	}
	email := api.NormalizeEmail(req.Email)

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("looking up user: %w", err)
		}
		if _, err := s.hasher.Verify(ctx, req.Password, s.dummyHash); err != nil {
			return nil, fmt.Errorf("verifying password: %w", err)
		}
		s.loginFailed("unknown_email", email)
		return nil, api.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(ctx, req.Password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password for user %s: %w", u.ID, err)
	}
	if !ok {
		s.loginFailed("wrong_password", email)
		return nil, api.NewInvalidCredentialsError()
	}
	if !u.IsActive {
		s.loginFailed("inactive", email)
		return nil, api.NewInvalidCredentialsError()
	}

	s.maybeRehash(ctx, u, req.Password)
	slog.Info("user logged in", "user_id", u.ID)
	return s.issue(u)
}

func (s *Service) loginFailed(reason, email string) {
	observability.AuthFailuresTotal.WithLabelValues("login_" + reason).Inc()
	slog.Info("login failed", "reason", reason, "email", observability.RedactEmail(email))
}

// maybeRehash upgrades a hash produced with outdated settings. Failures
// are logged; the login itself has already succeeded.
func (s *Service) maybeRehash(ctx context.Context, u *api.User, plaintext string) {
	rh, ok := s.hasher.(password.Rehasher)
	if !ok || !rh.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(ctx, plaintext)
	if err == nil {
		err = s.users.UpdatePassword(ctx, u.ID, hash, s.now().UTC())
	}
	if err != nil {
		slog.Warn("password rehash failed", "user_id", u.ID, "error", err)
		return
	}
	u.PasswordHash = hash
	slog.Debug("password rehashed", "user_id", u.ID)
}

func (s *Service) issue(u *api.User) (*api.AuthResult, error) {
	token, p, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}
	return &api.AuthResult{Token: token, ExpiresAt: p.ExpiresAt, User: u.Public()}, nil
}

// Logout is stateless: the client discards its token.
func (s *Service) Logout() string {
	return LogoutMessage
}

// CurrentUser returns the public view of the authenticated user.
func (s *Service) CurrentUser(ctx context.Context, p auth.Principal) (*api.PublicUser, error) {
	u, err := s.lookup(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

// UpdateProfile applies the set fields of upd to the authenticated user.
func (s *Service) UpdateProfile(ctx context.Context, p auth.Principal, upd *api.ProfileUpdate) (*api.PublicUser, error) {
	if apiErr := api.ValidateProfileUpdate(upd, s.cfg.validation()); apiErr != nil {
		return nil, apiErr
	}
	u, err := s.lookup(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	upd.Apply(u)
	u.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, api.NewNotFoundError("user not found")
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	pub := u.Public()
	return &pub, nil
}

// ChangePassword replaces the password after verifying the current one.
// Outstanding reset links stop working.
func (s *Service) ChangePassword(ctx context.Context, p auth.Principal, req *api.ChangePasswordRequest) error {
	if apiErr := api.ValidateChangePassword(req, s.cfg.validation()); apiErr != nil {
		return apiErr
	}
	u, err := s.lookup(ctx, p.UserID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(ctx, req.CurrentPassword, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password for user %s: %w", u.ID, err)
	}
	if !ok {
		observability.AuthFailuresTotal.WithLabelValues("change_password").Inc()
		return api.NewInvalidCredentialsError()
	}
	hash, err := s.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.resets.ReplacePassword(ctx, u.ID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return api.NewNotFoundError("user not found")
		}
		return fmt.Errorf("updating password: %w", err)
	}
	slog.Info("password changed", "user_id", u.ID)
	return nil
}

func (s *Service) lookup(ctx context.Context, id string) (*api.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, api.NewNotFoundError("user not found")
		}
		return nil, fmt.Errorf("loading user %s: %w", id, err)
	}
	return u, nil
}
