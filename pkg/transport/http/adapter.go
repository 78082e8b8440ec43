package http

import (
	"context"
	"net/http"

	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/auth"
	"github.com/rhuss/digsite/pkg/observability"
	"github.com/rhuss/digsite/pkg/transport"
)

// AccountService is the account layer as seen by the HTTP adapter.
type AccountService interface {
	Register(ctx context.Context, req *api.RegisterRequest) (*api.AuthResult, error)
	Login(ctx context.Context, req *api.LoginRequest) (*api.AuthResult, error)
	Logout() string
	RequestReset(ctx context.Context, req *api.ResetRequest) error
	VerifyReset(ctx context.Context, token string) (bool, error)
	ConsumeReset(ctx context.Context, req *api.ConsumeResetRequest) error
	CurrentUser(ctx context.Context, p auth.Principal) (*api.PublicUser, error)
	UpdateProfile(ctx context.Context, p auth.Principal, upd *api.ProfileUpdate) (*api.PublicUser, error)
	ChangePassword(ctx context.Context, p auth.Principal, req *api.ChangePasswordRequest) error
	Provision(ctx context.Context, actor auth.Principal, req *api.RegisterRequest) (*api.PublicUser, error)
}

// Messages returned by endpoints that have no data payload.
const (
	MessageResetRequested  = "if the email is registered, a password reset link has been sent"
	MessageResetCompleted  = "password has been reset"
	MessagePasswordChanged = "password changed successfully"
)

// RateLimits configures the per-endpoint limit rules. A nil Limiter
// disables them.
type RateLimits struct {
	Limiter  auth.RateLimiter
	Key      auth.KeyFunc
	Login    auth.Rule
	Register auth.Rule
	Reset    auth.Rule
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	RateLimits  RateLimits
	// Readiness lists the dependencies /readyz checks.
	Readiness []Check
	// Metrics mounts the Prometheus handler at /metrics.
	Metrics bool
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 64 << 10, // 64 KB
		Metrics:     true,
	}
}

// Adapter serves the authentication API over HTTP.
type Adapter struct {
	svc    AccountService
	chain  *auth.AuthChain
	mux    *http.ServeMux
	config Config
}

// NewAdapter creates an HTTP adapter and registers every route.
func NewAdapter(svc AccountService, chain *auth.AuthChain, cfg Config) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.RateLimits.Key == nil {
		cfg.RateLimits.Key = auth.ClientKey(false)
	}

	a := &Adapter{
		svc:    svc,
		chain:  chain,
		mux:    http.NewServeMux(),
		config: cfg,
	}

	rl := cfg.RateLimits
	a.mux.Handle("POST /auth/register", a.limit(rl.Register, http.HandlerFunc(a.handleRegister)))
	a.mux.Handle("POST /auth/login", a.limit(rl.Login, http.HandlerFunc(a.handleLogin)))
	a.mux.HandleFunc("POST /auth/logout", a.handleLogout)
	a.mux.Handle("POST /auth/request-reset", a.limit(rl.Reset, http.HandlerFunc(a.handleRequestReset)))
	a.mux.HandleFunc("GET /auth/verify-reset/{token}", a.handleVerifyReset)
	a.mux.Handle("POST /auth/reset-password", a.limit(rl.Reset, http.HandlerFunc(a.handleResetPassword)))

	authn := auth.Authenticate(chain)
	a.mux.Handle("GET /auth/me", authn(auth.AuthenticatedHandlerFunc(a.handleMe)))
	a.mux.Handle("GET /auth/profile", authn(auth.AuthenticatedHandlerFunc(a.handleMe)))
	a.mux.Handle("PUT /auth/profile", authn(auth.AuthenticatedHandlerFunc(a.handleUpdateProfile)))
	a.mux.Handle("PUT /auth/change-password", authn(auth.AuthenticatedHandlerFunc(a.handleChangePassword)))
	a.mux.Handle("POST /auth/users", authn(auth.Protect(
		auth.AuthenticatedHandlerFunc(a.handleProvision),
		auth.RequireRole(api.RoleAdmin),
	)))

	a.mux.HandleFunc("GET /healthz", handleHealthz)
	a.mux.Handle("GET /readyz", readyHandler(cfg.Readiness))
	if cfg.Metrics {
		a.mux.Handle("GET /metrics", observability.Handler())
	}
	a.mux.HandleFunc("/", handleNotFound)

	return a
}

// Handler returns the route multiplexer. Metrics middleware must wrap it
// directly so the matched pattern is visible.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

func (a *Adapter) limit(rule auth.Rule, h http.Handler) http.Handler {
	if a.config.RateLimits.Limiter == nil || rule.Limit <= 0 {
		return h
	}
	return auth.RateLimit(a.config.RateLimits.Limiter, rule, a.config.RateLimits.Key)(h)
}

// handleRegister handles POST /auth/register.
func (a *Adapter) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if apiErr := transport.DecodeJSON(r, a.config.MaxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	res, err := a.svc.Register(r.Context(), &req)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteData(w, http.StatusCreated, res)
}

// handleLogin handles POST /auth/login.
func (a *Adapter) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if apiErr := transport.DecodeJSON(r, a.config.MaxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	res, err := a.svc.Login(r.Context(), &req)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteData(w, http.StatusOK, res)
}

// handleLogout handles POST /auth/logout. Tokens are stateless, so nothing
// is revoked.
func (a *Adapter) handleLogout(w http.ResponseWriter, _ *http.Request) {
	transport.WriteMessage(w, a.svc.Logout())
}

// handleRequestReset handles POST /auth/request-reset. The response is the
// same whether or not the email belongs to an account.
func (a *Adapter) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req api.ResetRequest
	if apiErr := transport.DecodeJSON(r, a.config.MaxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if err := a.svc.RequestReset(r.Context(), &req); err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteMessage(w, MessageResetRequested)
}

// handleVerifyReset handles GET /auth/verify-reset/{token}.
func (a *Adapter) handleVerifyReset(w http.ResponseWriter, r *http.Request) {
	valid, err := a.svc.VerifyReset(r.Context(), r.PathValue("token"))
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteData(w, http.StatusOK, map[string]bool{"isValid": valid})
}

// handleResetPassword handles POST /auth/reset-password.
func (a *Adapter) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req api.ConsumeResetRequest
	if apiErr := transport.DecodeJSON(r, a.config.MaxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if err := a.svc.ConsumeReset(r.Context(), &req); err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteMessage(w, MessageResetCompleted)
}

// handleMe handles GET /auth/me and GET /auth/profile.
func (a *Adapter) handleMe(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	u, err := a.svc.CurrentUser(r.Context(), p)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteData(w, http.StatusOK, u)
}

// handleUpdateProfile handles PUT /auth/profile.
func (a *Adapter) handleUpdateProfile(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var upd api.ProfileUpdate
	if apiErr := transport.DecodeJSON(r, a.config.MaxBodySize, &upd); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	u, err := a.svc.UpdateProfile(r.Context(), p, &upd)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteData(w, http.StatusOK, u)
}

// handleChangePassword handles PUT /auth/change-password.
func (a *Adapter) handleChangePassword(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req api.ChangePasswordRequest
	if apiErr := transport.DecodeJSON(r, a.config.MaxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if err := a.svc.ChangePassword(r.Context(), p, &req); err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteMessage(w, MessagePasswordChanged)
}

// handleProvision handles POST /auth/users.
func (a *Adapter) handleProvision(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req api.RegisterRequest
	if apiErr := transport.DecodeJSON(r, a.config.MaxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	u, err := a.svc.Provision(r.Context(), p, &req)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteData(w, http.StatusCreated, u)
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	transport.WriteAPIError(w, api.NewNotFoundError("no such endpoint"))
}
