package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/digsite/pkg/account"
	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/auth"
	"github.com/rhuss/digsite/pkg/auth/apikey"
	"github.com/rhuss/digsite/pkg/auth/jwt"
	"github.com/rhuss/digsite/pkg/auth/password"
	"github.com/rhuss/digsite/pkg/auth/redislimit"
	"github.com/rhuss/digsite/pkg/config"
	"github.com/rhuss/digsite/pkg/storage/memory"
	"github.com/rhuss/digsite/pkg/storage/postgres"
	"github.com/rhuss/digsite/pkg/transport"
	transporthttp "github.com/rhuss/digsite/pkg/transport/http"
)

// store is what the service needs from a storage backend.
type store interface {
	account.UserDirectory
	account.ResetTokenStore
	HealthCheck(ctx context.Context) error
	Close() error
}

// app is the assembled service.
type app struct {
	server  *transporthttp.Server
	janitor *account.Janitor
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// newApp builds every component from cfg. On error, anything already
// opened is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{janitor: account.NewJanitor()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)
	readiness := []transporthttp.Check{{Name: "store", Probe: st.HealthCheck}}

	hasher, err := password.New(password.Options{
		Algorithm:  cfg.Password.Algorithm,
		BcryptCost: cfg.Password.BcryptCost,
		Argon2: password.Argon2Params{
			Memory:      cfg.Password.Argon2.MemoryKiB,
			Iterations:  cfg.Password.Argon2.Iterations,
			Parallelism: cfg.Password.Argon2.Parallelism,
		},
		Workers: cfg.Password.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating password hasher: %w", err)
	}

	tokens, err := jwt.NewService(jwt.Config{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Lifetime: cfg.Auth.TokenLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	var authenticators []auth.Authenticator
	if len(cfg.Auth.ServiceKeys) > 0 {
		authenticators = append(authenticators, apikey.New(serviceKeys(cfg.Auth.ServiceKeys)))
	}
	authenticators = append(authenticators, jwt.NewAuthenticator(tokens))
	chain := auth.NewAuthChain(authenticators...)

	limiter, limiterCheck, err := a.newLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	if limiterCheck != nil {
		readiness = append(readiness, *limiterCheck)
	}

	svc, err := account.New(st, st, hasher, tokens, account.NewLogNotifier(logger), account.Config{
		Validation:    api.DefaultValidationConfig(),
		ResetTokenTTL: cfg.Reset.TokenTTL,
		ResetLinkBase: cfg.Reset.LinkBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating account service: %w", err)
	}

	if cfg.Reset.PurgeSchedule != "" {
		if err := a.janitor.SchedulePurge(cfg.Reset.PurgeSchedule, svc); err != nil {
			return nil, err
		}
	}

	rules := cfg.RateLimit.Rules
	adapter := transporthttp.NewAdapter(svc, chain, transporthttp.Config{
		MaxBodySize: cfg.Server.MaxBodyBytes,
		RateLimits: transporthttp.RateLimits{
			Limiter:  limiter,
			Key:      auth.ClientKey(cfg.Server.TrustProxy),
			Login:    auth.Rule{Name: "login", Limit: rules.Login.Limit, Window: rules.Login.Window},
			Register: auth.Rule{Name: "register", Limit: rules.Register.Limit, Window: rules.Register.Window},
			Reset:    auth.Rule{Name: "reset", Limit: rules.Reset.Limit, Window: rules.Reset.Window},
		},
		Readiness: readiness,
		Metrics:   cfg.Observability.Metrics.Enabled,
	})

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	}
	if cfg.Server.Throttle.RPS > 0 {
		throttle := transport.NewThrottle(transport.ThrottleConfig{
			RPS:        cfg.Server.Throttle.RPS,
			Burst:      cfg.Server.Throttle.Burst,
			TrustProxy: cfg.Server.TrustProxy,
		})
		if err := a.janitor.Schedule("@every 1m", "throttle-sweep", func(context.Context) error {
			throttle.Sweep()
			return nil
		}); err != nil {
			return nil, err
		}
		opts = append(opts, transporthttp.WithThrottle(throttle))
	}
	a.server = transporthttp.NewServer(adapter, opts...)

	return a, nil
}

func newStore(ctx context.Context, cfg config.StorageConfig) (store, error) {
	switch cfg.Type {
	case "memory":
		slog.Warn("using in-memory storage; accounts are lost on restart")
		return memory.New(), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MigrateOnStart:  cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// newLimiter builds the rate limiter for cfg.Backend. The in-process
// limiter gets a sweep job; the Redis limiter gets a readiness check.
func (a *app) newLimiter(cfg config.RateLimitConfig) (auth.RateLimiter, *transporthttp.Check, error) {
	switch cfg.Backend {
	case "memory":
		l := auth.NewInProcessLimiter()
		if err := a.janitor.Schedule("@every 1m", "ratelimit-sweep", func(context.Context) error {
			l.Sweep()
			return nil
		}); err != nil {
			return nil, nil, err
		}
		return l, nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		l := redislimit.New(client, redislimit.Options{
			Prefix:   cfg.Redis.Prefix,
			FailOpen: cfg.FailOpen,
		})
		return l, &transporthttp.Check{Name: "redis", Probe: l.Ping}, nil
	default:
		return nil, nil, errors.New("unknown rate limit backend " + strconv.Quote(cfg.Backend))
	}
}

func serviceKeys(keys []config.ServiceKeyConfig) []apikey.RawKeyEntry {
	entries := make([]apikey.RawKeyEntry, 0, len(keys))
	for _, k := range keys {
		role, _ := api.ParseRole(k.Role)
		entries = append(entries, apikey.RawKeyEntry{Key: k.Key, UserID: k.UserID, Role: role})
	}
	return entries
}
