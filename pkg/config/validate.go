package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/rhuss/digsite/pkg/api"
)

// minSecretLength is the shortest accepted HMAC signing secret, in bytes.
const minSecretLength = 32

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be > 0, got %d", c.Server.MaxBodyBytes))
	}
	if c.Server.Throttle.RPS < 0 {
		errs = append(errs, fmt.Errorf("server.throttle.rps must be >= 0, got %v", c.Server.Throttle.RPS))
	}
	if c.Server.Throttle.RPS > 0 && c.Server.Throttle.Burst <= 0 {
		errs = append(errs, fmt.Errorf("server.throttle.burst must be > 0 when rps is set"))
	}

	// auth.jwt_secret must be present and long enough for HS256.
	switch {
	case c.Auth.JWTSecret == "":
		errs = append(errs, fmt.Errorf("auth.jwt_secret or auth.jwt_secret_file is required"))
	case len(c.Auth.JWTSecret) < minSecretLength:
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes", minSecretLength))
	}
	if c.Auth.TokenLifetime <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_lifetime must be > 0"))
	}
	for i, k := range c.Auth.ServiceKeys {
		if k.Key == "" {
			errs = append(errs, fmt.Errorf("auth.service_keys[%d].key or key_file is required", i))
		}
		if k.UserID == "" {
			errs = append(errs, fmt.Errorf("auth.service_keys[%d].user_id is required", i))
		}
		if _, ok := api.ParseRole(k.Role); !ok {
			errs = append(errs, fmt.Errorf("auth.service_keys[%d].role %q is not a known role", i, k.Role))
		}
	}

	switch c.Password.Algorithm {
	case "argon2id", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("password.algorithm must be \"argon2id\" or \"bcrypt\", got %q", c.Password.Algorithm))
	}
	if c.Password.Workers < 0 {
		errs = append(errs, fmt.Errorf("password.workers must be >= 0, got %d", c.Password.Workers))
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("rate_limit.redis.addr is required when rate_limit.backend is \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend must be \"memory\" or \"redis\", got %q", c.RateLimit.Backend))
	}
	for name, r := range map[string]RuleConfig{
		"login":    c.RateLimit.Rules.Login,
		"register": c.RateLimit.Rules.Register,
		"reset":    c.RateLimit.Rules.Reset,
	} {
		if r.Limit < 0 {
			errs = append(errs, fmt.Errorf("rate_limit.rules.%s.limit must be >= 0", name))
		}
		if r.Limit > 0 && r.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.rules.%s.window must be > 0", name))
		}
	}

	if c.Reset.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("reset.token_ttl must be > 0"))
	}
	if c.Reset.PurgeSchedule != "" {
		if _, err := cron.ParseStandard(c.Reset.PurgeSchedule); err != nil {
			errs = append(errs, fmt.Errorf("reset.purge_schedule: %w", err))
		}
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}
