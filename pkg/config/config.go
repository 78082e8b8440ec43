// Package config provides unified configuration for the digsite auth service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DIGSITE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the digsite auth service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Password      PasswordConfig      `yaml:"password"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Reset         ResetConfig         `yaml:"reset"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error. default: info
	Format string `yaml:"format"` // text or json. default: json
	// Debug lists debug categories (auth, ratelimit, reset, storage, all).
	// DIGSITE_DEBUG overrides it.
	Debug string `yaml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int            `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration  `yaml:"read_timeout"`     // default: 15s
	WriteTimeout    time.Duration  `yaml:"write_timeout"`    // default: 30s
	IdleTimeout     time.Duration  `yaml:"idle_timeout"`     // default: 120s
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"` // default: 15s
	MaxBodyBytes    int64          `yaml:"max_body_bytes"`   // default: 64KiB
	TrustProxy      bool           `yaml:"trust_proxy"`
	Throttle        ThrottleConfig `yaml:"throttle"`
}

// ThrottleConfig is the global per-client token bucket. RPS of zero
// disables it.
type ThrottleConfig struct {
	RPS   float64 `yaml:"rps"`   // default: 50
	Burst int     `yaml:"burst"` // default: 100
}

// AuthConfig holds bearer credential settings.
type AuthConfig struct {
	JWTSecret     string             `yaml:"jwt_secret"`
	JWTSecretFile string             `yaml:"jwt_secret_file"`
	Issuer        string             `yaml:"issuer"`         // default: "digsite"
	TokenLifetime time.Duration      `yaml:"token_lifetime"` // default: 24h
	ServiceKeys   []ServiceKeyConfig `yaml:"service_keys"`
}

// ServiceKeyConfig maps a static service key to an identity. Keys are
// matched before JWTs in the authenticator chain.
type ServiceKeyConfig struct {
	Key     string `yaml:"key" json:"key"`
	KeyFile string `yaml:"key_file" json:"key_file"`
	UserID  string `yaml:"user_id" json:"user_id"`
	Role    string `yaml:"role" json:"role"`
}

// PasswordConfig tunes the credential hasher.
type PasswordConfig struct {
	Algorithm  string       `yaml:"algorithm"`   // argon2id or bcrypt. default: argon2id
	BcryptCost int          `yaml:"bcrypt_cost"` // default: 12
	Argon2     Argon2Config `yaml:"argon2"`
	Workers    int          `yaml:"workers"` // 0 means one per CPU
}

// Argon2Config holds argon2id cost parameters. Zero values fall back to the
// hasher defaults.
type Argon2Config struct {
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
}

// RateLimitConfig holds the per-route limits for sensitive endpoints.
type RateLimitConfig struct {
	Backend  string         `yaml:"backend"`   // memory or redis. default: memory
	FailOpen bool           `yaml:"fail_open"` // default: true
	Rules    RateLimitRules `yaml:"rules"`
	Redis    RedisConfig    `yaml:"redis"`
}

// RateLimitRules are the per-endpoint-group budgets.
type RateLimitRules struct {
	Login    RuleConfig `yaml:"login"`    // default: 5 per 60s
	Register RuleConfig `yaml:"register"` // default: 10 per 1h
	Reset    RuleConfig `yaml:"reset"`    // default: 5 per 15m
}

// RuleConfig is a limit per fixed window. A limit of zero disables the rule.
type RuleConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// RedisConfig holds the shared limiter's Redis connection settings.
type RedisConfig struct {
	Addr         string `yaml:"addr"` // default: localhost:6379
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`
	DB           int    `yaml:"db"`
	Prefix       string `yaml:"prefix"` // default: "digsite:ratelimit"
}

// ResetConfig holds password reset settings.
type ResetConfig struct {
	TokenTTL      time.Duration `yaml:"token_ttl"`      // default: 1h
	PurgeSchedule string        `yaml:"purge_schedule"` // cron spec. default: "@every 15m"
	LinkBaseURL   string        `yaml:"link_base_url"`
}

// StorageConfig holds user directory settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"`
	MaxConns        int32         `yaml:"max_conns"`         // default: 25
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"` // default: 30m
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    64 << 10,
			Throttle: ThrottleConfig{
				RPS:   50,
				Burst: 100,
			},
		},
		Auth: AuthConfig{
			Issuer:        "digsite",
			TokenLifetime: 24 * time.Hour,
		},
		Password: PasswordConfig{
			Algorithm:  "argon2id",
			BcryptCost: 12,
		},
		RateLimit: RateLimitConfig{
			Backend:  "memory",
			FailOpen: true,
			Rules: RateLimitRules{
				Login:    RuleConfig{Limit: 5, Window: 60 * time.Second},
				Register: RuleConfig{Limit: 10, Window: time.Hour},
				Reset:    RuleConfig{Limit: 5, Window: 15 * time.Minute},
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "digsite:ratelimit",
			},
		},
		Reset: ResetConfig{
			TokenTTL:      time.Hour,
			PurgeSchedule: "@every 15m",
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns:        25,
				MaxConnLifetime: 30 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}
