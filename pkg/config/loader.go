package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, DIGSITE_CONFIG env, ./config.yaml, /etc/digsite/config.yaml)
//  3. DIGSITE_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. DIGSITE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/digsite/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("DIGSITE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/digsite/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envSetter applies one environment variable to the config.
type envSetter struct {
	name string
	set  func(cfg *Config, v string) error
}

var envOverrides = []envSetter{
	{"DIGSITE_PORT", func(c *Config, v string) error { return setInt(&c.Server.Port, v) }},
	{"DIGSITE_TRUST_PROXY", func(c *Config, v string) error { return setBool(&c.Server.TrustProxy, v) }},
	{"DIGSITE_JWT_SECRET", func(c *Config, v string) error { c.Auth.JWTSecret = v; return nil }},
	{"DIGSITE_JWT_SECRET_FILE", func(c *Config, v string) error { c.Auth.JWTSecretFile = v; return nil }},
	{"DIGSITE_TOKEN_LIFETIME", func(c *Config, v string) error { return setDuration(&c.Auth.TokenLifetime, v) }},
	{"DIGSITE_PASSWORD_ALGORITHM", func(c *Config, v string) error { c.Password.Algorithm = v; return nil }},
	{"DIGSITE_RATE_LIMIT_BACKEND", func(c *Config, v string) error { c.RateLimit.Backend = v; return nil }},
	{"DIGSITE_LOGIN_LIMIT", func(c *Config, v string) error { return setInt(&c.RateLimit.Rules.Login.Limit, v) }},
	{"DIGSITE_LOGIN_WINDOW", func(c *Config, v string) error { return setDuration(&c.RateLimit.Rules.Login.Window, v) }},
	{"DIGSITE_REDIS_ADDR", func(c *Config, v string) error { c.RateLimit.Redis.Addr = v; return nil }},
	{"DIGSITE_REDIS_PASSWORD", func(c *Config, v string) error { c.RateLimit.Redis.Password = v; return nil }},
	{"DIGSITE_RESET_TOKEN_TTL", func(c *Config, v string) error { return setDuration(&c.Reset.TokenTTL, v) }},
	{"DIGSITE_RESET_LINK_BASE_URL", func(c *Config, v string) error { c.Reset.LinkBaseURL = v; return nil }},
	{"DIGSITE_STORAGE", func(c *Config, v string) error { c.Storage.Type = v; return nil }},
	{"DIGSITE_POSTGRES_DSN", func(c *Config, v string) error { c.Storage.Postgres.DSN = v; return nil }},
	{"DIGSITE_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"DIGSITE_LOG_FORMAT", func(c *Config, v string) error { c.Logging.Format = v; return nil }},
	{"DIGSITE_SERVICE_KEYS", func(c *Config, v string) error {
		keys, err := parseServiceKeysJSON(v)
		if err != nil {
			return err
		}
		c.Auth.ServiceKeys = keys
		return nil
	}},
}

// applyEnvOverrides maps DIGSITE_* environment variables to config fields.
// Unset or empty variables leave the field alone.
func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		if err := o.set(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", o.name, err)
		}
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// parseServiceKeysJSON parses a JSON array of service key configurations.
func parseServiceKeysJSON(jsonStr string) ([]ServiceKeyConfig, error) {
	var keys []ServiceKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing service keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		path  string
		file  string
		value *string
	}{
		{"auth.jwt_secret_file", cfg.Auth.JWTSecretFile, &cfg.Auth.JWTSecret},
		{"rate_limit.redis.password_file", cfg.RateLimit.Redis.PasswordFile, &cfg.RateLimit.Redis.Password},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
	}
	for i := range cfg.Auth.ServiceKeys {
		k := &cfg.Auth.ServiceKeys[i]
		refs = append(refs, struct {
			path  string
			file  string
			value *string
		}{fmt.Sprintf("auth.service_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.path, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
