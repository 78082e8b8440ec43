// Command server runs the digsite authentication service.
//
// Configuration is read from a YAML file and DIGSITE_* environment
// variables; see pkg/config. Commonly set:
//
//	DIGSITE_CONFIG       - Path to the YAML config file
//	DIGSITE_JWT_SECRET   - HMAC signing secret, at least 32 bytes (required)
//	DIGSITE_PORT         - Listen port (default: 8080)
//	DIGSITE_STORAGE      - "memory" or "postgres" (default: "memory")
//	DIGSITE_POSTGRES_DSN - PostgreSQL connection string
//	DIGSITE_REDIS_ADDR   - Redis address for the shared rate limiter
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rhuss/digsite/pkg/config"
	"github.com/rhuss/digsite/pkg/debug"
	"github.com/rhuss/digsite/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	slog.SetDefault(logger)
	debug.Init(cfg.Logging.Debug)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	a.janitor.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.janitor.Stop(stopCtx)
	}()

	logger.Info("digsite starting",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Type,
		"rate_limit_backend", cfg.RateLimit.Backend,
		"password_algorithm", cfg.Password.Algorithm,
		"service_keys", len(cfg.Auth.ServiceKeys),
		"debug", debug.Categories(),
	)
	return a.server.ListenAndServe()
}
