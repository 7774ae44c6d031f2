/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the condominium billing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.yaml, .env, SOA_* environment)
  2. Build the zap logger
  3. Open the store (sqlite or postgres)
  4. Choose the unit locker (in-process, or Redis when enabled)
  5. Register Prometheus metrics
  6. Create the billing service and API handler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a config file (default: search ., ./config, /etc/condo-soa)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close store and lock connections
  4. Exit

EXAMPLES:
  # Run with defaults (SQLite ./condo-soa.db on :8080)
  ./server

  # Run against PostgreSQL with Redis locks
  SOA_DATABASE_DRIVER=postgres SOA_REDIS_ENABLED=true ./server

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/condo-soa/api"
	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/config"
	"github.com/warp/condo-soa/lock"
	"github.com/warp/condo-soa/logging"
	"github.com/warp/condo-soa/metrics"
	"github.com/warp/condo-soa/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	backend, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger.Info("store opened", zap.String("driver", cfg.Database.Driver))

	var locker lock.Locker = lock.NewMemory()
	if cfg.Redis.Enabled {
		redisLock, err := lock.NewRedis(lock.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer redisLock.Close()
		locker = redisLock
		logger.Info("using redis unit locks", zap.String("addr", cfg.Redis.Addr))
	}

	var m *metrics.BillingMetrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m = metrics.New(nil, metrics.Config{ServiceName: cfg.App.Name, Environment: cfg.App.Env})
		metricsHandler = metrics.Handler(nil)
	}

	svc := billing.NewService(billing.Options{
		Store:        backend,
		Locker:       locker,
		Logger:       logger,
		Metrics:      m,
		DueDays:      cfg.Billing.DueDays,
		ExcessPolicy: cfg.ExcessPolicy(),
		LockTimeout:  cfg.Billing.LockTimeout,
	})

	handler := api.NewHandler(svc, backend, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.HTTP.CORSAllowOrigins,
		Metrics:        metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.App.Env),
			zap.String("excess_policy", string(svc.ExcessPolicy())),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
