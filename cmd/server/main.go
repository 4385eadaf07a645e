/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the approval ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration
  2. Build the zap logger
  3. Open the store (sqlite or postgres)
  4. Register resource policies on the engine (plus ledger.policy_file)
  5. Create API handler (loads the calendar), optionally seed demo data
  6. Start the verification scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)
  -seed    Demo scenario to load on start (overrides database.seed)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the scheduler
  4. Close database connection

EXAMPLES:
  # Defaults: sqlite at data/ledger.db on :8080
  ./server

  # Postgres
  LEDGER_DATABASE_DRIVER=postgres LEDGER_DATABASE_URL=postgres://localhost/ledger ./server

  # In-memory with demo data
  LEDGER_DATABASE_PATH=":memory:" ./server -seed=bulk-approve

ENVIRONMENT:
  Every config key as LEDGER_<SECTION>_<KEY>, see config/config.go.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: Configuration keys and defaults
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/approval-ledger/api"
	"github.com/warp/approval-ledger/config"
	"github.com/warp/approval-ledger/factory"
	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/logging"
	"github.com/warp/approval-ledger/overtime"
	"github.com/warp/approval-ledger/store/postgres"
	"github.com/warp/approval-ledger/store/sqlite"
	"github.com/warp/approval-ledger/timeoff"
)

const defaultScenario = "offset-approve-revert"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	seed := flag.String("seed", "", "Demo scenario to load on start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *seed, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, seed string, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	backend, err := openBackend(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger.Info("database ready", zap.String("driver", cfg.Database.Driver))

	// Engine and policies
	engine := generic.NewEngine(backend, backend, backend,
		generic.WithLogger(logger),
		generic.WithIDGenerator(uuid.NewString))
	policies := timeoff.Policies(cfg.Ledger.OffsetGrant(), cfg.Ledger.SickGrant(), cfg.Ledger.VacationGrant())
	policies = append(policies, overtime.Policy())
	if cfg.Ledger.PolicyFile != "" {
		extra, err := factory.NewPolicyFactory().LoadFile(cfg.Ledger.PolicyFile)
		if err != nil {
			return err
		}
		policies = append(policies, extra...)
		logger.Info("loaded extra resource policies", zap.Int("count", len(extra)), zap.String("file", cfg.Ledger.PolicyFile))
	}
	for _, p := range policies {
		if err := engine.RegisterPolicy(p); err != nil {
			return fmt.Errorf("failed to register policy: %w", err)
		}
	}

	// Handler
	restDays, err := cfg.Calendar.Weekdays()
	if err != nil {
		return err
	}
	handler, err := api.NewHandler(ctx, engine, backend, restDays, logger)
	if err != nil {
		return err
	}
	if seed == "" && cfg.Database.Seed {
		seed = defaultScenario
	}
	if seed != "" {
		if err := handler.LoadScenarioByID(ctx, seed); err != nil {
			return fmt.Errorf("failed to seed: %w", err)
		}
	}

	scheduler := api.NewVerifyScheduler(engine, cfg.Ledger.VerifyInterval, logger)
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openBackend(ctx context.Context, cfg config.DatabaseConfig) (api.Backend, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := postgres.New(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		return store, nil
	default:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return store, nil
	}
}
