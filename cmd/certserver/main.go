package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/adamscao/certchain/internal/api"
	"github.com/adamscao/certchain/internal/certs"
	"github.com/adamscao/certchain/internal/config"
	"github.com/adamscao/certchain/internal/db"
	"github.com/adamscao/certchain/internal/db/repository"
	"github.com/adamscao/certchain/internal/ledger"
	"github.com/adamscao/certchain/internal/logging"
	"github.com/adamscao/certchain/internal/policy"
	"github.com/adamscao/certchain/internal/ratelimit"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/certchain/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("certchain server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Error("failed to set GOMAXPROCS", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting certchain server", "version", Version, "commit", Commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	logger.Info("connecting to database", "path", cfg.Database.Path)
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The ledger client is shared by every request
	ledgerClient, err := ledger.NewClient(ledger.FromConfig(cfg),
		ledger.WithLogger(logger),
		ledger.WithRegisterer(registry),
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	defer ledgerClient.Close()

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	if limiter != nil {
		defer limiter.Close()
	}

	// Initialize repositories
	certRepo := repository.NewCertRepository(database.DB)
	institutionRepo := repository.NewInstitutionRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	// Initialize coordinators
	validator := policy.NewValidator(cfg)
	stream := cfg.Ledger.Stream
	issuer := certs.NewIssuer(certRepo, institutionRepo, ledgerClient, validator, stream, certs.WithLogger(logger))
	verifier := certs.NewVerifier(certRepo, ledgerClient, stream, certs.WithLogger(logger))
	revoker := certs.NewRevoker(certRepo, ledgerClient, validator, stream, certs.WithLogger(logger))

	// Create HTTP server
	server := api.NewServer(cfg, logger, registry, issuer, verifier, revoker, certRepo, auditRepo, limiter)
	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr, "ledger", cfg.LedgerURL(), "stream", stream)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
