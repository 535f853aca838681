package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/facereg/internal/config"
	logpkg "github.com/kailas-cloud/facereg/internal/logger"
	"github.com/kailas-cloud/facereg/internal/matching"
	"github.com/kailas-cloud/facereg/internal/metrics"
	"github.com/kailas-cloud/facereg/internal/registry"
	chiTransport "github.com/kailas-cloud/facereg/internal/transport/chi"
	openaiFace "github.com/kailas-cloud/facereg/internal/transport/openai"
	healthuc "github.com/kailas-cloud/facereg/internal/usecase/health"
	verificationuc "github.com/kailas-cloud/facereg/internal/usecase/verification"
	"github.com/kailas-cloud/facereg/internal/version"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides http.port)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, env, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort > 0 {
		cfg.HTTP.Port = servePort
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting facereg API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("registry_backend", cfg.Registry.Backend),
		zap.Float64("threshold", cfg.Matching.Threshold),
	)

	metrics.RegisterMetrics()

	ctx := context.Background()
	store, closeStore, err := openSnapshotStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// A corrupt snapshot stops startup; serving an empty registry would
	// overwrite it on the first mutation.
	reg, err := registry.Open(ctx, store, cfg.Embedding.Dimensions, logger)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	engine := matching.New(matching.Cosine).
		WithThreshold(cfg.Matching.Threshold).
		WithWorkers(cfg.Matching.Workers).
		WithLogger(logger)

	verificationSvc := verificationuc.New(reg, engine).
		WithDimensions(cfg.Embedding.Dimensions)

	// Pass nil interface (not typed nil pointer!) when the extractor is disabled.
	var extractorChecker healthuc.ExtractorChecker
	if cfg.Embedding.Enabled() {
		extractor := openaiFace.NewExtractor(&openaiFace.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			Logger:     logger,
		})
		verificationSvc.WithExtractor(extractor)
		extractorChecker = extractor
		logger.Info("Image intake enabled",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	}

	healthSvc := healthuc.New(store, extractorChecker)
	server := chiTransport.NewServer(verificationSvc, healthSvc, logger).
		WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes)

	var limiter *chiTransport.TenantRateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = chiTransport.NewTenantRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(chiTransport.TenantMiddleware(tenantResolver(cfg.Tenant)))
	r.Use(chiTransport.RateLimitMiddleware(limiter))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		logger.Error("HTTP server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// In-flight requests are drained, so the final flush sees every mutation.
	if err := reg.Close(shutdownCtx); err != nil {
		logger.Error("Final registry flush failed", zap.Error(err))
		return err
	}

	tenants, identities := reg.Stats()
	logger.Info("Server stopped gracefully",
		zap.Int("tenants", tenants),
		zap.Int("identities", identities),
	)
	return nil
}

func tenantResolver(cfg config.TenantConfig) chiTransport.TenantResolver {
	switch cfg.Strategy {
	case config.TenantHeader:
		return chiTransport.HeaderTenant(cfg.Header)
	case config.TenantAPIKey:
		return chiTransport.APIKeyTenant()
	default:
		return chiTransport.RemoteAddrTenant()
	}
}
