// Command appforge runs the appforge API server.
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

	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/config"
	"github.com/appforge-dev/appforge/internal/database"
	"github.com/appforge-dev/appforge/internal/deploy/vercelapi"
	"github.com/appforge-dev/appforge/internal/handler"
	"github.com/appforge-dev/appforge/internal/sandbox"
	"github.com/appforge-dev/appforge/internal/sandbox/cloudbox"
	"github.com/appforge-dev/appforge/internal/sandbox/docker"
	"github.com/appforge-dev/appforge/internal/service"
	"github.com/appforge-dev/appforge/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "appforge:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	s := store.New(db)

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	sandboxService := service.NewSandboxService(s, provider, cfg.SandboxAutoIdle, logger)
	logProvider := vercelapi.New(cfg.DeployAPIURL, cfg.DeployToken)

	h := handler.New(sandboxService, provider, logProvider, logger)
	router := handler.NewRouter(h, s, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
		// SSE connections are long-lived; no WriteTimeout.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("appforge listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func newProvider(cfg *config.Config, logger *zap.Logger) (sandbox.Provider, error) {
	switch cfg.SandboxBackend {
	case "cloudbox", "":
		return cloudbox.New(cloudbox.Config{
			APIKey:   cfg.CloudboxAPIKey,
			Domain:   cfg.CloudboxDomain,
			Template: cfg.CloudboxTemplate,
		}, logger)
	case "docker":
		return docker.New(docker.Config{
			Host:         cfg.DockerHost,
			DefaultImage: cfg.DockerImage,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown sandbox backend: %s", cfg.SandboxBackend)
	}
}
