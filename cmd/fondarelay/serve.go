package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fondarelay/internal/config"
	"fondarelay/internal/constants"
	"fondarelay/internal/models"
	"fondarelay/internal/service"
	"fondarelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server and reconcile scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger
	cfg := a.cfg

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting fondarelay")

	tracingConfig := cfg.Tracing
	if tracingConfig.ServiceVersion == "" || tracingConfig.ServiceVersion == "dev" {
		tracingConfig.ServiceVersion = Version
	}
	tracingManager := tracing.NewTracingManager(tracingConfig, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	if cfg.TenantsFile != "" {
		if err := startTenantsWatcher(ctx, a); err != nil {
			return err
		}
	}

	tenants, err := a.db.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}
	slugs := make([]string, 0, len(tenants))
	for _, tenant := range tenants {
		slugs = append(slugs, tenant.Slug)
	}
	a.tracker.Init(slugs...)
	logger.WithField("tenants", len(tenants)).Info("Tenants loaded")

	if cfg.Reconcile.ProbeOnStartup && len(tenants) > 0 {
		go func() {
			results := a.tracker.ProbeAll(ctx, tenants, a.sender)
			logger.WithField("results", results).Info("Startup connectivity probe completed")
		}()
	}

	if cfg.Reconcile.Enabled {
		scheduler, err := service.NewScheduler(a.reconciler, cfg.Reconcile.Schedule, logger)
		if err != nil {
			return err
		}
		go scheduler.Start(ctx)
	} else {
		logger.Info("Reconcile scheduler is disabled")
	}

	ctxWithVerbose := context.WithValue(ctx, service.VerboseContextKey, opts.verbose)
	server := NewServer(cfg, a, logger, ctxWithVerbose)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// startTenantsWatcher imports the tenants file once, then keeps the
// database in step with later edits for the lifetime of ctx.
func startTenantsWatcher(ctx context.Context, a *app) error {
	tenants, err := config.LoadTenantsFile(a.cfg.TenantsFile, a.cfg.DefaultTimeout, a.cfg.DefaultMaxItems)
	if err != nil {
		return fmt.Errorf("failed to load tenants file: %w", err)
	}
	if err := a.importTenants(ctx, tenants); err != nil {
		return err
	}

	watcher := config.NewTenantsWatcher(a.cfg.TenantsFile, a.cfg.DefaultTimeout, a.cfg.DefaultMaxItems, a.logger)
	watcher.OnChange(func(tenants []*models.Tenant) {
		if err := a.importTenants(ctx, tenants); err != nil {
			a.logger.WithError(err).Error("Failed to import reloaded tenants")
		}
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			a.logger.WithError(err).Error("Tenants watcher stopped")
		}
	}()
	return nil
}
