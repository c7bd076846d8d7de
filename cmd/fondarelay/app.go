package main

import (
	"context"
	"fmt"
	"net/http"

	"fondarelay/internal/config"
	"fondarelay/internal/connectivity"
	"fondarelay/internal/constants"
	"fondarelay/internal/database"
	"fondarelay/internal/models"
	"fondarelay/internal/queue"
	"fondarelay/internal/retry"
	"fondarelay/internal/service"
	"fondarelay/internal/transport"

	"github.com/sirupsen/logrus"
)

// app holds the wired relay components shared by every command.
type app struct {
	cfg        *models.Config
	logger     *logrus.Logger
	db         *database.Database
	queue      *queue.Queue
	tracker    *connectivity.Tracker
	sender     transport.Sender
	relay      *service.Relay
	reconciler *service.Reconciler
	secondHop  *service.SecondHop
}

func newLogger(cfg *models.Config, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - phone numbers will be logged")
		return logger
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// openApp loads configuration, opens the database with retries and wires
// the relay services.
func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg, opts.verbose)

	backoffConfig := retry.FromRetryConfig(cfg.Retry)
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	backoff := retry.NewBackoff(backoffConfig)

	var db *database.Database
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	logger.WithField("encrypted", db.EncryptionEnabled()).Debug("Database ready")

	sender := transport.NewClient(&http.Client{}, logger)
	q := queue.New(db, logger)
	tracker := connectivity.NewTracker(logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		queue:      q,
		tracker:    tracker,
		sender:     sender,
		relay:      service.NewRelay(db, q, tracker, sender, logger),
		reconciler: service.NewReconciler(db, q, tracker, sender, logger),
		secondHop:  service.NewSecondHop(db, q, sender, cfg.SecondHop.StripPrefix, logger),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// importTenants upserts tenants by slug. Existing slugs are updated in
// place; tenants missing from the list are left untouched.
func (a *app) importTenants(ctx context.Context, tenants []*models.Tenant) error {
	for _, tenant := range tenants {
		if err := a.db.SaveTenant(ctx, tenant); err != nil {
			return fmt.Errorf("failed to save tenant %s: %w", tenant.Slug, err)
		}
		a.tracker.Init(tenant.Slug)
	}
	return nil
}
