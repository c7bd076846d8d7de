package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"fondarelay/internal/constants"
	"fondarelay/internal/models"
	"fondarelay/internal/security"
	"fondarelay/internal/tracing"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingDBPath  = models.ConfigError{Message: "missing database path"}
	ErrInvalidPort    = models.ConfigError{Message: "server port must be between 1 and 65535"}
	ErrInvalidTimeout = models.ConfigError{Message: "timeouts must not be negative"}
)

// Default returns a configuration with every optional value filled in.
// LoadConfig decodes the file on top of it.
func Default() *models.Config {
	return &models.Config{
		Server: models.ServerConfig{
			Port:            constants.DefaultServerPort,
			ReadTimeoutSec:  constants.DefaultServerReadTimeoutSec,
			WriteTimeoutSec: constants.DefaultServerWriteTimeoutSec,
			IdleTimeoutSec:  constants.DefaultServerIdleTimeoutSec,
		},
		Reconcile: models.ReconcileConfig{
			Enabled:        true,
			Schedule:       constants.DefaultReconcileSchedule,
			ProbeOnStartup: true,
		},
		SecondHop: models.SecondHopConfig{
			StripPrefix: constants.DefaultSecondHopStripPrefix,
		},
		Tracing: tracing.DefaultTracingConfig(),
		Retry: models.RetryConfig{
			InitialBackoffMs: constants.DefaultRetryBackoffMs,
			MaxBackoffMs:     constants.DefaultMaxBackoffMs,
			MaxAttempts:      constants.DefaultMaxAttempts,
		},
		DefaultMaxItems: constants.DefaultMaxItems,
		DefaultTimeout:  constants.DefaultTenantTimeoutSec,
		LogLevel:        constants.DefaultLogLevel,
	}
}

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Server.ReadTimeoutSec < 0 || c.Server.WriteTimeoutSec < 0 || c.Server.IdleTimeoutSec < 0 || c.DefaultTimeout < 0 {
		return ErrInvalidTimeout
	}

	if c.Reconcile.Enabled {
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid reconcile schedule %q: %v", c.Reconcile.Schedule, err)}
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid log level %q", c.LogLevel)}
	}
	if err := tracing.ValidateConfig(c.Tracing); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if c.TenantsFile != "" {
		if err := security.ValidateFilePath(c.TenantsFile); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid tenants file path: %v", err)}
		}
	}

	if c.DefaultMaxItems <= 0 {
		c.DefaultMaxItems = constants.DefaultMaxItems
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = constants.DefaultTenantTimeoutSec
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	if path := os.Getenv("FONDARELAY_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if port := os.Getenv("FONDARELAY_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid FONDARELAY_PORT %q", port)}
		}
		c.Server.Port = p
	}
	if schedule := os.Getenv("FONDARELAY_RECONCILE_SCHEDULE"); schedule != "" {
		c.Reconcile.Schedule = schedule
	}
	if level := os.Getenv("FONDARELAY_LOG_LEVEL"); level != "" {
		c.LogLevel = strings.ToLower(level)
	}
	if file := os.Getenv("FONDARELAY_TENANTS_FILE"); file != "" {
		c.TenantsFile = file
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Tracing.OTLPEndpoint = endpoint
	}
	return nil
}
