package config

import (
	"context"
	"os"
	"sync"
	"time"

	"fondarelay/internal/constants"
	"fondarelay/internal/models"

	"github.com/sirupsen/logrus"
)

// TenantsWatcher polls the tenants file and hands every valid new version
// to the registered callbacks. An invalid edit is logged and ignored; the
// last good tenant list stays in effect.
type TenantsWatcher struct {
	path              string
	defaultTimeoutSec int
	defaultMaxItems   int
	interval          time.Duration
	logger            *logrus.Logger
	mu                sync.RWMutex
	tenants           []*models.Tenant
	callbacks         []func([]*models.Tenant)
}

func NewTenantsWatcher(path string, defaultTimeoutSec, defaultMaxItems int, logger *logrus.Logger) *TenantsWatcher {
	return &TenantsWatcher{
		path:              path,
		defaultTimeoutSec: defaultTimeoutSec,
		defaultMaxItems:   defaultMaxItems,
		interval:          constants.DefaultTenantsPollInterval * time.Second,
		logger:            logger,
		callbacks:         make([]func([]*models.Tenant), 0),
	}
}

// Start loads the file once and then blocks, polling for modifications
// until ctx is cancelled.
func (tw *TenantsWatcher) Start(ctx context.Context) error {
	tenants, err := LoadTenantsFile(tw.path, tw.defaultTimeoutSec, tw.defaultMaxItems)
	if err != nil {
		return err
	}

	tw.mu.Lock()
	tw.tenants = tenants
	tw.mu.Unlock()

	stat, err := os.Stat(tw.path)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	tw.logger.WithField("path", tw.path).Info("Tenants watcher started")

	ticker := time.NewTicker(tw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tw.logger.Info("Tenants watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(tw.path)
			if err != nil {
				tw.logger.WithError(err).Error("Failed to stat tenants file")
				continue
			}

			if stat.ModTime().After(lastModTime) {
				tw.logger.Debug("Tenants file changed")
				lastModTime = stat.ModTime()
				tw.reload()
			}
		}
	}
}

// Tenants returns the last successfully loaded tenant list.
func (tw *TenantsWatcher) Tenants() []*models.Tenant {
	tw.mu.RLock()
	defer tw.mu.RUnlock()
	return tw.tenants
}

// OnChange registers a callback run after each successful reload.
func (tw *TenantsWatcher) OnChange(callback func([]*models.Tenant)) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.callbacks = append(tw.callbacks, callback)
}

func (tw *TenantsWatcher) reload() {
	tenants, err := LoadTenantsFile(tw.path, tw.defaultTimeoutSec, tw.defaultMaxItems)
	if err != nil {
		tw.logger.WithError(err).Error("Failed to reload tenants file")
		return
	}

	tw.mu.Lock()
	old := tw.tenants
	tw.tenants = tenants
	callbacks := make([]func([]*models.Tenant), len(tw.callbacks))
	copy(callbacks, tw.callbacks)
	tw.mu.Unlock()

	tw.logger.WithFields(logrus.Fields{
		"old_count": len(old),
		"new_count": len(tenants),
	}).Info("Tenants file reloaded")

	for _, callback := range callbacks {
		func(cb func([]*models.Tenant)) {
			defer func() {
				if r := recover(); r != nil {
					tw.logger.WithField("panic", r).Error("Tenants change callback panicked")
				}
			}()
			cb(tenants)
		}(callback)
	}
}
